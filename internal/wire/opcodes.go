// Package wire is the chat message codec (spec §4.3, §6): the JSON
// envelope shape and the numeric opcode table, shared between client
// frames (field Ty) and server frames (field Topic) since both live in the
// same numeric space.
package wire

// Opcode numbers, verbatim from spec §6's opcode table.
const (
	OpSubscribe           = 1
	OpListChats           = 2 // also "unsubscribe" in the source; here: list-chats only, see DESIGN.md
	OpPostMessage         = 3
	OpCreateChat          = 4
	OpGetHistory          = 6
	OpEchoUserID          = 7
	OpDeleteAccount       = 8
	OpDeletedFromChat     = 9
	OpInvite              = 10
	OpListMembers         = 11
	OpSearchUsers         = 12
	OpAddFriend           = 13
	OpListFriends         = 14
	OpAcceptFriendRequest = 15
	OpRejectFriendRequest = 16
	OpNewFriendRequest    = 17
	OpDeleteFriend        = 18
	OpUpdateAccount       = 20
	OpDeleteVoiceChat     = 21
	OpLogout              = 22

	// OpUserJoined is the priming broadcast sent to every live session when
	// a new user registers (end-to-end scenario 1 in spec §8); it has no
	// entry in the opcode table because it's server-originated only and
	// numbered outside the client opcode space by convention.
	OpUserJoined = 0
)

// Status strings used in the "status" field of server replies.
const (
	StatusSuccess      = "success"
	StatusError        = "error"
	StatusAccepted     = "accepted"
	StatusSubscribed   = "subscribed"
	StatusRequestSent  = "request_sent"
)
