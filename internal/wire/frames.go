package wire

import "encoding/json"

// ClientMessage is the envelope for every client->server frame. Field
// names match spec §6's opcode table literally, including its
// inconsistent chatId/chat_id casing across opcodes — that inconsistency
// is part of the wire contract, not a typo to "fix".
type ClientMessage struct {
	Ty int `json:"ty"`

	To          int64   `json:"to,omitempty"`
	Msg         string  `json:"msg,omitempty"`
	ChatName    string  `json:"chatName,omitempty"`
	Invited     []int64 `json:"Invited,omitempty"`
	IsVoiceChat bool    `json:"isVoiceChat,omitempty"`
	ChatIDCamel int64   `json:"chatId,omitempty"`
	ChatIDSnake int64   `json:"chat_id,omitempty"`
	SearchTerm  string  `json:"searchTerm,omitempty"`
	UserID      int64   `json:"user_id,omitempty"`
	FriendID    int64   `json:"friend_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	Password    *string `json:"password,omitempty"`
}

// Decode parses one JSON frame. Framing (one frame per WebSocket message)
// is handled by the transport; this only validates the JSON shape.
func Decode(raw []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ChatSummary is one entry of a "list chats" reply.
type ChatSummary struct {
	ChatID      int64  `json:"chat_id"`
	ChatName    string `json:"chat_name"`
	IsVoiceChat bool   `json:"isVoiceChat"`
}

// UserSummary is one entry of a "list members" (opcode 11) or "search
// users" (opcode 12) reply. The reference client's onSearchResultReceived
// reads user_name, not name, so the field keeps that wire name even though
// every other view type in this file says "name".
type UserSummary struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// FriendSummary is one entry of opcode 14's friends/friend_requests arrays.
// The reference client gates on friend_id/friend_name specifically — it
// will not fall back to user_id/name.
type FriendSummary struct {
	FriendID   int64  `json:"friend_id"`
	FriendName string `json:"friend_name"`
}

// MessageView is one entry of a "get history" reply.
type MessageView struct {
	MsgID    int64  `json:"msg_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Text     string `json:"text"`
	Date     int64  `json:"date"`
}

// ServerMessage is the envelope for every server->client frame. Only the
// fields relevant to Topic are populated; everything else is omitted.
type ServerMessage struct {
	Topic  int    `json:"topic"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`

	// Opcode 1 / 4 / 21
	ChatID   int64  `json:"chat_id,omitempty"`
	ChatName string `json:"chat_name,omitempty"`

	// Opcode 2
	Chats []ChatSummary `json:"chats,omitempty"`

	// Opcode 3
	UserName string `json:"user_name,omitempty"`
	Text     string `json:"text,omitempty"`
	Date     int64  `json:"date,omitempty"`
	MsgID    int64  `json:"msg_id,omitempty"`

	// Opcode 4 / 10
	IsVoiceChat bool `json:"isVoiceChat,omitempty"`

	// Opcode 6
	Messages []MessageView `json:"messages,omitempty"`

	// Opcode 0 / 7 / 8 / 9 / 10 / others carrying a bare user id
	UserID int64 `json:"user_id,omitempty"`

	// Opcode 17
	FriendName string `json:"friend_name,omitempty"`

	// Opcode 10: a flat array of invited user ids, not objects — the
	// reference client does `id.toInt()` on each element directly.
	Invited []int64 `json:"invited,omitempty"`

	// Opcode 11 / 12
	Users []UserSummary `json:"users,omitempty"`

	// Opcode 13 / 15 / 17
	FriendID int64 `json:"friend_id,omitempty"`

	// Opcode 14
	Friends        []FriendSummary `json:"friends,omitempty"`
	FriendRequests []FriendSummary `json:"friend_requests,omitempty"`

	// Opcode 20
	Name string `json:"name,omitempty"`
}

// Encode serializes a server frame for a session's outbound queue.
func Encode(m *ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}

// Err builds a structured error frame on the given topic (spec §7:
// "every failed operation yields a structured error frame").
func Err(topic int, msg string) *ServerMessage {
	return &ServerMessage{Topic: topic, Status: StatusError, Error: msg}
}
