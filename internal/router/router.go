// Package router is the request router (spec §4.7): the opcode dispatch
// table. One method per opcode, each enforcing its preconditions, calling
// into store/topic/hub, and producing a reply frame.
package router

import (
	"log"
	"strings"

	"github.com/usernameisnull/meridian/internal/chatsession"
	"github.com/usernameisnull/meridian/internal/hub"
	"github.com/usernameisnull/meridian/internal/metrics"
	"github.com/usernameisnull/meridian/internal/store"
	"github.com/usernameisnull/meridian/internal/store/types"
	"github.com/usernameisnull/meridian/internal/wire"
)

// Router implements chatsession.Dispatcher, switching on opcode the way
// the teacher's Session.dispatch switches on message shape (session.go).
type Router struct {
	Hub *hub.Hub
}

func New(h *hub.Hub) *Router {
	return &Router{Hub: h}
}

// PrimeSession sends the three priming frames spec §4.5 requires right
// after a session is constructed and registered: the roster of every
// registered user (online or not), the caller's current chat list, and a
// user-id echo.
func (r *Router) PrimeSession(sess *chatsession.Session) {
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpUserJoined, Users: r.onlineRoster()})
	r.sendChatList(sess)
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpEchoUserID, UserID: int64(sess.UserID)})
}

func (r *Router) onlineRoster() []wire.UserSummary {
	// Hub has no direct "list all live sessions" accessor exposed publicly
	// beyond SessionFor/BroadcastToAll; PrimeSession only needs names, which
	// the store can provide cheaply via search with an empty substring.
	users, err := r.Hub.Store.SearchUsersByName("")
	if err != nil {
		return nil
	}
	out := make([]wire.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, wire.UserSummary{UserID: int64(u.UserID), UserName: u.Name})
	}
	return out
}

// BroadcastUserJoined is invoked once, right after registration, per spec
// §8 scenario 1 ("hub broadcasts topic:0, user_id, user_name").
func (r *Router) BroadcastUserJoined(uid types.UserID, name string) {
	r.Hub.BroadcastToAll(&wire.ServerMessage{
		Topic:    wire.OpUserJoined,
		UserID:   int64(uid),
		UserName: name,
	})
}

// Dispatch satisfies chatsession.Dispatcher.
func (r *Router) Dispatch(sess *chatsession.Session, msg *wire.ClientMessage) {
	switch msg.Ty {
	case wire.OpSubscribe:
		r.handleSubscribe(sess, msg)
	case wire.OpListChats:
		r.sendChatList(sess)
	case wire.OpPostMessage:
		r.handlePostMessage(sess, msg)
	case wire.OpCreateChat:
		r.handleCreateChat(sess, msg)
	case wire.OpGetHistory:
		r.handleGetHistory(sess, msg)
	case wire.OpDeleteAccount:
		r.handleDeleteAccount(sess)
	case wire.OpInvite:
		r.handleInvite(sess, msg)
	case wire.OpListMembers:
		r.handleListMembers(sess)
	case wire.OpSearchUsers:
		r.handleSearchUsers(sess, msg)
	case wire.OpAddFriend:
		r.handleAddFriend(sess, msg)
	case wire.OpListFriends:
		r.handleListFriends(sess)
	case wire.OpAcceptFriendRequest:
		r.handleAcceptFriendRequest(sess, msg)
	case wire.OpRejectFriendRequest:
		r.handleRejectFriendRequest(sess, msg)
	case wire.OpDeleteFriend:
		r.handleDeleteFriend(sess, msg)
	case wire.OpUpdateAccount:
		r.handleUpdateAccount(sess, msg)
	case wire.OpDeleteVoiceChat:
		r.handleDeleteVoiceChat(sess, msg)
	case wire.OpLogout:
		r.handleLogout(sess)
	default:
		log.Printf("router: unknown opcode %d from session %s", msg.Ty, sess.SID)
		sess.QueueOut(wire.Err(msg.Ty, "unknown opcode"))
	}
}

// SessionClosed releases sess's hub/topic registration (spec §4.5, §4.6).
func (r *Router) SessionClosed(sess *chatsession.Session) {
	r.Hub.Leave(sess)
}

func storeErrMessage(topic int, err error) *wire.ServerMessage {
	return wire.Err(topic, err.Error())
}

// ---- Subscribe / list chats -------------------------------------------------

func (r *Router) handleSubscribe(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID := types.ChatID(msg.To)
	member, err := r.Hub.Store.IsMember(chatID, sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpSubscribe, err))
		return
	}
	if !member {
		sess.QueueOut(wire.Err(wire.OpSubscribe, "not a member of this chat"))
		return
	}

	// Replace any prior subscription: leave first, then join (spec §4.7).
	// Re-subscribing to the same chat is a no-op past this point, matching
	// spec §8's "subscribing to the same chat twice" idempotence property.
	if prev := sess.SubscribedChat(); prev != types.NoChat && prev != chatID {
		r.Hub.Topic.Leave(prev, sess)
	}
	r.Hub.Topic.Join(chatID, sess)
	sess.SetSubscribedChat(chatID)

	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpSubscribe, Status: wire.StatusSubscribed, ChatID: int64(chatID)})
}

func (r *Router) sendChatList(sess *chatsession.Session) {
	chats, err := r.Hub.Store.ListChatsFor(sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpListChats, err))
		return
	}
	out := make([]wire.ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, wire.ChatSummary{ChatID: int64(c.ChatID), ChatName: c.Name, IsVoiceChat: c.IsVoice})
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpListChats, Chats: out})
}

// ---- Post message ------------------------------------------------------

func (r *Router) handlePostMessage(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID := types.ChatID(msg.To)
	if sess.SubscribedChat() != chatID || chatID == types.NoChat {
		sess.QueueOut(wire.Err(wire.OpPostMessage, "not subscribed to this chat"))
		return
	}
	if strings.TrimSpace(msg.Msg) == "" {
		sess.QueueOut(wire.Err(wire.OpPostMessage, "message text must not be empty"))
		return
	}

	// Memberships may have changed since subscribe; re-check (spec §4.7).
	member, err := r.Hub.Store.IsMember(chatID, sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpPostMessage, err))
		return
	}
	if !member {
		sess.QueueOut(wire.Err(wire.OpPostMessage, "no longer a member of this chat"))
		return
	}

	msgID, ts, err := r.Hub.Store.AppendMessage(chatID, sess.UserID, msg.Msg)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpPostMessage, err))
		return
	}
	metrics.MessagesTotal.Inc()

	r.Hub.BroadcastToChat(chatID, &wire.ServerMessage{
		Topic:    wire.OpPostMessage,
		UserName: sess.Name,
		Text:     msg.Msg,
		Date:     ts,
		MsgID:    int64(msgID),
	})
}

// ---- Create chat / invite -----------------------------------------------

func (r *Router) handleCreateChat(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID, err := r.Hub.Store.CreateChat(sess.UserID, msg.ChatName, msg.IsVoiceChat)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpCreateChat, err))
		return
	}

	if len(msg.Invited) > 0 {
		invitees := make([]types.UserID, len(msg.Invited))
		for i, id := range msg.Invited {
			invitees[i] = types.UserID(id)
		}
		added, err := r.Hub.Store.AddMembers(chatID, sess.UserID, invitees)
		if err == nil {
			for _, uid := range added {
				r.Hub.NotifyChatInvite(uid, chatID, msg.ChatName, msg.IsVoiceChat)
			}
		}
	}

	sess.QueueOut(&wire.ServerMessage{
		Topic:       wire.OpCreateChat,
		ChatID:      int64(chatID),
		ChatName:    msg.ChatName,
		IsVoiceChat: msg.IsVoiceChat,
	})
}

func (r *Router) handleInvite(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID := types.ChatID(msg.ChatIDCamel)
	member, err := r.Hub.Store.IsMember(chatID, sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpInvite, err))
		return
	}
	if !member {
		sess.QueueOut(wire.Err(wire.OpInvite, "not a member of this chat"))
		return
	}

	invitees := make([]types.UserID, 0, len(msg.Invited))
	for _, id := range msg.Invited {
		if types.UserID(id) != sess.UserID {
			invitees = append(invitees, types.UserID(id))
		}
	}
	added, err := r.Hub.Store.AddMembers(chatID, sess.UserID, invitees)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpInvite, err))
		return
	}

	invitedIDs := make([]int64, 0, len(added))
	for _, uid := range added {
		invitedIDs = append(invitedIDs, int64(uid))
		r.Hub.NotifyChatInvite(uid, chatID, msg.ChatName, msg.IsVoiceChat)
	}

	// The reference client's invite-confirmation handler falls back to
	// matching obj["user_id"] against its own id, so the inviter's id must
	// be present on the reply too (original_source/server/shared_state.cpp
	// sets obj["user_id"] = parentUser for this same frame).
	sess.QueueOut(&wire.ServerMessage{
		Topic:    wire.OpInvite,
		ChatID:   int64(chatID),
		ChatName: msg.ChatName,
		UserID:   int64(sess.UserID),
		Invited:  invitedIDs,
	})
}

// ---- Reads ---------------------------------------------------------------

func (r *Router) handleGetHistory(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID := types.ChatID(msg.To)
	msgs, err := r.Hub.Store.ListMessages(chatID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpGetHistory, err))
		return
	}
	out := make([]wire.MessageView, 0, len(msgs))
	for _, m := range msgs {
		name, _ := r.Hub.Store.UserName(m.UserID)
		out = append(out, wire.MessageView{
			MsgID: int64(m.ID), UserID: int64(m.UserID), UserName: name,
			Text: m.Text, Date: m.CreatedAtMs,
		})
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpGetHistory, Messages: out})
}

func (r *Router) handleListMembers(sess *chatsession.Session) {
	chatID := sess.SubscribedChat()
	if chatID == types.NoChat {
		sess.QueueOut(wire.Err(wire.OpListMembers, "not subscribed to any chat"))
		return
	}
	members, err := r.Hub.Store.ListMembers(chatID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpListMembers, err))
		return
	}
	out := make([]wire.UserSummary, 0, len(members))
	for _, m := range members {
		out = append(out, wire.UserSummary{UserID: int64(m.UserID), UserName: m.Name})
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpListMembers, Users: out})
}

func (r *Router) handleSearchUsers(sess *chatsession.Session, msg *wire.ClientMessage) {
	users, err := r.Hub.Store.SearchUsersByName(msg.SearchTerm)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpSearchUsers, err))
		return
	}
	out := make([]wire.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, wire.UserSummary{UserID: int64(u.UserID), UserName: u.Name})
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpSearchUsers, Users: out})
}

// ---- Friendship state machine --------------------------------------------

func (r *Router) handleAddFriend(sess *chatsession.Session, msg *wire.ClientMessage) {
	friendID := types.UserID(msg.FriendID)
	err := r.Hub.Store.SendFriendRequest(sess.UserID, friendID)
	if err != nil {
		switch store.KindOf(err) {
		case store.KindConflictingState:
			sess.QueueOut(wire.Err(wire.OpAddFriend, "already friends"))
			return
		case store.KindInvalidArgument:
			sess.QueueOut(wire.Err(wire.OpAddFriend, "cannot friend yourself"))
			return
		case store.KindNotFound:
			sess.QueueOut(wire.Err(wire.OpAddFriend, "unknown user"))
			return
		default:
			sess.QueueOut(storeErrMessage(wire.OpAddFriend, err))
			return
		}
	}
	// Success, including the idempotent "already pending" case (spec §4.7
	// "Duplicate add-friend... idempotent, reply request_sent again").
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpAddFriend, Status: wire.StatusRequestSent, FriendID: msg.FriendID})
	r.Hub.NotifyFriendRequest(friendID, sess.UserID, sess.Name)
}

func (r *Router) handleListFriends(sess *chatsession.Session) {
	friends, err := r.Hub.Store.ListFriends(sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpListFriends, err))
		return
	}
	pending, err := r.Hub.Store.ListPendingRequests(sess.UserID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpListFriends, err))
		return
	}
	friendsOut := make([]wire.FriendSummary, 0, len(friends))
	for _, f := range friends {
		friendsOut = append(friendsOut, wire.FriendSummary{FriendID: int64(f.UserID), FriendName: f.Name})
	}
	reqOut := make([]wire.FriendSummary, 0, len(pending))
	for _, p := range pending {
		reqOut = append(reqOut, wire.FriendSummary{FriendID: int64(p.RequesterID), FriendName: p.Name})
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpListFriends, Friends: friendsOut, FriendRequests: reqOut})
}

func (r *Router) handleAcceptFriendRequest(sess *chatsession.Session, msg *wire.ClientMessage) {
	requester := types.UserID(msg.FriendID)
	if err := r.Hub.Store.AcceptFriendRequest(sess.UserID, requester); err != nil {
		sess.QueueOut(wire.Err(wire.OpAcceptFriendRequest, "no pending request"))
		return
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpAcceptFriendRequest, Status: wire.StatusAccepted, FriendID: msg.FriendID})
	r.Hub.NotifyFriendAccepted(requester, sess.UserID)
}

// handleRejectFriendRequest deletes the pending row. Per DESIGN.md's
// resolution of spec §9 Open Question 1, no reply is ever sent — neither
// on success nor failure.
func (r *Router) handleRejectFriendRequest(sess *chatsession.Session, msg *wire.ClientMessage) {
	_ = r.Hub.Store.RejectFriendRequest(sess.UserID, types.UserID(msg.FriendID))
}

func (r *Router) handleDeleteFriend(sess *chatsession.Session, msg *wire.ClientMessage) {
	_, err := r.Hub.Store.DeleteFriend(sess.UserID, types.UserID(msg.FriendID))
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpDeleteFriend, err))
		return
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpDeleteFriend, Status: wire.StatusSuccess})
}

// ---- Account lifecycle ----------------------------------------------------

func (r *Router) handleUpdateAccount(sess *chatsession.Session, msg *wire.ClientMessage) {
	if msg.Name == nil && msg.Password == nil {
		sess.QueueOut(wire.Err(wire.OpUpdateAccount, "at least one field must be present"))
		return
	}
	if err := r.Hub.Store.UpdateAccount(sess.UserID, msg.Name, msg.Password); err != nil {
		sess.QueueOut(storeErrMessage(wire.OpUpdateAccount, err))
		return
	}
	reply := &wire.ServerMessage{Topic: wire.OpUpdateAccount, Status: wire.StatusSuccess}
	if msg.Name != nil {
		sess.Name = *msg.Name
		reply.Name = *msg.Name
	}
	sess.QueueOut(reply)
}

func (r *Router) handleDeleteAccount(sess *chatsession.Session) {
	if err := r.Hub.Store.DeleteAccount(sess.UserID); err != nil {
		sess.QueueOut(storeErrMessage(wire.OpDeleteAccount, err))
		return
	}
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpDeleteAccount, Status: wire.StatusSuccess})
	r.Hub.BroadcastToAll(&wire.ServerMessage{Topic: wire.OpDeleteAccount, Status: wire.StatusSuccess, UserID: int64(sess.UserID)})
	sess.Close()
}

func (r *Router) handleDeleteVoiceChat(sess *chatsession.Session, msg *wire.ClientMessage) {
	chatID := types.ChatID(msg.ChatIDSnake)
	members, err := r.Hub.Store.DeleteVoiceChat(sess.UserID, chatID)
	if err != nil {
		sess.QueueOut(storeErrMessage(wire.OpDeleteVoiceChat, err))
		return
	}
	r.Hub.Topic.Drop(chatID)
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpDeleteVoiceChat, Status: wire.StatusSuccess, ChatID: int64(chatID)})
	for _, m := range members {
		if m.UserID == sess.UserID {
			continue
		}
		r.Hub.NotifyVoiceChatDeleted(m.UserID, m.Name, chatID)
	}
}

func (r *Router) handleLogout(sess *chatsession.Session) {
	sess.QueueOut(&wire.ServerMessage{Topic: wire.OpLogout, Status: wire.StatusSuccess})
	sess.Close()
}
