// Package hub is the hub / shared state (spec §4.6): the process-wide
// index of live sessions by user id, coordinating cross-session
// notifications and owning the topic registry.
package hub

import (
	"sync"

	"github.com/usernameisnull/meridian/internal/chatsession"
	"github.com/usernameisnull/meridian/internal/metrics"
	"github.com/usernameisnull/meridian/internal/store"
	"github.com/usernameisnull/meridian/internal/store/types"
	"github.com/usernameisnull/meridian/internal/topic"
	"github.com/usernameisnull/meridian/internal/wire"
)

// Hub owns the live-sessions index and the topic registry (spec §4.6). A
// single outer mutex guards structural changes to the index; per-chat
// subscriber mutation is delegated to the topic.Registry (spec §5).
type Hub struct {
	Store *store.Store
	Topic *topic.Registry[*chatsession.Session]

	mu       sync.Mutex
	sessions map[types.UserID]*chatsession.Session
}

// New creates a hub backed by s. Initialization must happen before the
// first connection is accepted (spec §9 "global mutable state").
func New(s *store.Store) *Hub {
	return &Hub{
		Store:    s,
		Topic:    topic.New[*chatsession.Session](),
		sessions: make(map[types.UserID]*chatsession.Session),
	}
}

// Join registers sess as the live session for its user id (spec invariant
// 1). A user may have at most one live session; a new one replaces and
// evicts any prior session for the same id.
func (h *Hub) Join(sess *chatsession.Session) {
	h.mu.Lock()
	prev := h.sessions[sess.UserID]
	h.sessions[sess.UserID] = sess
	h.mu.Unlock()

	// A replaced session's later Leave does not decrement, so only a user's
	// first live session counts toward the gauge.
	if prev == nil {
		metrics.SessionsLive.Inc()
	}

	if prev != nil && prev != sess {
		prev.Close()
	}
}

// Leave removes sess from the index, cascading to the topic registry.
// Idempotent: leaving an already-absent session is a no-op (spec §4.6).
func (h *Hub) Leave(sess *chatsession.Session) {
	h.mu.Lock()
	cur, ok := h.sessions[sess.UserID]
	if ok && cur == sess {
		delete(h.sessions, sess.UserID)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if chatID := sess.SubscribedChat(); chatID != types.NoChat {
		h.Topic.Leave(chatID, sess)
	}

	if ok {
		metrics.SessionsLive.Dec()
	}
}

// SessionFor returns the live session for uid, or nil if offline.
func (h *Hub) SessionFor(uid types.UserID) *chatsession.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[uid]
}

// SendToUser enqueues msg on uid's live session; a no-op if uid is
// offline (spec §4.6).
func (h *Hub) SendToUser(uid types.UserID, msg *wire.ServerMessage) {
	if sess := h.SessionFor(uid); sess != nil {
		sess.QueueOut(msg)
	}
}

// BroadcastToAll enqueues msg on every currently live session.
func (h *Hub) BroadcastToAll(msg *wire.ServerMessage) {
	h.mu.Lock()
	targets := make([]*chatsession.Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		targets = append(targets, sess)
	}
	h.mu.Unlock()

	for _, sess := range targets {
		sess.QueueOut(msg)
	}
}

// BroadcastToChat enqueues msg on every session currently subscribed to
// chatID, built on the topic registry's stable snapshot so the send loop
// never holds the subscriber-set lock during I/O (spec §4.4, §9).
func (h *Hub) BroadcastToChat(chatID types.ChatID, msg *wire.ServerMessage) {
	for _, sess := range h.Topic.Snapshot(chatID) {
		sess.QueueOut(msg)
	}
}

// NotifyFriendRequest delivers a new-friend-request notification to the
// recipient, if online (spec §4.6).
func (h *Hub) NotifyFriendRequest(recipient, requester types.UserID, requesterName string) {
	h.SendToUser(recipient, &wire.ServerMessage{
		Topic:      wire.OpNewFriendRequest,
		FriendID:   int64(requester),
		FriendName: requesterName,
	})
}

// NotifyFriendAccepted delivers an accepted-friendship notification to the
// original requester.
func (h *Hub) NotifyFriendAccepted(requester, acceptor types.UserID) {
	h.SendToUser(requester, &wire.ServerMessage{
		Topic:    wire.OpAcceptFriendRequest,
		Status:   wire.StatusAccepted,
		FriendID: int64(acceptor),
	})
}

// NotifyChatInvite delivers a chat-invitation notification to one invitee.
func (h *Hub) NotifyChatInvite(invitee types.UserID, chatID types.ChatID, chatName string, isVoice bool) {
	h.SendToUser(invitee, &wire.ServerMessage{
		Topic:       wire.OpInvite,
		ChatID:      int64(chatID),
		ChatName:    chatName,
		IsVoiceChat: isVoice,
	})
}

// NotifyVoiceChatDeleted delivers a chat-deletion notification to member,
// satisfying spec §8 property 6.
func (h *Hub) NotifyVoiceChatDeleted(member types.UserID, memberName string, chatID types.ChatID) {
	h.SendToUser(member, &wire.ServerMessage{
		Topic:    wire.OpDeletedFromChat,
		UserID:   int64(member),
		UserName: memberName,
	})
}
