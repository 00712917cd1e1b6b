package router

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/usernameisnull/meridian/internal/chatsession"
	"github.com/usernameisnull/meridian/internal/hub"
	"github.com/usernameisnull/meridian/internal/store"
	"github.com/usernameisnull/meridian/internal/store/types"
	"github.com/usernameisnull/meridian/internal/wire"
)

// testPeer is a client-side observer wired to one session's server-side
// WebSocket over an in-memory pipe, so tests can read whatever the router
// queues without spinning up a real HTTP upgrade.
type testPeer struct {
	sess   *chatsession.Session
	client *websocket.Conn
}

func newTestSession(t *testing.T, uid types.UserID, name string, d chatsession.Dispatcher) *testPeer {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	serverWS := websocket.NewConn(serverConn, true, 0, 0)
	clientWS := websocket.NewConn(clientConn, false, 0, 0)

	sess := chatsession.New(serverWS, uid, name, d)
	go sess.WritePump()
	t.Cleanup(sess.Close)

	return &testPeer{sess: sess, client: clientWS}
}

func (p *testPeer) recv(t *testing.T) *wire.ServerMessage {
	t.Helper()
	p.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := p.client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wire.ServerMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return &m
}

func newTestRouter(t *testing.T) (*Router, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "meridian.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	h := hub.New(s)
	return New(h), s
}

func TestSubscribeThenPostMessageBroadcasts(t *testing.T) {
	r, s := newTestRouter(t)

	alice, _, err := s.Register("alice", "pw", "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	bob, _, err := s.Register("bob", "pw", "Bob")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	chatID, err := s.CreateChat(alice, "room", false)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := s.AddMembers(chatID, alice, []types.UserID{bob}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}

	aliceSess := newTestSession(t, alice, "Alice", r)
	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(aliceSess.sess)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpSubscribe, To: int64(chatID)})
	if got := aliceSess.recv(t); got.Status != wire.StatusSubscribed || got.ChatID != int64(chatID) {
		t.Fatalf("unexpected subscribe reply: %+v", got)
	}

	r.Dispatch(bobSess.sess, &wire.ClientMessage{Ty: wire.OpSubscribe, To: int64(chatID)})
	bobSess.recv(t)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpPostMessage, To: int64(chatID), Msg: "hello"})

	aliceGot := aliceSess.recv(t)
	if aliceGot.Topic != wire.OpPostMessage || aliceGot.Text != "hello" || aliceGot.UserName != "Alice" {
		t.Fatalf("unexpected broadcast to sender: %+v", aliceGot)
	}
	bobGot := bobSess.recv(t)
	if bobGot.Topic != wire.OpPostMessage || bobGot.Text != "hello" {
		t.Fatalf("unexpected broadcast to other subscriber: %+v", bobGot)
	}
}

func TestPostMessageRejectedWhenNotSubscribed(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	chatID, _ := s.CreateChat(alice, "room", false)

	aliceSess := newTestSession(t, alice, "Alice", r)
	r.Hub.Join(aliceSess.sess)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpPostMessage, To: int64(chatID), Msg: "hi"})
	got := aliceSess.recv(t)
	if got.Status != wire.StatusError {
		t.Fatalf("expected an error reply, got %+v", got)
	}
}

func TestAddFriendNotifiesOnlineRecipient(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")

	aliceSess := newTestSession(t, alice, "Alice", r)
	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(aliceSess.sess)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpAddFriend, FriendID: int64(bob)})

	aliceGot := aliceSess.recv(t)
	if aliceGot.Status != wire.StatusRequestSent {
		t.Fatalf("unexpected add-friend reply: %+v", aliceGot)
	}
	bobGot := bobSess.recv(t)
	if bobGot.Topic != wire.OpNewFriendRequest || bobGot.FriendID != int64(alice) || bobGot.FriendName != "Alice" {
		t.Fatalf("unexpected friend-request notification: %+v", bobGot)
	}
}

func TestRejectFriendRequestSendsNoReply(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")
	if err := s.SendFriendRequest(alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}

	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(bobSess.sess, &wire.ClientMessage{Ty: wire.OpRejectFriendRequest, FriendID: int64(alice)})

	// Immediately request something else so we can detect whether a stray
	// reply frame for the reject was queued ahead of it.
	r.Dispatch(bobSess.sess, &wire.ClientMessage{Ty: wire.OpListFriends})
	got := bobSess.recv(t)
	if got.Topic != wire.OpListFriends {
		t.Fatalf("expected the list-friends reply to be the only queued frame, got %+v", got)
	}

	pending, err := s.ListPendingRequests(bob)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected the pending request to be gone, got %+v (err %v)", pending, err)
	}
}

func TestDeleteVoiceChatNotifiesRemainingMembersNotSelf(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")
	chatID, err := s.CreateChat(alice, "voice room", true)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := s.AddMembers(chatID, alice, []types.UserID{bob}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}

	aliceSess := newTestSession(t, alice, "Alice", r)
	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(aliceSess.sess)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpDeleteVoiceChat, ChatIDSnake: int64(chatID)})

	aliceGot := aliceSess.recv(t)
	if aliceGot.Topic != wire.OpDeleteVoiceChat || aliceGot.Status != wire.StatusSuccess {
		t.Fatalf("unexpected delete-voice-chat reply: %+v", aliceGot)
	}
	bobGot := bobSess.recv(t)
	if bobGot.Topic != wire.OpDeletedFromChat || bobGot.UserID != int64(bob) {
		t.Fatalf("unexpected member notification: %+v", bobGot)
	}

	member, _ := s.IsMember(chatID, bob)
	if member {
		t.Fatalf("membership should be gone after chat deletion")
	}
}

func TestHandleListMembersUsesUserNameField(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")
	chatID, _ := s.CreateChat(alice, "room", false)
	if _, err := s.AddMembers(chatID, alice, []types.UserID{bob}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}

	aliceSess := newTestSession(t, alice, "Alice", r)
	r.Hub.Join(aliceSess.sess)
	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpSubscribe, To: int64(chatID)})
	aliceSess.recv(t)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpListMembers})
	got := aliceSess.recv(t)
	if got.Topic != wire.OpListMembers || len(got.Users) != 2 {
		t.Fatalf("unexpected list-members reply: %+v", got)
	}
	for _, u := range got.Users {
		if u.UserName == "" {
			t.Fatalf("expected every member's UserName to be populated, got %+v", u)
		}
	}
}

func TestHandleInviteSendsFlatInvitedIDsAndInviterID(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")
	chatID, _ := s.CreateChat(alice, "room", false)

	aliceSess := newTestSession(t, alice, "Alice", r)
	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(aliceSess.sess)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(aliceSess.sess, &wire.ClientMessage{Ty: wire.OpInvite, ChatIDCamel: int64(chatID), Invited: []int64{int64(bob)}})

	got := aliceSess.recv(t)
	if got.Topic != wire.OpInvite || got.UserID != int64(alice) {
		t.Fatalf("expected the inviter's user_id on the reply, got %+v", got)
	}
	if len(got.Invited) != 1 || got.Invited[0] != int64(bob) {
		t.Fatalf("expected a flat invited array [%d], got %+v", bob, got.Invited)
	}

	bobGot := bobSess.recv(t)
	if bobGot.Topic != wire.OpInvite || bobGot.ChatID != int64(chatID) {
		t.Fatalf("unexpected invite notification: %+v", bobGot)
	}
}

func TestHandleSubscribeRejectsNonMember(t *testing.T) {
	r, s := newTestRouter(t)
	alice, _, _ := s.Register("alice", "pw", "Alice")
	bob, _, _ := s.Register("bob", "pw", "Bob")
	chatID, _ := s.CreateChat(alice, "room", false)

	bobSess := newTestSession(t, bob, "Bob", r)
	r.Hub.Join(bobSess.sess)

	r.Dispatch(bobSess.sess, &wire.ClientMessage{Ty: wire.OpSubscribe, To: int64(chatID)})
	got := bobSess.recv(t)
	if got.Status != wire.StatusError {
		t.Fatalf("expected a non-member subscribe to fail, got %+v", got)
	}
}
