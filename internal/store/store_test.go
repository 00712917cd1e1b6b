package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/usernameisnull/meridian/internal/store/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "meridian.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustRegister(t *testing.T, s *Store, login, password, name string) types.UserID {
	t.Helper()
	uid, _, err := s.Register(login, password, name)
	if err != nil {
		t.Fatalf("Register(%s): %v", login, err)
	}
	return uid
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newTestStore(t)

	uid := mustRegister(t, s, "alice", "p", "Alice")
	if uid == types.ZeroUser {
		t.Fatalf("expected non-zero user id")
	}

	got, err := s.Authenticate("alice", "p")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != uid {
		t.Fatalf("Authenticate returned %v, want %v", got, uid)
	}

	if _, err := s.Authenticate("alice", "wrong"); KindOf(err) != KindInvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
}

func TestRegisterDuplicateLogin(t *testing.T) {
	s := newTestStore(t)
	mustRegister(t, s, "alice", "p", "Alice")
	if _, _, err := s.Register("alice", "p2", "Alice Two"); KindOf(err) != KindAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestCreateChatAndMembership(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	bob := mustRegister(t, s, "bob", "p", "Bob")

	chatID, err := s.CreateChat(alice, "room", false)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	member, err := s.IsMember(chatID, alice)
	if err != nil || !member {
		t.Fatalf("creator should be a member: member=%v err=%v", member, err)
	}

	added, err := s.AddMembers(chatID, alice, []types.UserID{bob, alice, 9999})
	if err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	if len(added) != 1 || added[0] != bob {
		t.Fatalf("expected only bob added, got %v", added)
	}

	members, err := s.ListMembers(chatID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	want := []types.MemberView{{UserID: alice, Name: "Alice"}, {UserID: bob, Name: "Bob"}}
	if diff := cmp.Diff(want, members); diff != "" {
		t.Fatalf("ListMembers mismatch (-want +got):\n%s", diff)
	}

	if err := s.RemoveMembership(chatID, bob); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	member, _ = s.IsMember(chatID, bob)
	if member {
		t.Fatalf("bob should no longer be a member")
	}
}

func TestAppendAndListMessagesOrdered(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	chatID, err := s.CreateChat(alice, "room", false)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	id1, _, err := s.AppendMessage(chatID, alice, "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	id2, _, err := s.AppendMessage(chatID, alice, "there")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.ListMessages(chatID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != id1 || msgs[1].ID != id2 {
		t.Fatalf("unexpected message order: %+v", msgs)
	}
}

func TestFriendshipStateMachine(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	bob := mustRegister(t, s, "bob", "p", "Bob")

	if err := s.SendFriendRequest(alice, alice); KindOf(err) != KindInvalidArgument {
		t.Fatalf("self-request should be InvalidArgument, got %v", err)
	}
	if err := s.SendFriendRequest(alice, 9999); KindOf(err) != KindNotFound {
		t.Fatalf("unknown target should be NotFound, got %v", err)
	}

	if err := s.SendFriendRequest(alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	// Idempotent: duplicate send while pending must not error.
	if err := s.SendFriendRequest(alice, bob); err != nil {
		t.Fatalf("duplicate SendFriendRequest should be idempotent: %v", err)
	}

	pending, err := s.ListPendingRequests(bob)
	if err != nil || len(pending) != 1 || pending[0].RequesterID != alice {
		t.Fatalf("unexpected pending requests: %+v (err %v)", pending, err)
	}

	if err := s.AcceptFriendRequest(bob, alice); err != nil {
		t.Fatalf("AcceptFriendRequest: %v", err)
	}

	aliceFriends, err := s.ListFriends(alice)
	if err != nil || len(aliceFriends) != 1 || aliceFriends[0].UserID != bob {
		t.Fatalf("alice's friends: %+v (err %v)", aliceFriends, err)
	}
	bobFriends, err := s.ListFriends(bob)
	if err != nil || len(bobFriends) != 1 || bobFriends[0].UserID != alice {
		t.Fatalf("friends(b,a) should match friends(a,b): %+v (err %v)", bobFriends, err)
	}

	if err := s.SendFriendRequest(alice, bob); KindOf(err) != KindConflictingState {
		t.Fatalf("add-friend while already friends should conflict, got %v", err)
	}

	changed, err := s.DeleteFriend(alice, bob)
	if err != nil || changed == 0 {
		t.Fatalf("DeleteFriend: changed=%d err=%v", changed, err)
	}
	aliceFriends, _ = s.ListFriends(alice)
	if len(aliceFriends) != 0 {
		t.Fatalf("expected no friends after delete, got %+v", aliceFriends)
	}
}

func TestRejectFriendRequest(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	bob := mustRegister(t, s, "bob", "p", "Bob")

	if err := s.SendFriendRequest(alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	if err := s.RejectFriendRequest(bob, alice); err != nil {
		t.Fatalf("RejectFriendRequest: %v", err)
	}
	pending, _ := s.ListPendingRequests(bob)
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests after reject, got %+v", pending)
	}
	if err := s.RejectFriendRequest(bob, alice); KindOf(err) != KindNotFound {
		t.Fatalf("rejecting twice should be NotFound, got %v", err)
	}
}

func TestDeleteAccountCascade(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	bob := mustRegister(t, s, "bob", "p", "Bob")

	chatID, err := s.CreateChat(alice, "room", false)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := s.AddMembers(chatID, alice, []types.UserID{bob}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	if _, _, err := s.AppendMessage(chatID, alice, "hi"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.SendFriendRequest(alice, bob); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	if err := s.AcceptFriendRequest(bob, alice); err != nil {
		t.Fatalf("AcceptFriendRequest: %v", err)
	}

	if err := s.DeleteAccount(alice); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	if _, err := s.Authenticate("alice", "p"); err == nil {
		t.Fatalf("deleted user should no longer authenticate")
	}
	member, _ := s.IsMember(chatID, alice)
	if member {
		t.Fatalf("deleted user should no longer be a member")
	}
	friends, _ := s.ListFriends(bob)
	if len(friends) != 0 {
		t.Fatalf("friendship should be gone after account deletion, got %+v", friends)
	}
	msgs, _ := s.ListMessages(chatID)
	if len(msgs) != 0 {
		t.Fatalf("messages by deleted user should be gone, got %+v", msgs)
	}
}

func TestDeleteVoiceChatAuthorization(t *testing.T) {
	s := newTestStore(t)
	alice := mustRegister(t, s, "alice", "p", "Alice")
	bob := mustRegister(t, s, "bob", "p", "Bob")

	chatID, err := s.CreateChat(alice, "voice room", true)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := s.AddMembers(chatID, alice, []types.UserID{bob}); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}

	if _, err := s.DeleteVoiceChat(bob, chatID); KindOf(err) != KindUnauthorized {
		t.Fatalf("non-admin delete should be Unauthorized, got %v", err)
	}

	textChat, err := s.CreateChat(alice, "text room", false)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := s.DeleteVoiceChat(alice, textChat); KindOf(err) != KindInvalidArgument {
		t.Fatalf("deleting a non-voice chat should be InvalidArgument, got %v", err)
	}

	members, err := s.DeleteVoiceChat(alice, chatID)
	if err != nil {
		t.Fatalf("DeleteVoiceChat: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 prior members returned, got %+v", members)
	}
}

func TestSearchUsersByNameCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	mustRegister(t, s, "alice", "p", "Alice Anderson")
	mustRegister(t, s, "bob", "p", "Bob Baker")

	results, err := s.SearchUsersByName("ali")
	if err != nil {
		t.Fatalf("SearchUsersByName: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Alice Anderson" {
		t.Fatalf("unexpected search results: %+v", results)
	}
}
