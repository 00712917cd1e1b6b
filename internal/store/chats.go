package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/usernameisnull/meridian/internal/store/types"
)

// CreateChat inserts a chat row and immediately adds admin as a member
// (spec §4.1).
func (s *Store) CreateChat(admin types.UserID, name string, isVoice bool) (types.ChatID, error) {
	var chatID types.ChatID
	err := s.withTx(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`INSERT INTO chat (name, admin_user_id, is_voice) VALUES (?, ?, ?)`,
			name, admin, isVoice)
		if err != nil {
			return wrapErr(KindStoreError, "create chat", err)
		}
		id, _ := res.LastInsertId()
		chatID = types.ChatID(id)
		if _, err := tx.Exec(`INSERT INTO user_in_chat (chat_id, user_id) VALUES (?, ?)`, chatID, admin); err != nil {
			return wrapErr(KindStoreError, "add creator membership", err)
		}
		return nil
	})
	return chatID, err
}

// AddMembers pre-filters invitees to existing users not already in chat_id
// and not parentUser itself, then inserts memberships with insert-or-ignore
// semantics. Returns the ids actually inserted.
func (s *Store) AddMembers(chatID types.ChatID, parentUser types.UserID, invitees []types.UserID) ([]types.UserID, error) {
	var inserted []types.UserID
	err := s.withTx(func(tx *sqlx.Tx) error {
		for _, uid := range invitees {
			if uid == parentUser {
				continue
			}
			var exists int
			if err := tx.Get(&exists, `SELECT COUNT(*) FROM users WHERE id = ?`, uid); err != nil {
				return wrapErr(KindStoreError, "checking invitee", err)
			}
			if exists == 0 {
				continue
			}
			var already int
			if err := tx.Get(&already, `SELECT COUNT(*) FROM user_in_chat WHERE chat_id = ? AND user_id = ?`, chatID, uid); err != nil {
				return wrapErr(KindStoreError, "checking membership", err)
			}
			if already > 0 {
				continue
			}
			if _, err := tx.Exec(`INSERT OR IGNORE INTO user_in_chat (chat_id, user_id) VALUES (?, ?)`, chatID, uid); err != nil {
				return wrapErr(KindStoreError, "add member", err)
			}
			inserted = append(inserted, uid)
		}
		return nil
	})
	return inserted, err
}

// ListChatsFor returns every chat uid belongs to.
func (s *Store) ListChatsFor(uid types.UserID) ([]types.ChatView, error) {
	var out []types.ChatView
	err := s.db.Select(&out, `
		SELECT c.id, c.name, c.is_voice FROM chat c
		JOIN user_in_chat m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.id`, uid)
	if err != nil {
		return nil, wrapErr(KindStoreError, "list chats", err)
	}
	return out, nil
}

// ListMembers returns every (user id, name) pair in chatID.
func (s *Store) ListMembers(chatID types.ChatID) ([]types.MemberView, error) {
	var out []types.MemberView
	err := s.db.Select(&out, `
		SELECT u.id, u.name FROM users u
		JOIN user_in_chat m ON m.user_id = u.id
		WHERE m.chat_id = ?
		ORDER BY u.id`, chatID)
	if err != nil {
		return nil, wrapErr(KindStoreError, "list members", err)
	}
	return out, nil
}

// IsMember reports whether uid currently belongs to chatID — used by the
// router to re-check membership at post-message time (spec §4.7), since
// it may have changed since subscribe.
func (s *Store) IsMember(chatID types.ChatID, uid types.UserID) (bool, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM user_in_chat WHERE chat_id = ? AND user_id = ?`, chatID, uid)
	if err != nil {
		return false, wrapErr(KindStoreError, "check membership", err)
	}
	return count > 0, nil
}

// RemoveMembership removes uid from chatID.
func (s *Store) RemoveMembership(chatID types.ChatID, uid types.UserID) error {
	_, err := s.db.Exec(`DELETE FROM user_in_chat WHERE chat_id = ? AND user_id = ?`, chatID, uid)
	if err != nil {
		return wrapErr(KindStoreError, "remove membership", err)
	}
	return nil
}

// DeleteVoiceChat removes a voice chat and its memberships; only the chat's
// admin may do this (spec §4.7). Returns the prior members (id and name),
// read inside the transaction before their rows are deleted, so the caller
// can notify them.
func (s *Store) DeleteVoiceChat(uid types.UserID, chatID types.ChatID) ([]types.MemberView, error) {
	var members []types.MemberView
	err := s.withTx(func(tx *sqlx.Tx) error {
		var c types.Chat
		err := tx.Get(&c, `SELECT id, name, admin_user_id, is_voice FROM chat WHERE id = ?`, chatID)
		if err == sql.ErrNoRows {
			return newErr(KindNotFound, "no such chat")
		}
		if err != nil {
			return wrapErr(KindStoreError, "load chat", err)
		}
		if !c.IsVoice {
			return newErr(KindInvalidArgument, "not a voice chat")
		}
		if c.AdminUserID != uid {
			return newErr(KindUnauthorized, "only the admin may delete this chat")
		}
		if err := tx.Select(&members, `
			SELECT u.id, u.name FROM users u
			JOIN user_in_chat m ON m.user_id = u.id
			WHERE m.chat_id = ?`, chatID); err != nil {
			return wrapErr(KindStoreError, "list members", err)
		}
		if _, err := tx.Exec(`DELETE FROM user_in_chat WHERE chat_id = ?`, chatID); err != nil {
			return wrapErr(KindStoreError, "remove memberships", err)
		}
		if _, err := tx.Exec(`DELETE FROM chat WHERE id = ?`, chatID); err != nil {
			return wrapErr(KindStoreError, "delete chat", err)
		}
		return nil
	})
	return members, err
}
