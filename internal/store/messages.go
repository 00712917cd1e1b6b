package store

import (
	"github.com/usernameisnull/meridian/internal/store/types"
)

// AppendMessage persists text from uid in chatID at the current time and
// returns the assigned id and timestamp.
func (s *Store) AppendMessage(chatID types.ChatID, uid types.UserID, text string) (types.MessageID, int64, error) {
	ts := nowMs()
	res, err := s.db.Exec(`INSERT INTO message (chat_id, user_id, text, created_at_ms) VALUES (?, ?, ?, ?)`,
		chatID, uid, text, ts)
	if err != nil {
		return 0, 0, wrapErr(KindStoreError, "append message", err)
	}
	id, _ := res.LastInsertId()
	return types.MessageID(id), ts, nil
}

// ListMessages returns every message in chatID ordered by
// (created_at_ms, id), satisfying spec §3 invariant 4.
func (s *Store) ListMessages(chatID types.ChatID) ([]types.Message, error) {
	var out []types.Message
	err := s.db.Select(&out, `
		SELECT id, chat_id, user_id, text, created_at_ms FROM message
		WHERE chat_id = ?
		ORDER BY created_at_ms, id`, chatID)
	if err != nil {
		return nil, wrapErr(KindStoreError, "list messages", err)
	}
	return out, nil
}
