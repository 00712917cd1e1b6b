package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	login         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	admin_user_id INTEGER NOT NULL REFERENCES users(id),
	is_voice      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_in_chat (
	chat_id INTEGER NOT NULL REFERENCES chat(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS message (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id       INTEGER NOT NULL REFERENCES chat(id),
	user_id       INTEGER NOT NULL REFERENCES users(id),
	text          TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS message_chat_order ON message(chat_id, created_at_ms, id);

CREATE TABLE IF NOT EXISTS friends (
	user_a INTEGER NOT NULL REFERENCES users(id),
	user_b INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (user_a, user_b)
);

CREATE TABLE IF NOT EXISTS friend_requests (
	requester_id INTEGER NOT NULL REFERENCES users(id),
	requested_id INTEGER NOT NULL REFERENCES users(id),
	status       TEXT NOT NULL,
	PRIMARY KEY (requester_id, requested_id)
);
`

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return wrapErr(KindStoreError, "creating schema", err)
	}
	return nil
}
