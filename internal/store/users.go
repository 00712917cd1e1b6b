package store

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/usernameisnull/meridian/internal/store/types"
)

// Authenticate looks up login and compares the supplied cleartext password
// against the stored bcrypt digest. It never compares cleartext directly
// (spec §4.2).
func (s *Store) Authenticate(login, password string) (types.UserID, error) {
	var u types.User
	err := s.db.Get(&u, `SELECT id, login, password_hash, name FROM users WHERE login = ?`, login)
	if err == sql.ErrNoRows {
		return types.ZeroUser, newErr(KindInvalidCredentials, "no such user")
	}
	if err != nil {
		return types.ZeroUser, wrapErr(KindStoreError, "authenticate", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return types.ZeroUser, newErr(KindInvalidCredentials, "wrong password")
	}
	return u.ID, nil
}

// UserName returns the display name for uid.
func (s *Store) UserName(uid types.UserID) (string, error) {
	var name string
	err := s.db.Get(&name, `SELECT name FROM users WHERE id = ?`, uid)
	if err == sql.ErrNoRows {
		return "", newErr(KindNotFound, "no such user")
	}
	if err != nil {
		return "", wrapErr(KindStoreError, "lookup user name", err)
	}
	return name, nil
}

// Register hashes password and inserts a new user row.
func (s *Store) Register(login, password, name string) (types.UserID, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.ZeroUser, "", wrapErr(KindStoreError, "hashing password", err)
	}
	res, err := s.db.Exec(`INSERT INTO users (login, password_hash, name) VALUES (?, ?, ?)`,
		login, string(hash), name)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ZeroUser, "", newErr(KindAlreadyExists, "login already registered")
		}
		return types.ZeroUser, "", wrapErr(KindStoreError, "register", err)
	}
	id, _ := res.LastInsertId()
	return types.UserID(id), name, nil
}

// UpdateAccount updates name and/or password; at least one must be set.
func (s *Store) UpdateAccount(uid types.UserID, newName, newPassword *string) error {
	if newName == nil && newPassword == nil {
		return newErr(KindInvalidArgument, "nothing to update")
	}
	return s.withTx(func(tx *sqlx.Tx) error {
		if newName != nil {
			if _, err := tx.Exec(`UPDATE users SET name = ? WHERE id = ?`, *newName, uid); err != nil {
				return wrapErr(KindStoreError, "update name", err)
			}
		}
		if newPassword != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*newPassword), bcrypt.DefaultCost)
			if err != nil {
				return wrapErr(KindStoreError, "hashing password", err)
			}
			if _, err := tx.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), uid); err != nil {
				return wrapErr(KindStoreError, "update password", err)
			}
		}
		var count int
		if err := tx.Get(&count, `SELECT COUNT(*) FROM users WHERE id = ?`, uid); err != nil {
			return wrapErr(KindStoreError, "checking user", err)
		}
		if count == 0 {
			return newErr(KindNotFound, "no such user")
		}
		return nil
	})
}

// SearchUsersByName returns users whose display name contains substr,
// case-insensitively.
func (s *Store) SearchUsersByName(substr string) ([]types.MemberView, error) {
	var out []types.MemberView
	err := s.db.Select(&out,
		`SELECT id, name FROM users WHERE name LIKE ? ESCAPE '\' ORDER BY name`,
		"%"+escapeLike(substr)+"%")
	if err != nil {
		return nil, wrapErr(KindStoreError, "search users", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// DeleteAccount removes every row referencing uid — friendships, friend
// requests, memberships, messages, and the user row itself — inside one
// transaction. Each chat uid administers passes to its lowest-id remaining
// member; a chat with no other member is deleted together with its
// memberships and messages. Either all of it happens or none of it does
// (spec §3 invariant 7).
func (s *Store) DeleteAccount(uid types.UserID) error {
	return s.withTx(func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.Get(&exists, `SELECT COUNT(*) FROM users WHERE id = ?`, uid); err != nil {
			return wrapErr(KindStoreError, "checking user", err)
		}
		if exists == 0 {
			return newErr(KindNotFound, "no such user")
		}
		stmts := []struct {
			q    string
			args []interface{}
		}{
			{`DELETE FROM friends WHERE user_a = ? OR user_b = ?`, []interface{}{uid, uid}},
			{`DELETE FROM friend_requests WHERE requester_id = ? OR requested_id = ?`, []interface{}{uid, uid}},
			{`DELETE FROM message WHERE user_id = ?`, []interface{}{uid}},
			{`UPDATE chat SET admin_user_id = (SELECT MIN(m.user_id) FROM user_in_chat m WHERE m.chat_id = chat.id AND m.user_id != ?)
				WHERE admin_user_id = ? AND EXISTS (SELECT 1 FROM user_in_chat m WHERE m.chat_id = chat.id AND m.user_id != ?)`, []interface{}{uid, uid, uid}},
			{`DELETE FROM message WHERE chat_id IN (SELECT id FROM chat WHERE admin_user_id = ?)`, []interface{}{uid}},
			{`DELETE FROM user_in_chat WHERE chat_id IN (SELECT id FROM chat WHERE admin_user_id = ?)`, []interface{}{uid}},
			{`DELETE FROM chat WHERE admin_user_id = ?`, []interface{}{uid}},
			{`DELETE FROM user_in_chat WHERE user_id = ?`, []interface{}{uid}},
			{`DELETE FROM users WHERE id = ?`, []interface{}{uid}},
		}
		for _, st := range stmts {
			if _, err := tx.Exec(st.q, st.args...); err != nil {
				return wrapErr(KindStoreError, "delete account cascade", err)
			}
		}
		return nil
	})
}
