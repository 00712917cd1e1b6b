package store

import (
	"github.com/jmoiron/sqlx"

	"github.com/usernameisnull/meridian/internal/store/types"
)

func friendPair(a, b types.UserID) (types.UserID, types.UserID) {
	if a <= b {
		return a, b
	}
	return b, a
}

// areFriends reports whether a and b already have an accepted friendship,
// checked symmetrically (spec §3 invariant 5).
func areFriends(q sqlx.Queryer, a, b types.UserID) (bool, error) {
	lo, hi := friendPair(a, b)
	var count int
	row := q.QueryRowx(`SELECT COUNT(*) FROM friends WHERE user_a = ? AND user_b = ?`, lo, hi)
	if err := row.Scan(&count); err != nil {
		return false, wrapErr(KindStoreError, "check friendship", err)
	}
	return count > 0, nil
}

// SendFriendRequest runs the "absent -> pending" transition of the
// friendship state machine (spec §4.7). A duplicate call while a request
// is already pending is idempotent and reports the same success.
func (s *Store) SendFriendRequest(requester, requested types.UserID) error {
	if requester == requested {
		return newErr(KindInvalidArgument, "cannot friend yourself")
	}
	return s.withTx(func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.Get(&exists, `SELECT COUNT(*) FROM users WHERE id = ?`, requested); err != nil {
			return wrapErr(KindStoreError, "checking user", err)
		}
		if exists == 0 {
			return newErr(KindNotFound, "unknown user")
		}
		friends, err := areFriends(tx, requester, requested)
		if err != nil {
			return err
		}
		if friends {
			return newErr(KindConflictingState, "already friends")
		}
		_, err = tx.Exec(`INSERT OR IGNORE INTO friend_requests (requester_id, requested_id, status) VALUES (?, ?, ?)`,
			requester, requested, types.RequestPending)
		if err != nil {
			return wrapErr(KindStoreError, "send friend request", err)
		}
		return nil
	})
}

// AcceptFriendRequest runs "pending -> accepted": flips the request row and
// inserts the single symmetric friendship row (spec §3 invariant 6).
func (s *Store) AcceptFriendRequest(acceptor, requester types.UserID) error {
	return s.withTx(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`UPDATE friend_requests SET status = ? WHERE requester_id = ? AND requested_id = ? AND status = ?`,
			types.RequestAccepted, requester, acceptor, types.RequestPending)
		if err != nil {
			return wrapErr(KindStoreError, "accept friend request", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return newErr(KindNotFound, "no pending request")
		}
		lo, hi := friendPair(acceptor, requester)
		if _, err := tx.Exec(`INSERT OR IGNORE INTO friends (user_a, user_b) VALUES (?, ?)`, lo, hi); err != nil {
			return wrapErr(KindStoreError, "insert friendship", err)
		}
		return nil
	})
}

// RejectFriendRequest runs "pending -> absent": deletes the pending row.
// Per spec §9 Open Question 1, no reply frame is owed to the caller on
// success or failure; the router discards the returned error and sends
// nothing over the wire for this opcode.
func (s *Store) RejectFriendRequest(requested, requester types.UserID) error {
	res, err := s.db.Exec(`DELETE FROM friend_requests WHERE requester_id = ? AND requested_id = ? AND status = ?`,
		requester, requested, types.RequestPending)
	if err != nil {
		return wrapErr(KindStoreError, "reject friend request", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return newErr(KindNotFound, "no pending request")
	}
	return nil
}

// ListFriends unions rows visible from either side of the symmetric table.
func (s *Store) ListFriends(uid types.UserID) ([]types.MemberView, error) {
	var out []types.MemberView
	err := s.db.Select(&out, `
		SELECT u.id, u.name FROM users u
		JOIN friends f ON (f.user_a = ? AND f.user_b = u.id) OR (f.user_b = ? AND f.user_a = u.id)
		ORDER BY u.id`, uid, uid)
	if err != nil {
		return nil, wrapErr(KindStoreError, "list friends", err)
	}
	return out, nil
}

// ListPendingRequests returns inbound pending requests addressed to uid.
func (s *Store) ListPendingRequests(uid types.UserID) ([]types.PendingRequest, error) {
	var out []types.PendingRequest
	err := s.db.Select(&out, `
		SELECT u.id, u.name FROM users u
		JOIN friend_requests r ON r.requester_id = u.id
		WHERE r.requested_id = ? AND r.status = ?
		ORDER BY u.id`, uid, types.RequestPending)
	if err != nil {
		return nil, wrapErr(KindStoreError, "list pending requests", err)
	}
	return out, nil
}

// DeleteFriend runs "accepted -> absent": removes the friendship row and
// any residual accepted-request row, regardless of which side calls it.
func (s *Store) DeleteFriend(a, b types.UserID) (int64, error) {
	var changed int64
	err := s.withTx(func(tx *sqlx.Tx) error {
		lo, hi := friendPair(a, b)
		res, err := tx.Exec(`DELETE FROM friends WHERE user_a = ? AND user_b = ?`, lo, hi)
		if err != nil {
			return wrapErr(KindStoreError, "delete friend", err)
		}
		n, _ := res.RowsAffected()
		changed += n
		res2, err := tx.Exec(`DELETE FROM friend_requests WHERE
			((requester_id = ? AND requested_id = ?) OR (requester_id = ? AND requested_id = ?))
			AND status = ?`, a, b, b, a, types.RequestAccepted)
		if err != nil {
			return wrapErr(KindStoreError, "delete residual request", err)
		}
		n2, _ := res2.RowsAffected()
		changed += n2
		return nil
	})
	return changed, err
}
