// Package auth implements the credential handler (spec §4.2): parsing the
// handshake query string and turning it into a user id via the store.
package auth

import (
	"net/url"
	"strings"

	"github.com/usernameisnull/meridian/internal/store"
	"github.com/usernameisnull/meridian/internal/store/types"
)

// Rejected is returned for a malformed handshake; the caller (the chat
// server front door, C9) turns it into an HTTP 400 with Reason as the body.
type Rejected struct {
	Reason string
}

func (r *Rejected) Error() string { return r.Reason }

// Resolve validates the handshake query parameters and either registers a
// new account or authenticates an existing one, returning the resulting
// user id, display name, and whether this call just created the account
// (the caller uses that to decide whether to fire the one-time
// "user joined" broadcast from spec §8 scenario 1).
func Resolve(s *store.Store, query url.Values) (uid types.UserID, name string, registered bool, err error) {
	password := query.Get("password")
	if blank(password) {
		return 0, "", false, &Rejected{"missing or blank password"}
	}

	if loginReg := query.Get("login_reg"); loginReg != "" {
		regName := query.Get("name")
		if blank(loginReg) || blank(regName) {
			return 0, "", false, &Rejected{"missing or blank login_reg/name"}
		}
		uid, name, err = s.Register(loginReg, password, regName)
		if err != nil {
			if store.KindOf(err) == store.KindAlreadyExists {
				return 0, "", false, &Rejected{"login already registered"}
			}
			return 0, "", false, &Rejected{"registration failed: " + err.Error()}
		}
		return uid, name, true, nil
	}

	login := query.Get("login")
	if blank(login) {
		return 0, "", false, &Rejected{"missing or blank login"}
	}
	uid, err = s.Authenticate(login, password)
	if err != nil {
		return 0, "", false, &Rejected{"invalid credentials"}
	}
	name, err = s.UserName(uid)
	if err != nil {
		return 0, "", false, &Rejected{"invalid credentials"}
	}
	return uid, name, false, nil
}

// blank reports whether s is empty or contains whitespace, both of which
// the handshake must reject (spec §4.2).
func blank(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\r\n")
}
