// Package guard decides whether a view may render for a session.
package guard

import (
	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/service/session"
)

type Decision int

const (
	// Pending means the session is still settling; render nothing yet.
	Pending Decision = iota
	RedirectLogin
	RedirectUnauthorized
	Allow
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Allow:
		return "allow"
	}
	return "unknown"
}

// Decide gates a protected view. With no roles any signed-in user is
// allowed. A session whose profile has not loaded has no role and is
// denied every role-restricted view.
func Decide(s session.State, roles ...auth.Role) Decision {
	if s.Loading {
		return Pending
	}
	if !s.IsAuthenticated() {
		return RedirectLogin
	}
	if len(roles) == 0 {
		return Allow
	}

	role := s.Role()
	for _, r := range roles {
		if role != "" && r == role {
			return Allow
		}
	}
	return RedirectUnauthorized
}
