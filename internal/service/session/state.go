package session

import (
	"unitevol-service/internal/domain/auth"
)

// State is a snapshot of the instance's session. Principal without Profile
// means the profile could not be loaded; the role is unknown until it is.
type State struct {
	Principal *auth.Principal `json:"user"`
	Profile   *auth.Profile   `json:"profile"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}

func (s State) IsAuthenticated() bool {
	return s.Principal != nil
}

func (s State) IsProfileComplete() bool {
	return s.Profile != nil && s.Profile.ProfileStatus == auth.ProfileStatusApproved
}

// Role returns "" while no profile is loaded.
func (s State) Role() auth.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func (s State) clone() State {
	if s.Principal != nil {
		p := *s.Principal
		s.Principal = &p
	}
	s.Profile = s.Profile.Clone()
	return s
}

// Reduce merges a pushed profile change into s. Only UPDATEs of the current
// principal's loaded profile apply, and only the columns present in the
// event change. Role is never touched.
func Reduce(s State, change auth.ProfileChange) State {
	if change.EventType != auth.ChangeUpdate {
		return s
	}
	if s.Principal == nil || s.Profile == nil || change.PrincipalID != s.Principal.ID {
		return s
	}
	s.Profile = s.Profile.Apply(change.New)
	return s
}
