// internal/domain/auth/entity.go
package auth

import (
	"time"
)

// Role is the application role fixed at sign-up.
type Role string

const (
	RoleVolunteer   Role = "volunteer"
	RoleNGO         Role = "ngo"
	RoleProjectLead Role = "project_lead"
	RoleSheLeads    Role = "she_leads"
)

// Roles lists every role in display order.
var Roles = []Role{RoleVolunteer, RoleNGO, RoleProjectLead, RoleSheLeads}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleVolunteer, RoleNGO, RoleProjectLead, RoleSheLeads:
		return true
	}
	return false
}

// RoleProfileTables maps each role to the table holding its role-specific
// profile fields.
var RoleProfileTables = map[Role]string{
	RoleVolunteer:   "volunteer_profiles",
	RoleNGO:         "ngo_profiles",
	RoleProjectLead: "project_lead_profiles",
	RoleSheLeads:    "she_leads_profiles",
}

// ProfileStatus is the moderation status of a profile.
type ProfileStatus string

const (
	ProfileStatusPending  ProfileStatus = "pending"
	ProfileStatusApproved ProfileStatus = "approved"
	ProfileStatusRejected ProfileStatus = "rejected"
)

// PrincipalMetadata is the metadata issued with a session.
type PrincipalMetadata struct {
	Role      Role      `json:"role,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal is the authenticated identity, independent of profile data.
type Principal struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata PrincipalMetadata `json:"metadata"`
}

// Profile is the application-level record keyed by principal id.
type Profile struct {
	ID            string                 `json:"id"`
	Role          Role                   `json:"role"`
	DisplayName   string                 `json:"full_name"`
	Email         string                 `json:"email"`
	ProfileStatus ProfileStatus          `json:"profile_status"`
	Location      string                 `json:"location,omitempty"`
	Bio           string                 `json:"bio,omitempty"`
	Phone         string                 `json:"phone,omitempty"`
	AvatarURL     string                 `json:"avatar_url,omitempty"`
	IsActive      bool                   `json:"is_active"`
	RoleFields    map[string]interface{} `json:"role_fields,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.RoleFields != nil {
		cp.RoleFields = make(map[string]interface{}, len(p.RoleFields))
		for k, v := range p.RoleFields {
			cp.RoleFields[k] = v
		}
	}
	return &cp
}

// ProfilePatch carries the fields to change; nil fields are left alone.
// Role is accepted on the wire so it can be stripped explicitly.
type ProfilePatch struct {
	DisplayName   *string        `json:"full_name,omitempty"`
	Email         *string        `json:"email,omitempty"`
	ProfileStatus *ProfileStatus `json:"profile_status,omitempty"`
	Location      *string        `json:"location,omitempty"`
	Bio           *string        `json:"bio,omitempty"`
	Phone         *string        `json:"phone,omitempty"`
	AvatarURL     *string        `json:"avatar_url,omitempty"`
	IsActive      *bool          `json:"is_active,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
	Role          *Role          `json:"role,omitempty"`
}

// WithoutRole returns a copy of the patch with Role cleared.
func (p ProfilePatch) WithoutRole() ProfilePatch {
	p.Role = nil
	return p
}

// SelfService returns a copy of the patch without the fields users may not
// set on their own profile: the role and the review status.
func (p ProfilePatch) SelfService() ProfilePatch {
	p = p.WithoutRole()
	p.ProfileStatus = nil
	return p
}

// Byte limits of the free-text profile columns. user_profiles carries the
// same CHECK constraints.
const (
	MaxFullNameBytes  = 120
	MaxEmailBytes     = 254
	MaxLocationBytes  = 200
	MaxBioBytes       = 4000
	MaxPhoneBytes     = 32
	MaxAvatarURLBytes = 1024
)

// IsEmpty reports whether the patch changes nothing writable.
func (p ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Email == nil && p.ProfileStatus == nil &&
		p.Location == nil && p.Bio == nil && p.Phone == nil &&
		p.AvatarURL == nil && p.IsActive == nil
}

// Apply merges the non-nil fields of patch into a copy of p. Role and ID
// are never changed.
func (p *Profile) Apply(patch ProfilePatch) *Profile {
	out := p.Clone()
	if patch.DisplayName != nil {
		out.DisplayName = *patch.DisplayName
	}
	if patch.Email != nil {
		out.Email = *patch.Email
	}
	if patch.ProfileStatus != nil {
		out.ProfileStatus = *patch.ProfileStatus
	}
	if patch.Location != nil {
		out.Location = *patch.Location
	}
	if patch.Bio != nil {
		out.Bio = *patch.Bio
	}
	if patch.Phone != nil {
		out.Phone = *patch.Phone
	}
	if patch.AvatarURL != nil {
		out.AvatarURL = *patch.AvatarURL
	}
	if patch.IsActive != nil {
		out.IsActive = *patch.IsActive
	}
	if patch.UpdatedAt != nil {
		out.UpdatedAt = *patch.UpdatedAt
	}
	return out
}

// PatchFor builds the patch setting the named columns to p's values.
// Unknown columns and role are skipped.
func (p *Profile) PatchFor(columns []string) ProfilePatch {
	var patch ProfilePatch
	for _, column := range columns {
		switch column {
		case "full_name":
			v := p.DisplayName
			patch.DisplayName = &v
		case "email":
			v := p.Email
			patch.Email = &v
		case "profile_status":
			v := p.ProfileStatus
			patch.ProfileStatus = &v
		case "location":
			v := p.Location
			patch.Location = &v
		case "bio":
			v := p.Bio
			patch.Bio = &v
		case "phone":
			v := p.Phone
			patch.Phone = &v
		case "avatar_url":
			v := p.AvatarURL
			patch.AvatarURL = &v
		case "is_active":
			v := p.IsActive
			patch.IsActive = &v
		case "updated_at":
			v := p.UpdatedAt
			patch.UpdatedAt = &v
		}
	}
	return patch
}

// ChangeType is the row-level operation carried by a profile change event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ProfileChange is a row-level change of a user profile. New holds only the
// columns that changed. When the values were too large to carry, Columns
// names them instead and New is empty until the row is read back.
type ProfileChange struct {
	EventType       ChangeType   `json:"event_type"`
	PrincipalID     string       `json:"id"`
	New             ProfilePatch `json:"new"`
	Columns         []string     `json:"columns,omitempty"`
	CommitTimestamp time.Time    `json:"commit_timestamp"`
}

// SkillLevel grades a skill.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
)

// Skill is one entry of a user's skill list.
type Skill struct {
	Name              string     `json:"skill_name" binding:"required"`
	Level             SkillLevel `json:"skill_level" binding:"omitempty,oneof=beginner intermediate advanced expert"`
	YearsOfExperience int        `json:"years_of_experience" binding:"gte=0"`
}

// Availability is a user's active availability window.
type Availability struct {
	Days         []string  `json:"days"`
	HoursPerWeek int       `json:"hours_per_week" binding:"gte=0,lte=168"`
	Remote       bool      `json:"remote"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Credential is the stored password credential of a principal.
type Credential struct {
	PrincipalID         string     `json:"principal_id" db:"principal_id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Status              string     `json:"status" db:"status"` // active, suspended
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
	LastLogin           *time.Time `json:"last_login" db:"last_login"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}
