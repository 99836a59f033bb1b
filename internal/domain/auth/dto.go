// internal/domain/auth/dto.go
package auth

import "time"

// SignUpRequest for account creation
type SignUpRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FullName  string `json:"full_name" binding:"required"`
	Role      Role   `json:"role" binding:"required,oneof=volunteer ngo project_lead she_leads"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// SignInRequest for password sign-in
type SignInRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest redeems a refresh token for a new token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
}

// SignOutRequest optionally names the refresh token to revoke with the session
type SignOutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by sign-up and sign-in
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Principal `json:"user"`
}

// RoleDetailsRequest upserts the role-qualified profile record
type RoleDetailsRequest struct {
	Role   Role                   `json:"role" binding:"required"`
	Fields map[string]interface{} `json:"fields" binding:"required"`
}

// SkillsRequest replaces a user's skills
type SkillsRequest struct {
	Skills []Skill `json:"skills" binding:"dive"`
}

// CompletionResponse reports the remote profile completion check
type CompletionResponse struct {
	Complete bool `json:"complete"`
}
