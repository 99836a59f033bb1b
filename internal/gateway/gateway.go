// Package gateway is the client-side facade over the identity provider,
// the profile store and the profile change channel.
package gateway

import (
	"context"

	"unitevol-service/internal/domain/auth"
)

// Attributes are stored with a new principal and seed its profile.
type Attributes struct {
	DisplayName string
	Role        auth.Role
}

// Disposer ends a subscription. Calling it more than once is a no-op, and
// no callback starts after it returns.
type Disposer func()

// Gateway is the identity provider and profile store as seen by one
// application instance. Expected failures are returned as errors wrapping
// the xerrors taxonomy.
type Gateway interface {
	SignUp(ctx context.Context, email, password string, attrs Attributes) (*auth.Principal, error)
	SignIn(ctx context.Context, email, password string) (*auth.Principal, error)
	// SignOut is idempotent and always forgets the local session.
	SignOut(ctx context.Context) error
	// GetCurrentPrincipal reports xerrors.ErrNoActiveSession when nobody is
	// signed in.
	GetCurrentPrincipal(ctx context.Context) (*auth.Principal, error)

	GetProfile(ctx context.Context, id string) (*auth.Profile, error)
	// UpdateProfile never sends the patch's role.
	UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) (*auth.Profile, error)
	UpdateRoleProfile(ctx context.Context, role auth.Role, id string, fields map[string]interface{}) error
	UpdateSkills(ctx context.Context, id string, skills []auth.Skill) error
	UpdateAvailability(ctx context.Context, id string, a auth.Availability) error
	IsProfileComplete(ctx context.Context, id string) (bool, error)

	// SubscribeToProfile delivers UPDATE events of id's profile row to
	// onChange until the returned Disposer is called.
	SubscribeToProfile(ctx context.Context, id string, onChange func(auth.ProfileChange)) (Disposer, error)
}
