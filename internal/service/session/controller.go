// Package session owns the instance's authentication state: who is signed
// in, their profile, and the live subscription keeping that profile fresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/gateway"
	xerrors "unitevol-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// SignupRequest carries the sign-up form.
type SignupRequest struct {
	Email       string    `json:"email" binding:"required,email"`
	Password    string    `json:"password" binding:"required"`
	DisplayName string    `json:"full_name" binding:"required"`
	Role        auth.Role `json:"role" binding:"required"`
}

// Controller is the single writer of the session state.
//
// Operations other than Logout and Close run one at a time under opMu.
// Logout never waits for them: it bumps epoch and cancels the running
// operation, whose results are then discarded because their epoch is stale.
// Operations started during a logout wait for it to finish signing out.
type Controller struct {
	gw     gateway.Gateway
	logger *zap.Logger

	opMu sync.Mutex

	mu          sync.RWMutex
	principal   *auth.Principal
	profile     *auth.Profile
	errMsg      string
	errCode     string
	inflight    int
	initialized bool
	epoch       uint64
	opCancel    context.CancelFunc
	sub         gateway.Disposer
	subFor      string
	loggingOut  chan struct{}
}

func NewController(gw gateway.Gateway, logger *zap.Logger) *Controller {
	return &Controller{
		gw:     gw,
		logger: logger,
	}
}

type op struct {
	ctx   context.Context
	epoch uint64
}

// begin serializes the caller behind other operations and marks the state
// loading. The returned func must be deferred; it runs on panics too.
func (c *Controller) begin(ctx context.Context) (*op, func()) {
	c.opMu.Lock()
	opCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	for c.loggingOut != nil {
		done := c.loggingOut
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	c.inflight++
	c.errMsg, c.errCode = "", ""
	c.opCancel = cancel
	o := &op{ctx: opCtx, epoch: c.epoch}
	c.mu.Unlock()

	return o, func() {
		c.mu.Lock()
		c.inflight--
		c.initialized = true
		c.opCancel = nil
		c.mu.Unlock()
		cancel()
		c.opMu.Unlock()
	}
}

// ========== Operations ==========

// Initialize restores the session persisted by the gateway, if any. A
// missing session is not an error.
func (c *Controller) Initialize(ctx context.Context) error {
	o, end := c.begin(ctx)
	defer end()

	principal, err := c.gw.GetCurrentPrincipal(o.ctx)
	if errors.Is(err, xerrors.ErrNoActiveSession) {
		c.mu.Lock()
		if o.epoch == c.epoch {
			c.principal, c.profile = nil, nil
		}
		c.mu.Unlock()
		c.logger.Info("no persisted session")
		return nil
	}
	if err != nil {
		return c.fail(o, "Failed to restore session", err)
	}

	c.logger.Info("session restored", zap.String("principal_id", principal.ID))
	return c.establish(o, principal)
}

func (c *Controller) Login(ctx context.Context, email, password string) error {
	o, end := c.begin(ctx)
	defer end()

	principal, err := c.gw.SignIn(o.ctx, email, password)
	if err != nil {
		return c.fail(o, "Failed to log in", err)
	}

	c.logger.Info("signed in", zap.String("principal_id", principal.ID))
	return c.establish(o, principal)
}

func (c *Controller) Signup(ctx context.Context, req SignupRequest) error {
	o, end := c.begin(ctx)
	defer end()

	if !req.Role.Valid() {
		return c.fail(o, "Failed to sign up", fmt.Errorf("%w: unknown role %q", xerrors.ErrValidation, req.Role))
	}

	principal, err := c.gw.SignUp(o.ctx, req.Email, req.Password, gateway.Attributes{
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		return c.fail(o, "Failed to sign up", err)
	}

	c.logger.Info("signed up",
		zap.String("principal_id", principal.ID),
		zap.String("role", string(req.Role)),
	)
	return c.establish(o, principal)
}

// Logout ends the session. It is idempotent, and once it returns no result
// of an earlier operation and no pushed change reaches the state.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.loggingOut != nil || (c.principal == nil && c.sub == nil && c.opCancel == nil) {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	if c.opCancel != nil {
		c.opCancel()
	}
	dispose := c.sub
	c.sub, c.subFor = nil, ""
	c.principal, c.profile = nil, nil
	c.errMsg, c.errCode = "", ""
	c.inflight++
	done := make(chan struct{})
	c.loggingOut = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight--
		c.loggingOut = nil
		c.mu.Unlock()
		close(done)
	}()

	if dispose != nil {
		dispose()
	}

	if err := c.gw.SignOut(ctx); err != nil {
		c.mu.Lock()
		c.setError("Failed to log out", err)
		c.mu.Unlock()
		return err
	}

	c.logger.Info("signed out")
	return nil
}

// UpdateProfile writes the profile fields, then the role sub-record when
// roleFields is non-nil, then reloads the profile. The patch's role and
// review status are ignored.
func (c *Controller) UpdateProfile(ctx context.Context, patch auth.ProfilePatch, roleFields map[string]interface{}) error {
	o, end := c.begin(ctx)
	defer end()

	const failure = "Failed to update profile"

	principal, profile := c.current()
	if principal == nil {
		return c.fail(o, failure, xerrors.ErrNotAuthenticated)
	}
	if roleFields != nil && profile == nil {
		return c.fail(o, failure, fmt.Errorf("%w: role unknown until the profile loads", xerrors.ErrProfileUpdateFailed))
	}

	patch = patch.SelfService()
	if !patch.IsEmpty() {
		if _, err := c.gw.UpdateProfile(o.ctx, principal.ID, patch); err != nil {
			return c.fail(o, failure, withKind(xerrors.ErrProfileUpdateFailed, err))
		}
	}
	if roleFields != nil {
		if err := c.gw.UpdateRoleProfile(o.ctx, profile.Role, principal.ID, roleFields); err != nil {
			return c.fail(o, failure, withKind(xerrors.ErrProfileUpdateFailed, err))
		}
	}

	return c.loadProfile(o, principal.ID)
}

func (c *Controller) UpdateSkills(ctx context.Context, skills []auth.Skill) error {
	o, end := c.begin(ctx)
	defer end()

	principal, _ := c.current()
	if principal == nil {
		return c.fail(o, "Failed to update skills", xerrors.ErrNotAuthenticated)
	}
	if err := c.gw.UpdateSkills(o.ctx, principal.ID, skills); err != nil {
		return c.fail(o, "Failed to update skills", withKind(xerrors.ErrProfileUpdateFailed, err))
	}
	return nil
}

func (c *Controller) UpdateAvailability(ctx context.Context, a auth.Availability) error {
	o, end := c.begin(ctx)
	defer end()

	principal, _ := c.current()
	if principal == nil {
		return c.fail(o, "Failed to update availability", xerrors.ErrNotAuthenticated)
	}
	if err := c.gw.UpdateAvailability(o.ctx, principal.ID, a); err != nil {
		return c.fail(o, "Failed to update availability", withKind(xerrors.ErrProfileUpdateFailed, err))
	}
	return nil
}

// CheckProfileCompletion asks the profile store whether the signed-in
// user's profile is complete.
func (c *Controller) CheckProfileCompletion(ctx context.Context) (bool, error) {
	o, end := c.begin(ctx)
	defer end()

	principal, _ := c.current()
	if principal == nil {
		return false, c.fail(o, "Failed to check profile completion", xerrors.ErrNotAuthenticated)
	}
	complete, err := c.gw.IsProfileComplete(o.ctx, principal.ID)
	if err != nil {
		return false, c.fail(o, "Failed to check profile completion", withKind(xerrors.ErrProfileFetchFailed, err))
	}
	return complete, nil
}

// RefreshProfile reloads the profile, which also recovers a session whose
// profile failed to load.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	o, end := c.begin(ctx)
	defer end()

	principal, _ := c.current()
	if principal == nil {
		return c.fail(o, "Failed to load profile", xerrors.ErrNotAuthenticated)
	}
	return c.loadProfile(o, principal.ID)
}

func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg, c.errCode = "", ""
}

// Close stops live updates and cancels the running operation. The session
// itself is kept so the next process can restore it.
func (c *Controller) Close() {
	c.mu.Lock()
	c.epoch++
	if c.opCancel != nil {
		c.opCancel()
	}
	dispose := c.sub
	c.sub, c.subFor = nil, ""
	c.mu.Unlock()

	if dispose != nil {
		dispose()
	}
}

// ========== Read side ==========

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Principal: c.principal,
		Profile:   c.profile,
		Loading:   c.inflight > 0 || !c.initialized,
		Error:     c.errMsg,
		ErrorCode: c.errCode,
	}.clone()
}

func (c *Controller) User() *auth.Principal     { return c.State().Principal }
func (c *Controller) UserProfile() *auth.Profile { return c.State().Profile }
func (c *Controller) Loading() bool              { return c.State().Loading }
func (c *Controller) Error() string              { return c.State().Error }
func (c *Controller) IsAuthenticated() bool      { return c.State().IsAuthenticated() }
func (c *Controller) IsProfileComplete() bool    { return c.State().IsProfileComplete() }
func (c *Controller) UserRole() auth.Role        { return c.State().Role() }

// ========== Internals ==========

func (c *Controller) current() (*auth.Principal, *auth.Profile) {
	s := c.State()
	return s.Principal, s.Profile
}

// establish makes principal current, loads its profile and subscribes.
func (c *Controller) establish(o *op, principal *auth.Principal) error {
	old, err := c.commitPrincipal(o, principal)
	if old != nil {
		old()
	}
	if err != nil {
		// A logout overtook this sign-in; drop the session it created.
		if serr := c.gw.SignOut(context.WithoutCancel(o.ctx)); serr != nil {
			c.logger.Warn("failed to drop overtaken session", zap.Error(serr))
		}
		return err
	}
	return c.loadProfile(o, principal.ID)
}

func (c *Controller) commitPrincipal(o *op, principal *auth.Principal) (gateway.Disposer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.epoch != c.epoch {
		return nil, xerrors.ErrSessionChanged
	}

	var old gateway.Disposer
	if c.sub != nil && c.subFor != principal.ID {
		old = c.sub
		c.sub, c.subFor = nil, ""
	}
	if c.principal == nil || c.principal.ID != principal.ID {
		c.profile = nil
	}
	p := *principal
	c.principal = &p
	return old, nil
}

// loadProfile fetches the profile of id and, once it is in place, opens
// the subscription. On failure the principal stays signed in without a
// profile.
func (c *Controller) loadProfile(o *op, id string) error {
	profile, err := c.gw.GetProfile(o.ctx, id)
	if err != nil {
		return c.fail(o, "Failed to load profile", withKind(xerrors.ErrProfileFetchFailed, err))
	}

	c.mu.Lock()
	if o.epoch != c.epoch || c.principal == nil || c.principal.ID != id {
		c.mu.Unlock()
		return xerrors.ErrSessionChanged
	}
	c.profile = profile.Clone()
	c.mu.Unlock()

	c.subscribe(o, id)
	return nil
}

func (c *Controller) subscribe(o *op, id string) {
	c.mu.RLock()
	active := c.sub != nil && c.subFor == id
	c.mu.RUnlock()
	if active {
		return
	}

	dispose, err := c.gw.SubscribeToProfile(o.ctx, id, c.onProfileChange(o.epoch))
	if err != nil {
		c.logger.Warn("live profile updates unavailable",
			zap.String("principal_id", id),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	if o.epoch != c.epoch || c.principal == nil || c.principal.ID != id || c.sub != nil {
		c.mu.Unlock()
		dispose()
		return
	}
	c.sub, c.subFor = dispose, id
	c.mu.Unlock()
}

// onProfileChange merges pushed changes into whatever state exists at
// delivery. Events from an older session are dropped.
func (c *Controller) onProfileChange(epoch uint64) func(auth.ProfileChange) {
	return func(change auth.ProfileChange) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.epoch != epoch {
			c.logger.Debug("dropping change from ended session", zap.String("principal_id", change.PrincipalID))
			return
		}
		next := Reduce(State{Principal: c.principal, Profile: c.profile}, change)
		c.profile = next.Profile
	}
}

// fail records err as the visible error unless the operation was overtaken
// by a logout, in which case it reports ErrSessionChanged and leaves the
// state alone.
func (c *Controller) fail(o *op, prefix string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.epoch != c.epoch {
		return xerrors.ErrSessionChanged
	}
	c.setError(prefix, err)
	c.logger.Warn(prefix, zap.Error(err))
	return err
}

func (c *Controller) setError(prefix string, err error) {
	c.errMsg = prefix + ": " + err.Error()
	c.errCode = xerrors.Code(err)
}

// withKind tags err with kind while keeping err's message.
func withKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }
