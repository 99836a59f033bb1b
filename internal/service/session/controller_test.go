package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"unitevol-service/internal/domain/auth"
	"unitevol-service/internal/gateway"
	xerrors "unitevol-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// ========== Fake gateway ==========

type fakeAccount struct {
	password  string
	principal auth.Principal
}

type fakeSub struct {
	id       string
	onChange func(auth.ProfileChange)
	disposed bool
}

type fakeGateway struct {
	mu sync.Mutex

	accounts map[string]fakeAccount
	profiles map[string]*auth.Profile
	session  *auth.Principal
	nextID   int

	getProfileErr  error
	currentErr     error
	updateErr      error
	complete       bool
	panicOnSignIn  bool
	profileGate    chan struct{}
	profileStarted chan struct{}
	signInGate     chan struct{}
	disposeGate    chan struct{}
	disposeStarted chan struct{}

	signOutCalls   int
	getProfileHits int
	profilePatches []auth.ProfilePatch
	roleUpdates    []auth.Role
	skills         []auth.Skill
	availability   *auth.Availability
	subs           []*fakeSub
}

var _ gateway.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		accounts: make(map[string]fakeAccount),
		profiles: make(map[string]*auth.Profile),
	}
}

func (f *fakeGateway) seed(email, password string, role auth.Role, status auth.ProfileStatus) auth.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := auth.Principal{ID: string(rune('0'+f.nextID)) + "P", Email: email, Metadata: auth.PrincipalMetadata{Role: role}}
	f.accounts[email] = fakeAccount{password: password, principal: p}
	f.profiles[p.ID] = &auth.Profile{ID: p.ID, Role: role, DisplayName: "Seeded", Email: email, ProfileStatus: status}
	return p
}

func (f *fakeGateway) SignUp(ctx context.Context, email, password string, attrs gateway.Attributes) (*auth.Principal, error) {
	f.mu.Lock()
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return nil, xerrors.ErrDuplicateAccount
	}
	f.mu.Unlock()

	p := f.seed(email, password, attrs.Role, auth.ProfileStatusPending)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID].DisplayName = attrs.DisplayName
	f.session = &p
	return &p, nil
}

func (f *fakeGateway) SignIn(ctx context.Context, email, password string) (*auth.Principal, error) {
	if f.panicOnSignIn {
		panic("transport exploded")
	}
	if f.signInGate != nil {
		<-f.signInGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return nil, xerrors.ErrInvalidCredentials
	}
	p := acct.principal
	f.session = &p
	return &p, nil
}

func (f *fakeGateway) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	f.session = nil
	return nil
}

func (f *fakeGateway) GetCurrentPrincipal(ctx context.Context) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	if f.session == nil {
		return nil, xerrors.ErrNoActiveSession
	}
	p := *f.session
	return &p, nil
}

// GetProfile ignores ctx so a gated call returns after a logout, the way a
// response already on the wire would.
func (f *fakeGateway) GetProfile(ctx context.Context, id string) (*auth.Profile, error) {
	f.mu.Lock()
	gate, started := f.profileGate, f.profileStarted
	f.getProfileHits++
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.profileStarted = nil
		f.mu.Unlock()
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getProfileErr != nil {
		return nil, f.getProfileErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeGateway) UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) (*auth.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profilePatches = append(f.profilePatches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := f.profiles[id]
	next := p.Apply(patch)
	if patch.Role != nil {
		// A careless store would take the role; the controller must not send it.
		next.Role = *patch.Role
	}
	f.profiles[id] = next
	return next.Clone(), nil
}

func (f *fakeGateway) UpdateRoleProfile(ctx context.Context, role auth.Role, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleUpdates = append(f.roleUpdates, role)
	p := f.profiles[id]
	if p.RoleFields == nil {
		p.RoleFields = make(map[string]interface{})
	}
	for k, v := range fields {
		p.RoleFields[k] = v
	}
	return nil
}

func (f *fakeGateway) UpdateSkills(ctx context.Context, id string, skills []auth.Skill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.skills = skills
	return nil
}

func (f *fakeGateway) UpdateAvailability(ctx context.Context, id string, a auth.Availability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availability = &a
	return nil
}

func (f *fakeGateway) IsProfileComplete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getProfileErr != nil {
		return false, f.getProfileErr
	}
	return f.complete, nil
}

func (f *fakeGateway) SubscribeToProfile(ctx context.Context, id string, onChange func(auth.ProfileChange)) (gateway.Disposer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{id: id, onChange: onChange}
	f.subs = append(f.subs, sub)
	return func() {
		f.mu.Lock()
		gate, started := f.disposeGate, f.disposeStarted
		f.disposeGate, f.disposeStarted = nil, nil
		f.mu.Unlock()
		if started != nil {
			close(started)
		}
		if gate != nil {
			<-gate
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		sub.disposed = true
	}, nil
}

// push delivers change to live subscriptions of its principal.
func (f *fakeGateway) push(change auth.ProfileChange) {
	f.mu.Lock()
	var targets []func(auth.ProfileChange)
	for _, s := range f.subs {
		if !s.disposed && s.id == change.PrincipalID {
			targets = append(targets, s.onChange)
		}
	}
	f.mu.Unlock()
	for _, fn := range targets {
		fn(change)
	}
}

// pushStale calls every callback ever registered, disposed or not.
func (f *fakeGateway) pushStale(change auth.ProfileChange) {
	f.mu.Lock()
	subs := append([]*fakeSub(nil), f.subs...)
	f.mu.Unlock()
	for _, s := range subs {
		s.onChange(change)
	}
}

func (f *fakeGateway) liveSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.disposed {
			n++
		}
	}
	return n
}

func (f *fakeGateway) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newController(gw *fakeGateway) *Controller {
	return NewController(gw, zap.NewNop())
}

func signedIn(t *testing.T, role auth.Role) (*Controller, *fakeGateway, auth.Principal) {
	t.Helper()
	gw := newFakeGateway()
	p := gw.seed("a@x.com", "secret1", role, auth.ProfileStatusApproved)
	c := newController(gw)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.Login(context.Background(), "a@x.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return c, gw, p
}

// ========== Initialization ==========

func TestLoadingBeforeInitialize(t *testing.T) {
	c := newController(newFakeGateway())
	if !c.Loading() {
		t.Fatal("uninitialized controller should report loading")
	}
}

func TestInitializeWithoutSession(t *testing.T) {
	gw := newFakeGateway()
	c := newController(gw)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("missing session must not be an error: %v", err)
	}
	s := c.State()
	if s.Principal != nil || s.Profile != nil || s.Loading || s.Error != "" {
		t.Fatalf("want anonymous, got %+v", s)
	}
	if gw.subCount() != 0 {
		t.Fatal("anonymous session subscribed")
	}
}

func TestInitializeRestoresSession(t *testing.T) {
	gw := newFakeGateway()
	p := gw.seed("a@x.com", "secret1", auth.RoleProjectLead, auth.ProfileStatusApproved)
	gw.session = &p
	c := newController(gw)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if c.User().ID != p.ID || c.UserRole() != auth.RoleProjectLead || !c.IsProfileComplete() {
		t.Fatalf("unexpected state %+v", c.State())
	}
	if gw.liveSubs() != 1 {
		t.Fatalf("live subscriptions = %d, want 1", gw.liveSubs())
	}
}

func TestInitializeFailureIsVisible(t *testing.T) {
	gw := newFakeGateway()
	gw.currentErr = xerrors.ErrNetwork
	c := newController(gw)

	err := c.Initialize(context.Background())
	if !errors.Is(err, xerrors.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	s := c.State()
	if s.IsAuthenticated() || s.Loading || !strings.HasPrefix(s.Error, "Failed to restore session") {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestDegradedSessionRecovers(t *testing.T) {
	gw := newFakeGateway()
	p := gw.seed("a@x.com", "secret1", auth.RoleVolunteer, auth.ProfileStatusApproved)
	gw.session = &p
	gw.getProfileErr = xerrors.ErrNetwork
	c := newController(gw)

	err := c.Initialize(context.Background())
	if !errors.Is(err, xerrors.ErrProfileFetchFailed) || !errors.Is(err, xerrors.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	s := c.State()
	if !s.IsAuthenticated() || s.Profile != nil || s.Role() != "" || s.Error == "" || s.Loading {
		t.Fatalf("want degraded, got %+v", s)
	}
	if s.ErrorCode != "profile_fetch_failed" {
		t.Fatalf("error code = %q", s.ErrorCode)
	}
	if gw.subCount() != 0 {
		t.Fatal("subscribed before a profile was loaded")
	}

	gw.mu.Lock()
	gw.getProfileErr = nil
	gw.mu.Unlock()

	if err := c.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.UserRole() != auth.RoleVolunteer || c.Error() != "" {
		t.Fatalf("unexpected state %+v", c.State())
	}
	if gw.liveSubs() != 1 {
		t.Fatalf("live subscriptions = %d, want 1", gw.liveSubs())
	}
}

// ========== Sign-up and sign-in ==========

func TestSignupSeedsProfile(t *testing.T) {
	gw := newFakeGateway()
	c := newController(gw)
	c.Initialize(context.Background())

	err := c.Signup(context.Background(), SignupRequest{
		Email:       "a@x.com",
		Password:    "pw",
		DisplayName: "Ada",
		Role:        auth.RoleVolunteer,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	s := c.State()
	if s.Principal == nil || s.Profile == nil {
		t.Fatalf("want authenticated, got %+v", s)
	}
	if s.Profile.Role != auth.RoleVolunteer || s.Profile.ProfileStatus != auth.ProfileStatusPending {
		t.Fatalf("unexpected profile %+v", s.Profile)
	}
	if s.Loading || s.Error != "" {
		t.Fatalf("loading = %v, error = %q", s.Loading, s.Error)
	}
	if s.IsProfileComplete() {
		t.Fatal("pending profile reported complete")
	}
}

func TestSignupFailures(t *testing.T) {
	tests := []struct {
		name string
		req  SignupRequest
		want error
	}{
		{"duplicate", SignupRequest{Email: "taken@x.com", Password: "pw", DisplayName: "A", Role: auth.RoleNGO}, xerrors.ErrDuplicateAccount},
		{"unknown role", SignupRequest{Email: "b@x.com", Password: "pw", DisplayName: "B", Role: "admin"}, xerrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.seed("taken@x.com", "pw", auth.RoleNGO, auth.ProfileStatusApproved)
			c := newController(gw)
			c.Initialize(context.Background())

			err := c.Signup(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			s := c.State()
			if s.IsAuthenticated() || !strings.HasPrefix(s.Error, "Failed to sign up: ") {
				t.Fatalf("unexpected state %+v", s)
			}
		})
	}
}

func TestBadLogin(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("a@x.com", "secret1", auth.RoleVolunteer, auth.ProfileStatusApproved)
	c := newController(gw)
	c.Initialize(context.Background())

	err := c.Login(context.Background(), "bad@x.com", "wrong")
	if !errors.Is(err, xerrors.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}

	s := c.State()
	if s.Principal != nil || s.Profile != nil || s.Loading {
		t.Fatalf("want anonymous, got %+v", s)
	}
	if s.Error != "Failed to log in: invalid login credentials" || s.ErrorCode != "invalid_credentials" {
		t.Fatalf("error = %q (%s)", s.Error, s.ErrorCode)
	}

	c.ClearError()
	if c.Error() != "" {
		t.Fatal("ClearError kept the error")
	}
}

func TestLoginStartsSubscriptionAfterProfile(t *testing.T) {
	c, gw, p := signedIn(t, auth.RoleNGO)

	if !c.IsAuthenticated() || c.UserRole() != auth.RoleNGO {
		t.Fatalf("unexpected state %+v", c.State())
	}
	gw.mu.Lock()
	sub := gw.subs[0]
	gw.mu.Unlock()
	if gw.subCount() != 1 || sub.id != p.ID {
		t.Fatalf("subscriptions = %d for %q", gw.subCount(), sub.id)
	}
}

func TestLoginAsAnotherUserResubscribes(t *testing.T) {
	c, gw, _ := signedIn(t, auth.RoleNGO)
	other := gw.seed("b@x.com", "secret2", auth.RoleVolunteer, auth.ProfileStatusPending)

	if err := c.Login(context.Background(), "b@x.com", "secret2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.User().ID != other.ID || c.UserRole() != auth.RoleVolunteer {
		t.Fatalf("unexpected state %+v", c.State())
	}
	if gw.liveSubs() != 1 || gw.subCount() != 2 {
		t.Fatalf("live = %d, total = %d", gw.liveSubs(), gw.subCount())
	}
}

// ========== Logout ==========

func TestLogoutIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	c := newController(gw)
	c.Initialize(context.Background())
	before := c.State()

	for i := 0; i < 2; i++ {
		if err := c.Logout(context.Background()); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	after := c.State()
	if after.Principal != before.Principal || after.Profile != before.Profile || after.Error != "" || after.Loading {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if gw.signOutCalls != 0 {
		t.Fatalf("sign out calls = %d", gw.signOutCalls)
	}
}

func TestLogoutEndsSubscription(t *testing.T) {
	c, gw, p := signedIn(t, auth.RoleVolunteer)

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.IsAuthenticated() || c.UserProfile() != nil || c.Loading() {
		t.Fatalf("want anonymous, got %+v", c.State())
	}
	if gw.liveSubs() != 0 {
		t.Fatal("subscription left open")
	}

	gw.pushStale(auth.ProfileChange{EventType: auth.ChangeUpdate, PrincipalID: p.ID, New: auth.ProfilePatch{DisplayName: strPtr("Ghost")}})
	if s := c.State(); s.Profile != nil || s.Principal != nil {
		t.Fatalf("late push changed state: %+v", s)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if gw.signOutCalls != 1 {
		t.Fatalf("sign out calls = %d, want 1", gw.signOutCalls)
	}
}

func TestLogoutDiscardsInFlightLogin(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("a@x.com", "secret1", auth.RoleVolunteer, auth.ProfileStatusApproved)
	c := newController(gw)
	c.Initialize(context.Background())

	gate := make(chan struct{})
	started := make(chan struct{})
	gw.profileGate, gw.profileStarted = gate, started

	done := make(chan error, 1)
	go func() {
		done <- c.Login(context.Background(), "a@x.com", "secret1")
	}()

	<-started
	if !c.Loading() {
		t.Fatal("login in flight should report loading")
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(gate)

	select {
	case err := <-done:
		if !errors.Is(err, xerrors.ErrSessionChanged) {
			t.Fatalf("login err = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("login did not return")
	}

	s := c.State()
	if s.Principal != nil || s.Profile != nil || s.Error != "" || s.Loading {
		t.Fatalf("stale login leaked into state: %+v", s)
	}
	if gw.subCount() != 0 {
		t.Fatal("stale login subscribed")
	}
}

func TestLogoutDropsSessionOfOvertakenSignIn(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("a@x.com", "secret1", auth.RoleVolunteer, auth.ProfileStatusApproved)
	c := newController(gw)
	c.Initialize(context.Background())

	gw.signInGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Login(context.Background(), "a@x.com", "secret1")
	}()

	waitFor(t, c.Loading)
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(gw.signInGate)

	if err := <-done; !errors.Is(err, xerrors.ErrSessionChanged) {
		t.Fatalf("login err = %v", err)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.session != nil {
		t.Fatal("overtaken sign-in left a session behind")
	}
}

func TestLoginDuringLogoutWaitsForSignOut(t *testing.T) {
	c, gw, _ := signedIn(t, auth.RoleVolunteer)
	b := gw.seed("b@x.com", "secret2", auth.RoleNGO, auth.ProfileStatusApproved)

	gate := make(chan struct{})
	started := make(chan struct{})
	gw.mu.Lock()
	gw.disposeGate, gw.disposeStarted = gate, started
	gw.mu.Unlock()

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- c.Logout(context.Background()) }()
	<-started

	if s := c.State(); s.Principal != nil || s.Profile != nil || !s.Loading {
		t.Fatalf("logout in progress should already be anonymous and loading: %+v", s)
	}

	loggedIn := make(chan error, 1)
	go func() { loggedIn <- c.Login(context.Background(), "b@x.com", "secret2") }()

	select {
	case err := <-loggedIn:
		t.Fatalf("login finished before logout signed out: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	if err := <-loggedOut; err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := <-loggedIn; err != nil {
		t.Fatalf("login: %v", err)
	}

	s := c.State()
	if s.Principal == nil || s.Principal.ID != b.ID || s.Profile == nil || s.Profile.Role != auth.RoleNGO || s.Loading {
		t.Fatalf("want session of b, got %+v", s)
	}
	if gw.liveSubs() != 1 {
		t.Fatalf("live subscriptions = %d, want 1", gw.liveSubs())
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.session == nil || gw.session.ID != b.ID {
		t.Fatalf("gateway session = %+v, want b", gw.session)
	}
	if gw.signOutCalls != 1 {
		t.Fatalf("sign out calls = %d, want 1", gw.signOutCalls)
	}
}

// ========== Push updates ==========

func TestPushMergesIntoProfile(t *testing.T) {
	c, gw, p := signedIn(t, auth.RoleNGO)
	before := c.UserProfile()

	volunteer := auth.RoleVolunteer
	gw.push(auth.ProfileChange{
		EventType:   auth.ChangeUpdate,
		PrincipalID: p.ID,
		New:         auth.ProfilePatch{DisplayName: strPtr("New Name"), Role: &volunteer},
	})

	after := c.UserProfile()
	if after.DisplayName != "New Name" {
		t.Fatalf("display name = %q", after.DisplayName)
	}
	if after.Role != auth.RoleNGO || after.Email != before.Email || after.ProfileStatus != before.ProfileStatus {
		t.Fatalf("push touched other fields: %+v", after)
	}
}

// ========== Profile mutations ==========

func TestUpdateProfileKeepsRole(t *testing.T) {
	c, gw, _ := signedIn(t, auth.RoleVolunteer)
	hits := gw.getProfileHits

	ngo := auth.RoleNGO
	err := c.UpdateProfile(context.Background(), auth.ProfilePatch{DisplayName: strPtr("Renamed"), Role: &ngo}, map[string]interface{}{"availability": "weekends"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	p := c.UserProfile()
	if p.DisplayName != "Renamed" || p.Role != auth.RoleVolunteer {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.RoleFields["availability"] != "weekends" {
		t.Fatalf("role fields not reloaded: %+v", p.RoleFields)
	}
	if gw.profilePatches[0].Role != nil {
		t.Fatal("role sent to the profile store")
	}
	if len(gw.roleUpdates) != 1 || gw.roleUpdates[0] != auth.RoleVolunteer {
		t.Fatalf("role updates = %v", gw.roleUpdates)
	}
	if gw.getProfileHits != hits+1 {
		t.Fatal("profile was not re-fetched after the write")
	}
}

func TestUpdateProfileFailure(t *testing.T) {
	c, gw, _ := signedIn(t, auth.RoleVolunteer)
	gw.updateErr = xerrors.ErrNetwork

	err := c.UpdateProfile(context.Background(), auth.ProfilePatch{DisplayName: strPtr("X")}, nil)
	if !errors.Is(err, xerrors.ErrProfileUpdateFailed) {
		t.Fatalf("err = %v", err)
	}
	s := c.State()
	if s.Error != "Failed to update profile: network error" || s.Loading {
		t.Fatalf("unexpected state %+v", s)
	}
	if s.Profile.DisplayName != "Seeded" {
		t.Fatal("failed write changed the local profile")
	}
}

func TestMutationsRequireSession(t *testing.T) {
	c := newController(newFakeGateway())
	c.Initialize(context.Background())
	ctx := context.Background()

	calls := map[string]func() error{
		"profile":      func() error { return c.UpdateProfile(ctx, auth.ProfilePatch{DisplayName: strPtr("X")}, nil) },
		"skills":       func() error { return c.UpdateSkills(ctx, []auth.Skill{{Name: "go"}}) },
		"availability": func() error { return c.UpdateAvailability(ctx, auth.Availability{HoursPerWeek: 4}) },
		"completion":   func() error { _, err := c.CheckProfileCompletion(ctx); return err },
		"refresh":      func() error { return c.RefreshProfile(ctx) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			c.ClearError()
			if err := call(); !errors.Is(err, xerrors.ErrNotAuthenticated) {
				t.Fatalf("err = %v", err)
			}
			if !strings.HasSuffix(c.Error(), ": not authenticated") || c.Loading() {
				t.Fatalf("unexpected state %+v", c.State())
			}
		})
	}
}

func TestSkillsAvailabilityAndCompletion(t *testing.T) {
	c, gw, _ := signedIn(t, auth.RoleSheLeads)
	ctx := context.Background()

	if err := c.UpdateSkills(ctx, []auth.Skill{{Name: "mentoring", Level: auth.SkillExpert}}); err != nil {
		t.Fatalf("skills: %v", err)
	}
	if err := c.UpdateAvailability(ctx, auth.Availability{Days: []string{"sat"}, HoursPerWeek: 6, IsActive: true}); err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(gw.skills) != 1 || gw.availability == nil || gw.availability.HoursPerWeek != 6 {
		t.Fatalf("skills = %v, availability = %v", gw.skills, gw.availability)
	}

	gw.complete = true
	ok, err := c.CheckProfileCompletion(ctx)
	if err != nil || !ok {
		t.Fatalf("complete = %v, err = %v", ok, err)
	}
}

// ========== Loading ==========

func TestLoadingClearedWhenGatewayPanics(t *testing.T) {
	gw := newFakeGateway()
	gw.panicOnSignIn = true
	c := newController(gw)
	c.Initialize(context.Background())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic swallowed")
			}
		}()
		c.Login(context.Background(), "a@x.com", "pw")
	}()

	if c.Loading() {
		t.Fatal("loading stuck after panic")
	}

	gw.panicOnSignIn = false
	done := make(chan struct{})
	go func() {
		c.Login(context.Background(), "a@x.com", "pw")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("operation lock leaked by panic")
	}
}

func TestLoadingDuringOperation(t *testing.T) {
	gw := newFakeGateway()
	gw.seed("a@x.com", "secret1", auth.RoleVolunteer, auth.ProfileStatusApproved)
	c := newController(gw)
	c.Initialize(context.Background())

	gw.signInGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Login(context.Background(), "a@x.com", "secret1")
	}()

	waitFor(t, c.Loading)
	close(gw.signInGate)
	if err := <-done; err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Loading() {
		t.Fatal("loading not cleared")
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	c, gw, p := signedIn(t, auth.RoleVolunteer)
	c.Close()

	if gw.liveSubs() != 0 {
		t.Fatal("subscription left open after Close")
	}
	gw.pushStale(auth.ProfileChange{EventType: auth.ChangeUpdate, PrincipalID: p.ID, New: auth.ProfilePatch{DisplayName: strPtr("Ghost")}})
	if c.UserProfile().DisplayName == "Ghost" {
		t.Fatal("push applied after Close")
	}
	if !c.IsAuthenticated() {
		t.Fatal("Close should keep the session")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
