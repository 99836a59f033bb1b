// internal/service/identity/identity.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"
	"unitevol-service/internal/pkg/jwt"
	"unitevol-service/internal/pkg/metrics"
	"unitevol-service/internal/pkg/session"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	lockDuration      = 30 * time.Minute
)

// CredentialStore persists password credentials.
type CredentialStore interface {
	FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error)
	FindCredentialByID(ctx context.Context, principalID string) (*auth.Credential, error)
	CreateAccount(ctx context.Context, cred *auth.Credential, profile *auth.Profile) error
	UpdateLastLogin(ctx context.Context, principalID string) error
	IncrementFailedLoginAttempts(ctx context.Context, principalID string, lockDuration time.Duration) error
}

// SessionStore is the issued-session registry.
type SessionStore interface {
	CreateSession(ctx context.Context, s *session.SessionData) error
	GetSession(ctx context.Context, principalID, jti string) (*session.SessionData, error)
	InvalidateSession(ctx context.Context, principalID, jti string) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Limiter throttles credential attempts.
type Limiter interface {
	CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, email string) error
	CheckSignUpAttempt(ctx context.Context, ip string) (bool, error)
}

// SessionNotifier is told when a session ends so connected clients can drop it.
type SessionNotifier interface {
	ForceLogout(principalID, jti, reason string)
}

type Service struct {
	credentials CredentialStore
	profiles    ProfileStore
	tokens      *jwt.Manager
	sessions    SessionStore
	limiter     Limiter
	notifier    SessionNotifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewService(
	credentials CredentialStore,
	profiles ProfileStore,
	tokens *jwt.Manager,
	sessions SessionStore,
	limiter Limiter,
	notifier SessionNotifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		credentials: credentials,
		profiles:    profiles,
		tokens:      tokens,
		sessions:    sessions,
		limiter:     limiter,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
	}
}

// ========== Sign-up ==========

// SignUp creates the principal and its profile, seeded with the display
// name and role, then signs the new principal in.
func (s *Service) SignUp(ctx context.Context, req *auth.SignUpRequest) (*auth.TokenResponse, error) {
	allowed, err := s.limiter.CheckSignUpAttempt(ctx, req.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		s.metrics.SignUp("rate_limited")
		return nil, xerrors.ErrRateLimited
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", xerrors.ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password should be at least %d characters", xerrors.ErrValidation, minPasswordLength)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", xerrors.ErrValidation, req.Role)
	}
	if len(email) > auth.MaxEmailBytes || len(strings.TrimSpace(req.FullName)) > auth.MaxFullNameBytes {
		return nil, fmt.Errorf("%w: email or full_name too long", xerrors.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := ulid.Make().String()
	cred := &auth.Credential{
		PrincipalID:  id,
		Email:        email,
		PasswordHash: string(hash),
		Status:       "active",
	}
	profile := &auth.Profile{
		ID:            id,
		Role:          req.Role,
		DisplayName:   strings.TrimSpace(req.FullName),
		Email:         email,
		ProfileStatus: auth.ProfileStatusPending,
	}

	if err := s.credentials.CreateAccount(ctx, cred, profile); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateAccount) {
			s.metrics.SignUp("duplicate_account")
			return nil, xerrors.ErrDuplicateAccount
		}
		s.metrics.SignUp("error")
		return nil, err
	}

	s.logger.Info("principal signed up",
		zap.String("principal_id", id),
		zap.String("role", string(req.Role)),
	)
	s.metrics.SignUp("success")

	return s.issue(ctx, cred, profile, req.IPAddress, req.UserAgent)
}

// ========== Sign-in ==========

// SignIn authenticates an email/password pair.
func (s *Service) SignIn(ctx context.Context, req *auth.SignInRequest) (*auth.TokenResponse, error) {
	email := normalizeEmail(req.Email)

	allowed, _, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress, email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		s.metrics.SignIn("rate_limited")
		return nil, xerrors.ErrRateLimited
	}

	cred, err := s.credentials.FindCredentialByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		s.metrics.SignIn("invalid_credentials")
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if cred.Status == "suspended" {
		s.metrics.SignIn("suspended")
		return nil, fmt.Errorf("%w: account is suspended", xerrors.ErrForbidden)
	}
	if cred.LockedUntil != nil && cred.LockedUntil.After(time.Now()) {
		s.metrics.SignIn("locked")
		return nil, fmt.Errorf("%w: account is temporarily locked until %s",
			xerrors.ErrRateLimited, cred.LockedUntil.Format(time.RFC3339))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
		if err := s.credentials.IncrementFailedLoginAttempts(ctx, cred.PrincipalID, lockDuration); err != nil {
			s.logger.Error("failed to record failed login", zap.Error(err))
		}
		s.metrics.SignIn("invalid_credentials")
		return nil, xerrors.ErrInvalidCredentials
	}

	if err := s.credentials.UpdateLastLogin(ctx, cred.PrincipalID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	if err := s.limiter.ResetLoginAttempts(ctx, req.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	// A missing profile does not block sign-in; the principal just carries no role.
	profile, err := s.profiles.GetProfile(ctx, cred.PrincipalID)
	if err != nil {
		s.logger.Warn("signing in without profile",
			zap.String("principal_id", cred.PrincipalID),
			zap.Error(err),
		)
		profile = nil
	}

	s.metrics.SignIn("success")
	return s.issue(ctx, cred, profile, req.IPAddress, req.UserAgent)
}

// ========== Refresh ==========

// Refresh redeems a refresh token for a new pair. Refresh tokens are single
// use: the redeemed token is revoked before the new pair is issued.
func (s *Service) Refresh(ctx context.Context, req *auth.RefreshRequest) (*auth.TokenResponse, error) {
	claims, err := s.tokens.Verifier.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.metrics.SignIn("refresh_rejected")
		return nil, fmt.Errorf("%w: %v", xerrors.ErrSessionExpired, err)
	}

	revoked, err := s.sessions.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		s.metrics.SignIn("refresh_rejected")
		return nil, xerrors.ErrSessionExpired
	}

	cred, err := s.credentials.FindCredentialByID(ctx, claims.PrincipalID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if cred.Status == "suspended" {
		s.metrics.SignIn("suspended")
		return nil, fmt.Errorf("%w: account is suspended", xerrors.ErrForbidden)
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, cred.PrincipalID)
	if err != nil {
		s.logger.Warn("refreshing without profile",
			zap.String("principal_id", cred.PrincipalID),
			zap.Error(err),
		)
		profile = nil
	}

	s.metrics.SignIn("refreshed")
	return s.issue(ctx, cred, profile, req.IPAddress, req.UserAgent)
}

// revoke blacklists a token until it would have expired anyway.
func (s *Service) revoke(ctx context.Context, claims *jwt.Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.sessions.BlacklistToken(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// issue signs the token pair and registers the session.
func (s *Service) issue(ctx context.Context, cred *auth.Credential, profile *auth.Profile, ip, userAgent string) (*auth.TokenResponse, error) {
	sub := jwt.Subject{PrincipalID: cred.PrincipalID, Email: cred.Email}
	if profile != nil {
		sub.Role = string(profile.Role)
		sub.FullName = profile.DisplayName
	}

	accessToken, jti, err := s.tokens.Generator.GenerateAccessToken(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, _, err := s.tokens.Generator.GenerateRefreshToken(cred.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.tokens.Generator.Ttl)

	if err := s.sessions.CreateSession(ctx, &session.SessionData{
		JTI:            jti,
		PrincipalID:    cred.PrincipalID,
		Email:          cred.Email,
		Role:           sub.Role,
		IPAddress:      ip,
		UserAgent:      userAgent,
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &auth.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.Generator.Ttl.Seconds()),
		ExpiresAt:    expiresAt,
		User: auth.Principal{
			ID:    cred.PrincipalID,
			Email: cred.Email,
			Metadata: auth.PrincipalMetadata{
				Role:      auth.Role(sub.Role),
				FullName:  sub.FullName,
				IssuedAt:  now,
				ExpiresAt: expiresAt,
			},
		},
	}, nil
}

// ========== Sessions ==========

// ValidateToken verifies an access token and checks that its session is
// still registered and not revoked.
func (s *Service) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.tokens.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrSessionExpired, err)
	}

	revoked, err := s.sessions.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, xerrors.ErrSessionExpired
	}

	if _, err := s.sessions.GetSession(ctx, claims.PrincipalID, claims.ID); err != nil {
		return nil, err
	}
	return claims, nil
}

// CurrentPrincipal resolves the principal of a live session. A session
// that is gone reports ErrNoActiveSession.
func (s *Service) CurrentPrincipal(ctx context.Context, principalID, jti string) (*auth.Principal, error) {
	if principalID == "" || jti == "" {
		return nil, xerrors.ErrNoActiveSession
	}

	data, err := s.sessions.GetSession(ctx, principalID, jti)
	if errors.Is(err, xerrors.ErrSessionExpired) {
		return nil, xerrors.ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	principal := &auth.Principal{
		ID:    data.PrincipalID,
		Email: data.Email,
		Metadata: auth.PrincipalMetadata{
			Role:      auth.Role(data.Role),
			IssuedAt:  data.LoginAt,
			ExpiresAt: data.ExpiresAt,
		},
	}
	if profile, err := s.profiles.GetProfile(ctx, principalID); err == nil {
		principal.Metadata.FullName = profile.DisplayName
	}
	return principal, nil
}

// SignOut ends a session and revokes refreshToken when it is a valid
// refresh token of the same principal. Ending a session that is already
// gone succeeds.
func (s *Service) SignOut(ctx context.Context, principalID, jti string, expiresAt time.Time, refreshToken string) error {
	if refreshToken != "" {
		claims, err := s.tokens.Verifier.VerifyRefreshToken(refreshToken)
		if err == nil && (principalID == "" || claims.PrincipalID == principalID) {
			if err := s.revoke(ctx, claims); err != nil {
				return err
			}
		}
	}

	if principalID == "" || jti == "" {
		return nil
	}

	if err := s.sessions.InvalidateSession(ctx, principalID, jti); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	if err := s.sessions.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	if s.notifier != nil {
		s.notifier.ForceLogout(principalID, jti, "signed out")
	}
	s.logger.Info("principal signed out", zap.String("principal_id", principalID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
