package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"unitevol-service/internal/domain/auth"
	xerrors "unitevol-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// envelope mirrors the API response format.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// HTTPGateway talks JSON to the API and keeps the session's token pair in
// a TokenStore. It does not cache. The only retry is a single one after an
// expired access token was refreshed.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenStore
	logger  *zap.Logger

	refreshMu sync.Mutex
}

func NewHTTPGateway(baseURL string, timeout time.Duration, tokens TokenStore, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logger,
	}
}

var _ Gateway = (*HTTPGateway)(nil)

const (
	tokenPath   = "/api/v1/auth/token"
	refreshPath = tokenPath + "?grant_type=refresh_token"
)

// ========== Identity ==========

func (g *HTTPGateway) SignUp(ctx context.Context, email, password string, attrs Attributes) (*auth.Principal, error) {
	body := map[string]interface{}{
		"email":     email,
		"password":  password,
		"full_name": attrs.DisplayName,
		"role":      attrs.Role,
	}
	return g.issue(ctx, "/api/v1/auth/signup", body)
}

func (g *HTTPGateway) SignIn(ctx context.Context, email, password string) (*auth.Principal, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	return g.issue(ctx, tokenPath, body)
}

func (g *HTTPGateway) issue(ctx context.Context, path string, body interface{}) (*auth.Principal, error) {
	var resp auth.TokenResponse
	if err := g.do(ctx, http.MethodPost, path, body, &resp, ""); err != nil {
		return nil, err
	}
	if err := g.tokens.Save(ctx, Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// SignOut ends the remote session and revokes its refresh token. The local
// pair is cleared whatever the provider answers.
func (g *HTTPGateway) SignOut(ctx context.Context) error {
	tokens, err := g.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if tokens.Empty() {
		return nil
	}

	body := auth.SignOutRequest{RefreshToken: tokens.RefreshToken}
	remoteErr := g.do(ctx, http.MethodPost, "/api/v1/auth/logout", body, nil, tokens.AccessToken)
	if err := g.tokens.Clear(ctx); err != nil {
		return err
	}

	if isSessionGone(remoteErr) {
		return nil
	}
	return remoteErr
}

func (g *HTTPGateway) GetCurrentPrincipal(ctx context.Context) (*auth.Principal, error) {
	tokens, err := g.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tokens.Empty() {
		return nil, xerrors.ErrNoActiveSession
	}

	var principal auth.Principal
	err = g.authed(ctx, http.MethodGet, "/api/v1/auth/user", nil, &principal)
	if isSessionGone(err) {
		if err := g.tokens.Clear(ctx); err != nil {
			g.logger.Warn("failed to clear stale tokens", zap.Error(err))
		}
		return nil, xerrors.ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &principal, nil
}

// refresh redeems the stored refresh token for a new pair. A caller whose
// access token was already replaced by a concurrent refresh just retries.
func (g *HTTPGateway) refresh(ctx context.Context, stale string) error {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	tokens, err := g.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if tokens.AccessToken != stale && tokens.AccessToken != "" {
		return nil
	}
	if tokens.RefreshToken == "" {
		return xerrors.ErrNoActiveSession
	}

	var resp auth.TokenResponse
	body := auth.RefreshRequest{RefreshToken: tokens.RefreshToken}
	if err := g.do(ctx, http.MethodPost, refreshPath, body, &resp, ""); err != nil {
		return err
	}
	if err := g.tokens.Save(ctx, Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}); err != nil {
		return err
	}
	g.logger.Info("session refreshed", zap.String("principal_id", resp.User.ID))
	return nil
}

// ========== Profiles ==========

func (g *HTTPGateway) GetProfile(ctx context.Context, id string) (*auth.Profile, error) {
	var profile auth.Profile
	if err := g.authed(ctx, http.MethodGet, profilePath(id, ""), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (g *HTTPGateway) UpdateProfile(ctx context.Context, id string, patch auth.ProfilePatch) (*auth.Profile, error) {
	var profile auth.Profile
	if err := g.authed(ctx, http.MethodPatch, profilePath(id, ""), patch.SelfService(), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (g *HTTPGateway) UpdateRoleProfile(ctx context.Context, role auth.Role, id string, fields map[string]interface{}) error {
	body := auth.RoleDetailsRequest{Role: role, Fields: fields}
	return g.authed(ctx, http.MethodPut, profilePath(id, "/role-details"), body, nil)
}

func (g *HTTPGateway) UpdateSkills(ctx context.Context, id string, skills []auth.Skill) error {
	return g.authed(ctx, http.MethodPut, profilePath(id, "/skills"), auth.SkillsRequest{Skills: skills}, nil)
}

func (g *HTTPGateway) UpdateAvailability(ctx context.Context, id string, a auth.Availability) error {
	return g.authed(ctx, http.MethodPut, profilePath(id, "/availability"), a, nil)
}

func (g *HTTPGateway) IsProfileComplete(ctx context.Context, id string) (bool, error) {
	var resp auth.CompletionResponse
	if err := g.authed(ctx, http.MethodGet, profilePath(id, "/completion"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Complete, nil
}

func profilePath(id, suffix string) string {
	return "/api/v1/profiles/" + url.PathEscape(id) + suffix
}

// ========== Transport ==========

// authed sends an authenticated request. When the provider reports the
// session gone and a refresh token is stored, it refreshes once and
// retries with the new access token.
func (g *HTTPGateway) authed(ctx context.Context, method, path string, body, out interface{}) error {
	tokens, err := g.tokens.Load(ctx)
	if err != nil {
		return err
	}

	err = g.do(ctx, method, path, body, out, tokens.AccessToken)
	if !isSessionGone(err) || tokens.RefreshToken == "" {
		return err
	}

	if rerr := g.refresh(ctx, tokens.AccessToken); rerr != nil {
		if isSessionGone(rerr) {
			return err
		}
		return rerr
	}
	if tokens, err = g.tokens.Load(ctx); err != nil {
		return err
	}
	return g.do(ctx, method, path, body, out, tokens.AccessToken)
}

// do sends body as JSON, with token as the bearer when set, and decodes the
// envelope's data into out. Failed envelopes are mapped back onto the
// sentinel named by their code.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out interface{}, token string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", xerrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: unreadable response (status %d): %v", xerrors.ErrNetwork, resp.StatusCode, err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return envelopeError(resp.StatusCode, &env)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func envelopeError(status int, env *envelope) error {
	detail := env.Error
	if detail == "" {
		detail = env.Message
	}

	sentinel := xerrors.FromCode(env.Code)
	if sentinel == nil {
		switch {
		case status == http.StatusBadRequest:
			sentinel = xerrors.ErrValidation
		case status == http.StatusUnauthorized:
			sentinel = xerrors.ErrNotAuthenticated
		case status >= http.StatusInternalServerError:
			sentinel = xerrors.ErrNetwork
		}
	}

	if sentinel == nil {
		return fmt.Errorf("%s (status %d)", detail, status)
	}
	detail = strings.TrimPrefix(detail, sentinel.Error()+": ")
	if detail == "" || detail == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

// isSessionGone reports errors meaning the provider has no session for us.
func isSessionGone(err error) bool {
	return errors.Is(err, xerrors.ErrNoActiveSession) ||
		errors.Is(err, xerrors.ErrSessionExpired) ||
		errors.Is(err, xerrors.ErrNotAuthenticated)
}
