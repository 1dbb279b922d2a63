// Package session owns the authenticated session: the bearer token and the
// user it was issued for. Both are persisted in a kvstore.Store so a session
// survives restarts, and are removed on logout or when the backend rejects
// the token with a 401.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/octscan/octscan/internal/domain/clinic"
	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/apierr"
	"github.com/octscan/octscan/internal/platform/gateway"
	"github.com/octscan/octscan/internal/platform/kvstore"
)

// Storage keys.
const (
	TokenKey   = "access_token"
	UserKey    = "user"
	HistoryKey = "reschedule_history"
	OrphansKey = "inference_orphans"
)

// Session is the bearer credential plus the user it belongs to.
type Session struct {
	Token string       `json:"token"`
	User  gateway.User `json:"user"`
}

// AuthGateway is the part of the remote API the session manager needs.
type AuthGateway interface {
	Register(ctx context.Context, reg gateway.Registration) (*gateway.TokenResponse, error)
	Login(ctx context.Context, creds gateway.Credentials) (*gateway.TokenResponse, error)
	CurrentUser(ctx context.Context) (*gateway.User, error)
}

type Manager struct {
	gw     AuthGateway
	kv     kvstore.Store
	logger zerolog.Logger
}

// Open hydrates the manager from storage. Gateways that need the token
// should be given m.Token as their token source.
func Open(ctx context.Context, gw AuthGateway, kv kvstore.Store, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{gw: gw, kv: kv, logger: logger}
	_, ok, err := kv.Get(ctx, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if ok {
		ev := logger.Debug()
		if u := m.StoredUser(ctx); u != nil {
			ev = ev.Str("username", u.Username).Str("role", u.Role)
		}
		ev.Msg("session restored")
	} else {
		logger.Debug().Msg("no stored session")
	}
	return m, nil
}

// SetGateway replaces the gateway, for callers that build the gateway with
// m.Token as its token source after Open.
func (m *Manager) SetGateway(gw AuthGateway) { m.gw = gw }

func (m *Manager) Register(ctx context.Context, reg gateway.Registration) (*Session, error) {
	const op = "register"
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Password == "" {
		return nil, apierr.Validation(op, "username and password are required")
	}
	if reg.Email == "" {
		return nil, apierr.Validation(op, "email is required")
	}
	role := roles.Parse(reg.Role)
	if role == "" {
		return nil, apierr.Validation(op, fmt.Sprintf("role must be %s or %s", roles.Doctor, roles.Technician))
	}
	reg.Role = string(role)

	resp, err := m.gw.Register(ctx, reg)
	if err != nil {
		return nil, authFailure(op, err)
	}
	return m.establish(ctx, op, resp)
}

func (m *Manager) Login(ctx context.Context, creds gateway.Credentials) (*Session, error) {
	const op = "login"
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return nil, apierr.Validation(op, "username and password are required")
	}

	resp, err := m.gw.Login(ctx, creds)
	if err != nil {
		return nil, authFailure(op, err)
	}
	return m.establish(ctx, op, resp)
}

// authFailure reports a 2xx answer the gateway could not decode as an
// AuthError. Every other gateway error already carries op and is returned
// as is.
func authFailure(op string, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Kind == apierr.KindServer && ae.Status >= 200 && ae.Status < 300 {
		return &apierr.Error{
			Kind:   apierr.KindAuth,
			Op:     op,
			Status: ae.Status,
			Detail: "malformed authentication response",
			Err:    ae.Err,
		}
	}
	return err
}

func (m *Manager) establish(ctx context.Context, op string, resp *gateway.TokenResponse) (*Session, error) {
	if resp == nil || resp.AccessToken == "" || resp.User.ID == "" {
		return nil, apierr.Auth(op, "malformed authentication response")
	}
	user, err := json.Marshal(resp.User)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	// A new session starts with an empty reschedule history and no orphans.
	if err := m.kv.Delete(ctx, HistoryKey, OrphansKey); err != nil {
		return nil, fmt.Errorf("reset history: %w", err)
	}
	// The token is written last: its presence is what marks the session
	// authenticated.
	if err := m.kv.Set(ctx, UserKey, string(user)); err != nil {
		return nil, m.abandon(ctx, fmt.Errorf("store user: %w", err))
	}
	if err := m.kv.Set(ctx, TokenKey, resp.AccessToken); err != nil {
		return nil, m.abandon(ctx, fmt.Errorf("store token: %w", err))
	}

	m.logger.Info().Str("username", resp.User.Username).Str("role", resp.User.Role).Msg("session established")
	return &Session{Token: resp.AccessToken, User: resp.User}, nil
}

// abandon clears a half-written session and returns err.
func (m *Manager) abandon(ctx context.Context, err error) error {
	if derr := m.kv.Delete(ctx, TokenKey, UserKey); derr != nil {
		m.logger.Error().Err(derr).Msg("clear partial session")
	}
	return err
}

// Logout clears the stored session. Calling it without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	return m.Invalidate(ctx, "logout")
}

// Invalidate moves the session to unauthenticated.
func (m *Manager) Invalidate(ctx context.Context, reason string) error {
	if err := m.kv.Delete(ctx, TokenKey, UserKey, HistoryKey, OrphansKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.logger.Info().Str("reason", reason).Msg("session cleared")
	return nil
}

func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.Token(ctx) != ""
}

// Token returns the stored bearer token or "". Its signature matches
// gateway.TokenSource.
func (m *Manager) Token(ctx context.Context) string {
	tok, ok, err := m.kv.Get(ctx, TokenKey)
	if err != nil {
		m.logger.Warn().Err(err).Msg("read token")
		return ""
	}
	if !ok {
		return ""
	}
	return tok
}

// CurrentUser asks the backend who the stored token belongs to. A 401 clears
// the session before the AuthError is returned, so the token is never reused.
func (m *Manager) CurrentUser(ctx context.Context) (*gateway.User, error) {
	const op = "current user"
	if !m.IsAuthenticated(ctx) {
		return nil, apierr.Auth(op, "not logged in")
	}

	u, err := m.gw.CurrentUser(ctx)
	if err != nil {
		if apierr.IsUnauthorized(err) {
			if ierr := m.Invalidate(ctx, "token rejected"); ierr != nil {
				m.logger.Error().Err(ierr).Msg("invalidate session")
			}
		}
		return nil, err
	}
	return u, nil
}

// StoredUser returns the last known user without a network call, or nil.
func (m *Manager) StoredUser(ctx context.Context) *gateway.User {
	raw, ok, err := m.kv.Get(ctx, UserKey)
	if err != nil || !ok {
		return nil
	}
	var u gateway.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Warn().Err(err).Msg("stored user is unreadable")
		return nil
	}
	return &u
}

// Role is the stored user's role, empty when there is none.
func (m *Manager) Role(ctx context.Context) roles.Role {
	if !m.IsAuthenticated(ctx) {
		return ""
	}
	u := m.StoredUser(ctx)
	if u == nil {
		return ""
	}
	return roles.Parse(u.Role)
}

// History loads the session's reschedule history.
func (m *Manager) History(ctx context.Context) (*clinic.RescheduleHistory, error) {
	raw, ok, err := m.kv.Get(ctx, HistoryKey)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if !ok || raw == "" {
		return clinic.NewRescheduleHistory(), nil
	}
	var records []clinic.RescheduleRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		m.logger.Warn().Err(err).Msg("stored reschedule history is unreadable, starting empty")
		return clinic.NewRescheduleHistory(), nil
	}
	return clinic.NewRescheduleHistory(records...), nil
}

// SaveHistory persists the reschedule history. Without a session there is
// nothing to attach it to and it is discarded.
func (m *Manager) SaveHistory(ctx context.Context, h *clinic.RescheduleHistory) error {
	if !m.IsAuthenticated(ctx) {
		return nil
	}
	raw, err := json.Marshal(h.Records())
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := m.kv.Set(ctx, HistoryKey, string(raw)); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

// Orphans loads the inference results recorded this session whose scan
// could not be saved.
func (m *Manager) Orphans(ctx context.Context) ([]clinic.Orphan, error) {
	raw, ok, err := m.kv.Get(ctx, OrphansKey)
	if err != nil {
		return nil, fmt.Errorf("read orphans: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var orphans []clinic.Orphan
	if err := json.Unmarshal([]byte(raw), &orphans); err != nil {
		m.logger.Warn().Err(err).Msg("stored orphans are unreadable, starting empty")
		return nil, nil
	}
	return orphans, nil
}

// SaveOrphans persists the orphaned inference list. Like SaveHistory it is
// a no-op without a session.
func (m *Manager) SaveOrphans(ctx context.Context, orphans []clinic.Orphan) error {
	if !m.IsAuthenticated(ctx) {
		return nil
	}
	raw, err := json.Marshal(orphans)
	if err != nil {
		return fmt.Errorf("encode orphans: %w", err)
	}
	if err := m.kv.Set(ctx, OrphansKey, string(raw)); err != nil {
		return fmt.Errorf("store orphans: %w", err)
	}
	return nil
}
