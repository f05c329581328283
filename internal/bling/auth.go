package bling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/blingpick/blingpick/internal/tokenfile"
)

// Default Bling v3 OAuth endpoints.
const (
	DefaultTokenURL    = "https://www.bling.com.br/Api/v3/oauth/token"
	DefaultAuthURL     = "https://www.bling.com.br/Api/v3/oauth/authorize"
	DefaultRedirectURL = "http://localhost"
)

// DefaultRefreshTimeout bounds a single call to the token endpoint.
const DefaultRefreshTimeout = 10 * time.Second

// refreshKey is the single singleflight key: there is only one token.
const refreshKey = "refresh"

// errCodeInvalidGrant is the RFC 6749 error code for a dead refresh token.
const errCodeInvalidGrant = "invalid_grant"

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	TokenPath             string
	ClientID              string
	ClientSecret          string
	BootstrapRefreshToken string // used only when the token file has none
	TokenURL              string
	AuthURL               string
	RedirectURL           string
	// HTTPClient performs token endpoint calls. Nil means a client with
	// DefaultRefreshTimeout.
	HTTPClient *http.Client
}

// TokenStatus is a point-in-time view of the token state, safe to display.
type TokenStatus struct {
	Configured      bool      `json:"configured"`
	HasAccessToken  bool      `json:"hasAccessToken"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
	Valid           bool      `json:"valid"`
	ExpiresAt       time.Time `json:"expiresAt"`
	LockedOut       bool      `json:"lockedOut"`
}

// TokenManager keeps one valid Bling access token alive for all callers.
// Expired tokens are refreshed on demand; concurrent refreshes are coalesced
// into a single token endpoint call because Bling invalidates a refresh token
// after its first use.
type TokenManager struct {
	path       string
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group

	// now is replaceable in tests.
	now func() time.Time

	// saveMu spans adopting a new record and writing it to disk, so Reload
	// never reads a file older than the in-memory record.
	saveMu sync.Mutex

	mu  sync.Mutex
	rec tokenfile.Record
	// lockout is set after an invalid_grant response and returned by every
	// refresh until the credentials are replaced via Reload or Exchange.
	lockout error
}

// NewTokenManager creates a TokenManager and loads the persisted token file.
// A missing or unreadable file is logged and treated as empty state; it
// never fails construction.
func NewTokenManager(cfg TokenConfig, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRefreshTimeout}
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}

	m := &TokenManager{
		path: cfg.TokenPath,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}

	rec, err := tokenfile.Load(cfg.TokenPath)
	if err != nil {
		logger.Warn("could not load saved token, starting without one",
			slog.String("path", cfg.TokenPath),
			slog.String("error", err.Error()),
		)

		rec = tokenfile.Record{}
	}

	if rec.RefreshToken == "" {
		rec.RefreshToken = cfg.BootstrapRefreshToken
	}

	m.rec = rec

	logger.Info("token state initialized",
		slog.String("path", cfg.TokenPath),
		slog.Bool("has_refresh_token", rec.RefreshToken != ""),
		slog.Time("expires_at", rec.ExpiresAt),
	)

	return m
}

// AccessToken returns the cached access token while it is valid, otherwise
// refreshes it.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.rec.Valid(m.now()) {
		tok := m.rec.AccessToken
		m.mu.Unlock()

		return tok, nil
	}
	m.mu.Unlock()

	return m.refresh(ctx, func(rec tokenfile.Record, now time.Time) bool {
		return rec.Valid(now)
	})
}

// RefreshAfterReject forces a refresh after the ERP rejected the given
// access token, ignoring the local expiry. If another caller has already
// replaced the rejected token, the replacement is returned without a second
// refresh.
func (m *TokenManager) RefreshAfterReject(ctx context.Context, rejected string) (string, error) {
	m.mu.Lock()
	if m.rec.AccessToken != rejected && m.rec.Valid(m.now()) {
		tok := m.rec.AccessToken
		m.mu.Unlock()

		return tok, nil
	}
	m.mu.Unlock()

	return m.refresh(ctx, func(rec tokenfile.Record, now time.Time) bool {
		return rec.AccessToken != rejected && rec.Valid(now)
	})
}

// Refresh performs the refresh_token grant. Concurrent callers share one
// in-flight call and observe the same outcome. The shared call is detached
// from any single caller's cancellation and bounded by the HTTP client
// timeout instead.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	return m.refresh(ctx, nil)
}

// reusable reports whether the in-memory record already satisfies a caller.
// A nil reusable forces the grant.
type reusable func(rec tokenfile.Record, now time.Time) bool

func (m *TokenManager) refresh(ctx context.Context, reuse reusable) (string, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx), reuse)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		tok, _ := res.Val.(string)

		return tok, nil
	case <-ctx.Done():
		return "", fmt.Errorf("bling: waiting for token refresh: %w", ctx.Err())
	}
}

func (m *TokenManager) doRefresh(ctx context.Context, reuse reusable) (string, error) {
	m.mu.Lock()
	// A flight that finished just before this one started may already have
	// replaced the token.
	if reuse != nil && reuse(m.rec, m.now()) {
		tok := m.rec.AccessToken
		m.mu.Unlock()

		return tok, nil
	}

	lockout := m.lockout
	refresh := m.rec.RefreshToken
	m.mu.Unlock()

	if lockout != nil {
		return "", lockout
	}

	if err := m.checkCredentials(); err != nil {
		return "", err
	}

	if refresh == "" {
		return "", fmt.Errorf("%w: no refresh token (run \"blingpick auth exchange\" or set BLING_REFRESH_TOKEN)",
			ErrNotConfigured)
	}

	m.logger.Info("refreshing bling access token")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", m.refreshError(err)
	}

	rec := m.store(tok)

	m.logger.Info("bling access token refreshed", slog.Time("expires_at", rec.ExpiresAt))

	return rec.AccessToken, nil
}

// refreshError classifies a token endpoint failure. invalid_grant latches
// the lockout so no later call retries with the dead refresh token.
func (m *TokenManager) refreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && isInvalidGrant(re) {
		terminal := ErrInvalidGrant
		if re.ErrorDescription != "" {
			terminal = fmt.Errorf("%w: %s", ErrInvalidGrant, re.ErrorDescription)
		}

		m.mu.Lock()
		m.lockout = terminal
		m.mu.Unlock()

		m.logger.Error("bling rejected the refresh token; run \"blingpick auth exchange\" to re-authorize")

		return terminal
	}

	m.logger.Warn("token refresh failed", slog.String("error", err.Error()))

	return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
}

// isInvalidGrant accepts both the flat RFC 6749 error body and Bling's
// nested {"error":{"type":"invalid_grant"}} form.
func isInvalidGrant(re *oauth2.RetrieveError) bool {
	if re.ErrorCode == errCodeInvalidGrant {
		return true
	}

	var body struct {
		Error json.RawMessage `json:"error"`
	}

	if err := json.Unmarshal(re.Body, &body); err != nil || len(body.Error) == 0 {
		return false
	}

	var code string
	if err := json.Unmarshal(body.Error, &code); err == nil {
		return code == errCodeInvalidGrant
	}

	var nested struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return nested.Type == errCodeInvalidGrant
	}

	return false
}

// store adopts a freshly issued token in memory and persists it. A failed
// write is logged: the in-memory token is still usable.
func (m *TokenManager) store(tok *oauth2.Token) tokenfile.Record {
	rec := m.recordFrom(tok)

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	m.rec = rec
	m.lockout = nil
	m.mu.Unlock()

	if err := tokenfile.Save(m.path, rec); err != nil {
		m.logger.Warn("failed to persist refreshed token",
			slog.String("path", m.path),
			slog.String("error", err.Error()),
		)
	}

	return rec
}

// recordFrom converts a grant response. oauth2 turns expires_in into an
// absolute Expiry at receipt; the remaining lifetime goes back through
// tokenfile.NewRecord so the margin is applied in one place.
func (m *TokenManager) recordFrom(tok *oauth2.Token) tokenfile.Record {
	if tok.Expiry.IsZero() {
		m.logger.Warn("token response has no expires_in, token will be refreshed on next use")

		return tokenfile.Record{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	}

	now := m.now()

	return tokenfile.NewRecord(tok.AccessToken, tok.RefreshToken, tok.Expiry.Sub(now), now)
}

func (m *TokenManager) checkCredentials() error {
	if m.oauth.ClientID == "" || m.oauth.ClientSecret == "" {
		return fmt.Errorf("%w: BLING_CLIENT_ID and BLING_CLIENT_SECRET are required", ErrNotConfigured)
	}

	return nil
}

// Reload re-reads the token file and adopts it when it carries a different
// refresh token than the one in memory, clearing any invalid_grant lockout.
// Called when the file is replaced by another process. While not locked
// out, a file that expires no later than the in-memory record is stale and
// ignored.
func (m *TokenManager) Reload() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	rec, err := tokenfile.Load(m.path)
	if err != nil {
		m.logger.Warn("could not reload token file",
			slog.String("path", m.path),
			slog.String("error", err.Error()),
		)

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.RefreshToken == "" || rec.RefreshToken == m.rec.RefreshToken {
		return
	}

	if m.lockout == nil && !rec.ExpiresAt.After(m.rec.ExpiresAt) {
		m.logger.Debug("ignoring token file older than the in-memory token", slog.String("path", m.path))
		return
	}

	m.rec = rec
	m.lockout = nil

	m.logger.Info("adopted replaced token file", slog.String("path", m.path))
}

// AuthorizeURL returns the URL an operator opens to grant blingpick access.
func (m *TokenManager) AuthorizeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair and persists it.
// This replaces the refresh token and clears any lockout.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	if err := m.checkCredentials(); err != nil {
		return err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("bling: authorization code exchange failed: %w", err)
	}

	rec := m.recordFrom(tok)

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	m.rec = rec
	m.lockout = nil
	m.mu.Unlock()

	if err := tokenfile.Save(m.path, rec); err != nil {
		return fmt.Errorf("bling: saving token: %w", err)
	}

	m.logger.Info("authorization code exchanged",
		slog.String("path", m.path),
		slog.Time("expires_at", rec.ExpiresAt),
	)

	return nil
}

// Status reports the current token state without contacting Bling.
func (m *TokenManager) Status() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return TokenStatus{
		Configured:      m.checkCredentials() == nil,
		HasAccessToken:  m.rec.AccessToken != "",
		HasRefreshToken: m.rec.RefreshToken != "",
		Valid:           m.rec.Valid(m.now()),
		ExpiresAt:       m.rec.ExpiresAt,
		LockedOut:       m.lockout != nil,
	}
}
