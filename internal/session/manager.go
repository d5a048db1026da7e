package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"commenthub/internal/metrics"
	"commenthub/internal/store"
	"commenthub/internal/token"
	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

var errEmptyProfile = errors.New("empty profile")

// Gateway is the subset of the comment service the session needs
type Gateway interface {
	Login(ctx context.Context, creds models.LoginRequest) (*models.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (*models.TokenPair, error)
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
}

// Manager is the single source of truth for authentication
type Manager struct {
	gateway Gateway
	store   *store.Store
	metrics metrics.Recorder

	mu         sync.Mutex
	state      Session
	refreshing bool
	// epoch changes on every login and logout so a refresh started under an
	// older session cannot write its result into a newer one
	epoch     uint64
	observers []func(Session)

	// persistMu serializes store writes with epoch changes; every epoch bump
	// happens under it, so a writer holding it sees a stable epoch
	persistMu sync.Mutex

	refreshGroup singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithMetrics reports refresh outcomes to r
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates an anonymous session manager. Call Initialize to restore
// a persisted session.
func NewManager(gw Gateway, st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		gateway: gw,
		store:   st,
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current session
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// IsAuthenticated
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated()
}

// State returns the logical phase of the session
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.refreshing:
		return StateRefreshing
	case m.state.IsLoading:
		return StateAuthenticating
	case m.state.IsAuthenticated():
		return StateAuthenticated
	default:
		return StateAnonymous
	}
}

// OnChange registers fn to be called with a copy of the session after every change.
// fn runs on the goroutine that made the change. It must not block or call
// back into methods that change the session.
func (m *Manager) OnChange(fn func(Session)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Initialize restores the persisted session. An expired access token is
// refreshed; if that fails the session is cleared. The profile is then
// re-fetched on a best-effort basis.
func (m *Manager) Initialize(ctx context.Context) error {
	access, err := m.store.AccessToken(ctx)
	if err != nil {
		return err
	}
	refresh, err := m.store.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if access == "" || refresh == "" {
		logger.Debug("No persisted session")
		return nil
	}

	user, err := m.store.User(ctx)
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Discarding unreadable cached profile")
		user = nil
	}

	m.update(func(s *Session) {
		s.User = user
		s.AccessToken = access
		s.RefreshToken = refresh
		s.LastError = ""
	})

	if token.IsExpired(access, 0) {
		logger.Info("Persisted access token expired, refreshing")
		if err := m.RefreshTokens(ctx, refresh); err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Could not restore session")
			return nil
		}
	}

	m.refreshProfile(ctx)
	return nil
}

// refreshProfile re-fetches the profile and caches it. Failures are logged only.
func (m *Manager) refreshProfile(ctx context.Context) {
	m.mu.Lock()
	access, epoch := m.state.AccessToken, m.epoch
	m.mu.Unlock()
	if access == "" {
		return
	}

	user, err := m.gateway.CurrentUser(ctx, access)
	if err == nil && user.ID == 0 {
		err = errEmptyProfile
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Failed to refresh user profile")
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if !m.updateIf(epoch, func(s *Session) { s.User = user }) {
		return
	}
	if err := m.store.SetUser(ctx, user); err != nil {
		logger.Warnf("Failed to cache user profile: %v", err)
	}
}

// Login authenticates with the service and stores the resulting session
func (m *Manager) Login(ctx context.Context, creds models.LoginRequest) (*models.User, error) {
	m.update(func(s *Session) {
		s.IsLoading = true
		s.LastError = ""
	})

	user, tokens, err := m.authenticate(ctx, creds)
	if err == nil {
		err = m.establish(ctx, user, tokens)
	}
	if err != nil {
		m.fail(err)
		return nil, err
	}

	logger.WithFields(map[string]interface{}{"user_id": user.ID, "username": user.Username}).Info("Logged in")
	return copyUser(user), nil
}

// Register creates an account and logs straight into it
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := models.ValidateRegisterRequest(&req); err != nil {
		appErr := models.NewProtocolError(models.ErrCodeInvalidInput, err.Error(), err)
		m.update(func(s *Session) { s.LastError = appErr.Message })
		return nil, appErr
	}

	m.update(func(s *Session) {
		s.IsLoading = true
		s.LastError = ""
	})

	if _, err := m.gateway.Register(ctx, req); err != nil {
		m.fail(err)
		return nil, err
	}

	user, tokens, err := m.authenticate(ctx, req.Credentials())
	if err == nil {
		err = m.establish(ctx, user, tokens)
	}
	if err != nil {
		m.fail(err)
		return nil, err
	}

	logger.WithFields(map[string]interface{}{"user_id": user.ID, "username": user.Username}).Info("Registered and logged in")
	return copyUser(user), nil
}

// authenticate obtains tokens and a profile without touching session state.
// When the profile endpoint fails the user is rebuilt from the token subject.
func (m *Manager) authenticate(ctx context.Context, creds models.LoginRequest) (*models.User, *models.TokenPair, error) {
	tokens, err := m.gateway.Login(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	user, err := m.gateway.CurrentUser(ctx, tokens.Access)
	if err == nil && user.ID != 0 {
		return user, tokens, nil
	}
	if err == nil {
		err = errEmptyProfile
	}
	logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Profile unavailable, using token subject")

	id, ok := token.SubjectID(tokens.Access)
	if !ok {
		return nil, nil, models.NewAuthError(models.ErrCodeInvalidToken, "unable to determine user from access token", models.ErrInvalidToken)
	}
	return &models.User{ID: id, Username: creds.Username, Email: ""}, tokens, nil
}

// establish persists and installs a freshly authenticated session. A failed
// write leaves the previously persisted session in place.
func (m *Manager) establish(ctx context.Context, u *models.User, tokens *models.TokenPair) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	err := m.store.Save(ctx, store.Record{
		AccessToken:  tokens.Access,
		RefreshToken: tokens.Refresh,
		User:         u,
	})
	if err != nil {
		return models.NewStateError(models.ErrCodeInvalidInput, "failed to persist session", err)
	}

	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()
	m.update(func(s *Session) {
		s.User = u
		s.AccessToken = tokens.Access
		s.RefreshToken = tokens.Refresh
		s.IsLoading = false
		s.LastError = ""
	})
	return nil
}

// RefreshTokens mints a new access token from refreshToken, or from the
// session's refresh token when it is empty. Concurrent callers share one
// request. Any failure logs the session out.
func (m *Manager) RefreshTokens(ctx context.Context, refreshToken string) error {
	m.mu.Lock()
	if refreshToken == "" {
		refreshToken = m.state.RefreshToken
	}
	epoch := m.epoch
	m.mu.Unlock()

	if refreshToken == "" {
		return models.NewAuthError(models.ErrCodeRefreshFailed, "no refresh token", models.ErrNoRefreshToken)
	}

	ch := m.refreshGroup.DoChan(refreshToken, func() (interface{}, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx), refreshToken, epoch)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return models.NewNetworkError("token refresh cancelled", ctx.Err())
	}
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string, epoch uint64) error {
	m.mu.Lock()
	m.refreshing = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	tokens, err := m.gateway.RefreshToken(ctx, refreshToken)
	if err != nil {
		m.metrics.RecordRefresh(false)
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("Token refresh failed, logging out")
		m.logoutIf(ctx, epoch)
		return models.NewAuthError(models.ErrCodeRefreshFailed, "session expired, please log in again", err)
	}
	m.metrics.RecordRefresh(true)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	applied := m.updateIf(epoch, func(s *Session) {
		s.AccessToken = tokens.Access
		if tokens.Refresh != "" {
			s.RefreshToken = tokens.Refresh
		}
	})
	if !applied {
		return models.NewAuthError(models.ErrCodeRefreshFailed, "session changed during refresh", models.ErrNoAccessToken)
	}

	if err := m.store.SetAccessToken(ctx, tokens.Access); err != nil {
		logger.Warnf("Failed to persist refreshed access token: %v", err)
	}
	if tokens.Refresh != "" {
		if err := m.store.SetRefreshToken(ctx, tokens.Refresh); err != nil {
			logger.Warnf("Failed to persist rotated refresh token: %v", err)
		}
	}
	logger.Debug("Access token refreshed")
	return nil
}

// GetValidAccessToken returns an access token that is not within the expiry
// buffer, refreshing first when needed. Every authorized call goes through here.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	access := m.state.AccessToken
	m.mu.Unlock()

	if access == "" {
		return "", models.NewAuthError(models.ErrCodeUnauthorized, "no access token", models.ErrNoAccessToken)
	}
	if !token.IsExpired(access, token.DefaultExpiryBuffer) {
		return access, nil
	}

	if err := m.RefreshTokens(ctx, ""); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AccessToken == "" {
		return "", models.NewAuthError(models.ErrCodeUnauthorized, "no access token", models.ErrNoAccessToken)
	}
	return m.state.AccessToken, nil
}

// UpdateUser merges patch into the cached profile without contacting the service
func (m *Manager) UpdateUser(ctx context.Context, patch models.UserPatch) (*models.User, error) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, models.NewStateError(models.ErrCodeNoUser, "no user logged in", models.ErrNoUser)
	}
	updated := patch.Apply(*m.state.User)
	epoch := m.epoch
	m.mu.Unlock()

	if err := m.store.SetUser(ctx, &updated); err != nil {
		return nil, models.NewStateError(models.ErrCodeInvalidInput, "failed to persist profile", err)
	}
	if !m.updateIf(epoch, func(s *Session) { s.User = &updated }) {
		return nil, models.NewStateError(models.ErrCodeNoUser, "no user logged in", models.ErrNoUser)
	}

	out := updated
	return &out, nil
}

// Logout clears the session in memory and in the store. It is safe to call
// when already logged out.
func (m *Manager) Logout(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.logoutLocked(ctx)
}

// logoutLocked clears the session; the caller holds persistMu
func (m *Manager) logoutLocked(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()
	m.update(func(s *Session) { *s = Session{} })

	if err := m.store.Clear(ctx); err != nil {
		logger.Errorf("Failed to clear persisted session: %v", err)
		return err
	}
	logger.Debug("Session cleared")
	return nil
}

// logoutIf logs out unless another login or logout happened since epoch
func (m *Manager) logoutIf(ctx context.Context, epoch uint64) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	current := m.epoch == epoch
	m.mu.Unlock()
	if !current {
		return
	}
	if err := m.logoutLocked(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warnf("Logout after failed refresh: %v", err)
	}
}

// fail records err and ends any loading phase without touching credentials
func (m *Manager) fail(err error) {
	m.update(func(s *Session) {
		s.IsLoading = false
		s.LastError = models.Message(err)
	})
}

func (m *Manager) update(fn func(*Session)) {
	m.mu.Lock()
	fn(&m.state)
	m.notifyLocked()
}

// updateIf applies fn only while the session epoch is still epoch
func (m *Manager) updateIf(epoch uint64, fn func(*Session)) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	fn(&m.state)
	m.notifyLocked()
	return true
}

// notifyLocked releases m.mu and hands observers a copy of the new state
func (m *Manager) notifyLocked() {
	snap := m.state.clone()
	observers := append([]func(Session){}, m.observers...)
	m.mu.Unlock()

	for _, obs := range observers {
		obs(snap)
	}
}

func copyUser(u *models.User) *models.User {
	out := *u
	return &out
}
