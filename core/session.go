package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle of the session store
type Status int

const (
	StatusLoading Status = iota
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Snapshot is an immutable view of the session at one point in time
type Snapshot struct {
	Token   string
	User    *User
	Status  Status
	Version uint64
}

// Authenticated reports whether the snapshot holds a validated user
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusReady && s.Token != "" && s.User != nil
}

type SessionConfig struct {
	// ValidateTimeout bounds the startup /users/me call
	ValidateTimeout time.Duration
	// TokenExpiry, when set, reports the expiry embedded in a token.
	// ok is false for tokens that carry no expiry.
	TokenExpiry func(token string) (exp time.Time, ok bool)
	Now         func() time.Time
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ValidateTimeout: 8 * time.Second,
		Now:             time.Now,
	}
}

// SessionStore is the single owner of who is logged in.
//
// All writes go through Initialize, Login and Logout. Each Login or Logout
// advances the epoch, and a validation that finishes under an older epoch is
// dropped, so a slow startup check can never resurrect a cleared session.
type SessionStore struct {
	config SessionConfig
	tokens TokenStore
	logger *zap.Logger

	mu      sync.Mutex
	token   string
	user    *User
	status  Status
	version uint64
	epoch   uint64

	// notifyMu orders deliveries; subsMu guards the subscriber set
	notifyMu    sync.Mutex
	subsMu      sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int

	initOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}
}

var _ TokenSource = (*SessionStore)(nil)

func NewSessionStore(config SessionConfig, tokens TokenStore, logger *zap.Logger) *SessionStore {
	if config.ValidateTimeout <= 0 {
		config.ValidateTimeout = DefaultSessionConfig().ValidateTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		config:      config,
		tokens:      tokens,
		logger:      logger,
		status:      StatusLoading,
		subscribers: make(map[int]func(Snapshot)),
		ready:       make(chan struct{}),
	}
}

// Initialize rehydrates the session from the persisted token.
//
// Only the first call does any work; later calls wait for it. Validation
// failures of any kind are logged and end in a logged-out ready state.
func (s *SessionStore) Initialize(ctx context.Context, validate ValidateFunc) Snapshot {
	s.initOnce.Do(func() {
		s.initialize(ctx, validate)
	})
	_ = s.Wait(ctx)
	return s.Snapshot()
}

func (s *SessionStore) initialize(ctx context.Context, validate ValidateFunc) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	token, err := s.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			s.logger.Warn("could not read persisted token", zap.Error(err))
		}
		s.resolve(epoch, "", nil, false)
		return
	}

	// seed the token so requests issued while validating carry it
	s.mu.Lock()
	if s.epoch == epoch {
		s.token = token
		s.version++
		snap := s.snapshotLocked()
		s.notifyMu.Lock()
		s.mu.Unlock()
		s.deliverLocked(snap)
		s.notifyMu.Unlock()
	} else {
		s.mu.Unlock()
	}

	user, err := s.validate(ctx, token, validate)
	if err != nil {
		s.logger.Info("discarding persisted session",
			zap.Error(fmt.Errorf("%w: %w", ErrSessionInvalid, err)))
		s.resolve(epoch, "", nil, true)
		return
	}
	s.resolve(epoch, token, user, false)
}

func (s *SessionStore) validate(ctx context.Context, token string, validate ValidateFunc) (*User, error) {
	if s.config.TokenExpiry != nil {
		if exp, ok := s.config.TokenExpiry(token); ok && !s.config.Now().Before(exp) {
			return nil, ErrTokenExpired
		}
	}
	if validate == nil {
		return nil, errors.New("no validator configured")
	}

	vctx, cancel := context.WithTimeout(ctx, s.config.ValidateTimeout)
	defer cancel()

	type result struct {
		user *User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		u, err := validate(vctx, token)
		done <- result{u, err}
	}()

	// the validator gets the deadline through vctx; this select guards
	// against one that ignores it
	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.user == nil || r.user.ID == "" {
			return nil, errors.New("malformed user record")
		}
		return r.user, nil
	case <-vctx.Done():
		if errors.Is(vctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.config.ValidateTimeout)
		}
		return nil, vctx.Err()
	}
}

// resolve finishes initialization unless a Login or Logout got there first
func (s *SessionStore) resolve(epoch uint64, token string, user *User, clearPersisted bool) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("startup validation superseded by a newer login or logout")
		s.markReady()
		return
	}

	if clearPersisted {
		// clear under the lock so a concurrent Login cannot persist a token
		// that this clear would then wipe
		if err := s.tokens.Clear(context.Background()); err != nil {
			s.logger.Warn("could not clear persisted token", zap.Error(err))
		}
	}

	s.token = token
	s.user = user
	s.status = StatusReady
	s.version++
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	s.deliverLocked(snap)
	s.notifyMu.Unlock()

	s.markReady()
}

// Login installs the session carried by an auth response.
//
// A response without token or user is a caller bug: it is logged, reported
// as ErrInvalidAuthResponse and the current session is left as it was.
func (s *SessionStore) Login(ctx context.Context, resp *AuthResponse) error {
	if resp == nil || resp.AccessToken == "" || resp.User == nil {
		s.logger.Error("login response is missing token or user data")
		return ErrInvalidAuthResponse
	}

	s.mu.Lock()
	if err := s.tokens.Save(ctx, resp.AccessToken); err != nil {
		s.mu.Unlock()
		s.logger.Error("could not persist token", zap.Error(err))
		return fmt.Errorf("failed to persist token: %w", err)
	}

	user := *resp.User
	s.token = resp.AccessToken
	s.user = &user
	s.status = StatusReady
	s.epoch++
	s.version++
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	s.deliverLocked(snap)
	s.notifyMu.Unlock()

	s.markReady()
	s.logger.Info("logged in", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return nil
}

// Logout drops the session in memory and in the token store.
// It is idempotent; the returned error only concerns the token store.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.status = StatusReady
	s.epoch++
	s.version++
	err := s.tokens.Clear(ctx)
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	s.deliverLocked(snap)
	s.notifyMu.Unlock()

	s.markReady()
	if err != nil {
		s.logger.Warn("could not clear persisted token", zap.Error(err))
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// Snapshot returns the current session state
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Token implements TokenSource
func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *SessionStore) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentUser returns the logged-in user, ErrNotInitialized while the store
// is still loading, or ErrUnauthenticated when nobody is logged in.
func (s *SessionStore) CurrentUser() (*User, error) {
	snap := s.Snapshot()
	if snap.Status != StatusReady {
		return nil, ErrNotInitialized
	}
	if snap.User == nil {
		return nil, ErrUnauthenticated
	}
	return snap.User, nil
}

// Wait blocks until the store is ready or ctx is done
func (s *SessionStore) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for every session change, delivered in mutation
// order. fn may subscribe or unsubscribe but must not call Login or Logout.
func (s *SessionStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subscribers, id)
		s.subsMu.Unlock()
	}
}

func (s *SessionStore) snapshotLocked() Snapshot {
	snap := Snapshot{
		Token:   s.token,
		Status:  s.status,
		Version: s.version,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// deliverLocked must be called with notifyMu held
func (s *SessionStore) deliverLocked(snap Snapshot) {
	s.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *SessionStore) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
