package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/eaglesoak/portal/core"
)

type testEnv struct {
	backend *FakeBackend
	tokens  *core.MemoryTokenStore
	session *core.SessionStore
	gateway *Gateway
	auth    *AuthService
}

func newTestEnv(t *testing.T, seedToken string) *testEnv {
	t.Helper()
	backend := NewFakeBackend()
	t.Cleanup(backend.Close)

	tokens := core.NewMemoryTokenStore(seedToken)
	config := core.DefaultSessionConfig()
	config.ValidateTimeout = time.Second
	session := core.NewSessionStore(config, tokens, nil)
	gateway := NewGateway(GatewayConfig{BaseURL: backend.URL, Timeout: time.Second}, session)

	return &testEnv{
		backend: backend,
		tokens:  tokens,
		session: session,
		gateway: gateway,
		auth:    NewAuthService(gateway, session, nil),
	}
}

func (e *testEnv) persisted(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.Load(context.Background())
	if errors.Is(err, core.ErrTokenNotFound) {
		return ""
	}
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return token
}

// Requirement: a successful login persists the token and exposes the user.
func TestAuthService_Login(t *testing.T) {
	// Arrange
	env := newTestEnv(t, "")
	env.backend.JSON(http.MethodPost, core.PathLogin, http.StatusOK, map[string]any{
		"access_token": "tok1",
		"token_type":   "bearer",
		"user":         map[string]any{"id": 1, "email": "a@b.com", "role": "buyer"},
	})
	env.session.Initialize(context.Background(), env.auth.CurrentUser)

	// Act
	user, err := env.auth.Login(context.Background(), "a@b.com", "secret")

	// Assert
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.Role != core.RoleBuyer {
		t.Errorf("role = %q, want buyer", user.Role)
	}
	if got := env.persisted(t); got != "tok1" {
		t.Errorf("persisted token = %q, want tok1", got)
	}

	form, _ := url.ParseQuery(string(env.backend.Last().Body))
	if form.Get("username") != "a@b.com" || form.Get("password") != "secret" {
		t.Errorf("unexpected login form %v", form)
	}
}

func TestAuthService_Login_Failures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		status   int
		body     any
		check    func(t *testing.T, err error)
	}{
		{
			name:     "invalid email never reaches backend",
			email:    "not-an-email",
			password: "secret",
			check: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) || vErr.Field != "email" {
					t.Errorf("error = %v, want email ValidationError", err)
				}
			},
		},
		{
			name:     "empty password",
			email:    "a@b.com",
			password: "",
			check: func(t *testing.T, err error) {
				var vErr *core.ValidationError
				if !errors.As(err, &vErr) || vErr.Message != "Password is required" {
					t.Errorf("error = %v, want password ValidationError", err)
				}
			},
		},
		{
			name:     "bad credentials",
			email:    "a@b.com",
			password: "wrong",
			status:   http.StatusUnauthorized,
			body:     map[string]any{"detail": "Incorrect email or password"},
			check: func(t *testing.T, err error) {
				var apiErr *core.APIError
				if !errors.As(err, &apiErr) || apiErr.Message != "Incorrect email or password" {
					t.Errorf("error = %v, want server detail", err)
				}
			},
		},
		{
			name:     "response without user",
			email:    "a@b.com",
			password: "secret",
			status:   http.StatusOK,
			body:     map[string]any{"access_token": "tok1"},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, core.ErrInvalidAuthResponse) {
					t.Errorf("error = %v, want ErrInvalidAuthResponse", err)
				}
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv(t, "")
			if test.status != 0 {
				env.backend.JSON(http.MethodPost, core.PathLogin, test.status, test.body)
			}
			env.session.Initialize(context.Background(), env.auth.CurrentUser)

			// Act
			_, err := env.auth.Login(context.Background(), test.email, test.password)

			// Assert
			test.check(t, err)
			if env.persisted(t) != "" {
				t.Error("failed login must not persist a token")
			}
			if test.status == 0 && len(env.backend.Requests()) != 0 {
				t.Error("invalid form must not reach the backend")
			}
		})
	}
}

func TestAuthService_Register(t *testing.T) {
	env := newTestEnv(t, "")
	env.backend.JSON(http.MethodPost, core.PathRegister, http.StatusOK, map[string]any{
		"access_token": "tok9",
		"user":         map[string]any{"id": "u9", "email": "r@b.com", "role": "realtor"},
	})
	env.session.Initialize(context.Background(), nil)

	user, err := env.auth.Register(context.Background(), SignUpInput{
		Email:           "r@b.com",
		Password:        "Str0ng!pass",
		ConfirmPassword: "Str0ng!pass",
		Role:            core.RoleRealtor,
		AgreeToTerms:    true,
	})

	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Role != core.RoleRealtor {
		t.Errorf("role = %q, want realtor", user.Role)
	}

	var body map[string]string
	if err := json.Unmarshal(env.backend.Last().Body, &body); err != nil {
		t.Fatalf("register body is not JSON: %v", err)
	}
	want := map[string]string{"email": "r@b.com", "password": "Str0ng!pass", "role": "realtor"}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%s] = %q, want %q", k, body[k], v)
		}
	}
	if _, ok := body["confirmPassword"]; ok {
		t.Error("confirmation must not be sent")
	}
}

// Requirement: scenario A, a persisted token that validates rehydrates the
// user on startup.
func TestAuthService_CurrentUser_RehydratesSession(t *testing.T) {
	env := newTestEnv(t, "tok1")
	env.backend.JSON(http.MethodGet, core.PathUsersMe, http.StatusOK, map[string]any{"id": 1, "email": "a@b.com", "role": "buyer"})

	snap := env.session.Initialize(context.Background(), env.auth.CurrentUser)

	if !snap.Authenticated() || snap.User.Email != "a@b.com" {
		t.Fatalf("expected rehydrated session, got %+v", snap)
	}
	if got := env.backend.Last().Header.Get("Authorization"); got != "Bearer tok1" {
		t.Errorf("Authorization = %q, want Bearer tok1", got)
	}
}

// Requirement: a rejected token is cleared and the store ends logged out.
func TestAuthService_CurrentUser_RejectedTokenIsCleared(t *testing.T) {
	env := newTestEnv(t, "stale")
	env.backend.JSON(http.MethodGet, core.PathUsersMe, http.StatusUnauthorized, map[string]any{"detail": "Could not validate credentials"})

	snap := env.session.Initialize(context.Background(), env.auth.CurrentUser)

	if snap.Status != core.StatusReady || snap.User != nil {
		t.Errorf("expected ready and logged out, got %+v", snap)
	}
	if env.persisted(t) != "" {
		t.Error("rejected token should be cleared")
	}
}

func TestAuthService_Logout(t *testing.T) {
	env := newTestEnv(t, "")
	env.session.Initialize(context.Background(), nil)
	_ = env.session.Login(context.Background(), &core.AuthResponse{AccessToken: "tok1", User: &core.User{ID: "1"}})

	if err := env.auth.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if env.persisted(t) != "" {
		t.Error("token should be cleared")
	}
	if _, err := env.session.CurrentUser(); !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("CurrentUser() error = %v, want ErrUnauthenticated", err)
	}
}
