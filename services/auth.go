package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/eaglesoak/portal/core"
)

type AuthService struct {
	gateway *Gateway
	session *core.SessionStore
	logger  *zap.Logger
}

func NewAuthService(gateway *Gateway, session *core.SessionStore, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		gateway: gateway,
		session: session,
		logger:  logger,
	}
}

// Login exchanges credentials for a token and installs the session
func (s *AuthService) Login(ctx context.Context, email, password string) (*core.User, error) {
	// Step 1: Validate the form
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}

	// Step 2: The backend expects the OAuth2 password form
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var resp core.AuthResponse
	if err := s.gateway.PostForm(ctx, core.PathLogin, form, &resp); err != nil {
		s.logger.Info("login rejected", zap.Error(err))
		return nil, err
	}

	// Step 3: Install the session
	return s.install(ctx, &resp)
}

// Register creates an account and logs straight into it
func (s *AuthService) Register(ctx context.Context, input SignUpInput) (*core.User, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	body := struct {
		Email    string    `json:"email"`
		Password string    `json:"password"`
		Role     core.Role `json:"role"`
	}{
		Email:    input.Email,
		Password: input.Password,
		Role:     input.Role,
	}

	var resp core.AuthResponse
	if err := s.gateway.PostJSON(ctx, core.PathRegister, body, &resp); err != nil {
		s.logger.Info("registration rejected", zap.Error(err))
		return nil, err
	}
	return s.install(ctx, &resp)
}

func (s *AuthService) install(ctx context.Context, resp *core.AuthResponse) (*core.User, error) {
	if err := s.session.Login(ctx, resp); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s.session.CurrentUser()
}

// Logout only drops local state; the backend keeps no server side session
func (s *AuthService) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}

// CurrentUser asks the backend who token belongs to
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*core.User, error) {
	var user core.User
	err := s.gateway.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   core.PathUsersMe,
		Token:  token,
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%s returned no user", core.PathUsersMe)
	}
	return &user, nil
}
