package portal

import (
	"context"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/pkg/cache"
	"github.com/eaglesoak/portal/pkg/crypto"
	"github.com/eaglesoak/portal/services"
)

// interfaces
type (
	TokenStore  = core.TokenStore
	TokenSource = core.TokenSource
	Cache       = core.Cache[*core.Property]
)

// structs
type (
	Config        = core.Config
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig
	Snapshot      = core.Snapshot
)

type (
	User           = core.User
	Role           = core.Role
	Property       = core.Property
	PropertyInput  = core.PropertyInput
	ContactRequest = core.ContactRequest
	Message        = core.Message
	SignUpInput    = services.SignUpInput
	Upload         = services.Upload
	ChatSession    = services.ChatSession
)

const (
	RoleBuyer   = core.RoleBuyer
	RoleRealtor = core.RoleRealtor
	RoleAdmin   = core.RoleAdmin
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache     = cache.NewInMemoryCache[*core.Property]
	NewMemoryTokenStore  = core.NewMemoryTokenStore
	NewSealedTokenStore  = crypto.NewSealedTokenStore
	DefaultSessionConfig = core.DefaultSessionConfig
)

var (
	ErrTimeout   = core.ErrTimeout
	ErrNetwork   = core.ErrNetwork
	ErrForbidden = core.ErrForbidden
)

var (
	ErrNotInitialized  = core.ErrNotInitialized
	ErrUnauthenticated = core.ErrUnauthenticated
	ErrSessionInvalid  = core.ErrSessionInvalid
	ErrChatBusy        = core.ErrChatBusy
	ErrChatClosed      = core.ErrChatClosed
)

var (
	ErrBaseURLRequired    = core.ErrBaseURLRequired
	ErrInvalidBaseURL     = core.ErrInvalidBaseURL
	ErrTokenStoreRequired = core.ErrTokenStoreRequired
	ErrInvalidTimeout     = core.ErrInvalidTimeout
)

// Portal wires the session, the gateway and every service on top of them
type Portal struct {
	Config     Config
	Session    *core.SessionStore
	Gateway    *services.Gateway
	Auth       *services.AuthService
	Properties *services.PropertyService
	Contact    *services.ContactService
	Chat       *services.ChatClient
	Endpoints  *services.EndpointRegistry
}

func New(config Config) (*Portal, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sessionConfig := *config.Session
	if sessionConfig.TokenExpiry == nil {
		sessionConfig.TokenExpiry = crypto.TokenExpiry
	}
	logger := config.Logger

	session := core.NewSessionStore(sessionConfig, config.Tokens, logger.Named("session"))
	gateway := services.NewGateway(services.GatewayConfig{
		BaseURL:    config.BaseURL,
		Timeout:    config.RequestTimeout,
		HTTPClient: config.HTTPClient,
		Logger:     logger.Named("gateway"),
	}, session)

	return &Portal{
		Config:     config,
		Session:    session,
		Gateway:    gateway,
		Auth:       services.NewAuthService(gateway, session, logger.Named("auth")),
		Properties: services.NewPropertyService(gateway, session, config.PropertyCache, logger.Named("properties")),
		Contact:    services.NewContactService(gateway),
		Chat:       services.NewChatClient(gateway, logger.Named("chat")),
		Endpoints:  services.NewEndpointRegistry(),
	}, nil
}

// Initialize rehydrates the persisted session against /users/me. It returns
// once the store is ready or ctx is done.
func (p *Portal) Initialize(ctx context.Context) Snapshot {
	return p.Session.Initialize(ctx, p.Auth.CurrentUser)
}
