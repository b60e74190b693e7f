package core

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL         = "https://eaglesoakltd-backend.onrender.com"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultValidateTimeout = 8 * time.Second
)

type Config struct {
	BaseURL string

	Tokens TokenStore

	// Optional config
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Session        *SessionConfig
	PropertyCache  Cache[*Property]
	Logger         *zap.Logger
}

// WithDefaults fills every optional field that was left zero
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Session == nil {
		session := DefaultSessionConfig()
		c.Session = &session
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.Tokens == nil {
		return ErrTokenStoreRequired
	}
	if c.RequestTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Session != nil && c.Session.ValidateTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
