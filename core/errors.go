package core

import (
	"errors"
	"fmt"
)

// Gateway errors
var (
	ErrTimeout = errors.New("network timeout, please check your connection")
	ErrNetwork = errors.New("network error")
)

// APIError is a non-2xx response from the backend.
// Message is the server supplied detail when one could be read.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError covers DNS and connection failures, as opposed to HTTP-level errors
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Session errors
var (
	ErrSessionInvalid      = errors.New("session validation failed")
	ErrInvalidAuthResponse = errors.New("auth response is missing token or user data")
	ErrNotInitialized      = errors.New("session store has not finished initializing")
	ErrUnauthenticated     = errors.New("not logged in")
	ErrForbidden           = errors.New("role not allowed")
	ErrTokenNotFound       = errors.New("no persisted token")
	ErrTokenExpired        = errors.New("token expired")
)

// Chat errors
var (
	ErrStreamProtocol = errors.New("malformed stream frame")
	ErrChatBusy       = errors.New("a reply is still streaming")
	ErrChatClosed     = errors.New("chat session closed")
	ErrEmptyMessage   = errors.New("message is empty")
)

// ValidationError rejects form input before it reaches the backend
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Config errors
var (
	ErrBaseURLRequired    = errors.New("base url is required")
	ErrInvalidBaseURL     = errors.New("base url must be an absolute http(s) url")
	ErrTokenStoreRequired = errors.New("token store is required")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
)

// Cache errors
var (
	ErrCacheNotFound = errors.New("entry not found in cache")
)
