package core

// Backend paths consumed by the client
const (
	PathUsersMe    = "/users/me"
	PathLogin      = "/auth/login"
	PathRegister   = "/auth/register"
	PathProperties = "/properties"
	PathMyListings = "/my-listings"
	PathContact    = "/contact"
	PathChat       = "/ai/chat"
)

// Request body encodings
const (
	BodyNone      = ""
	BodyForm      = "form"
	BodyJSON      = "json"
	BodyMultipart = "multipart"
	ContentJSON   = "application/json"
	ContentForm   = "application/x-www-form-urlencoded"
)

// EndpointProvider provides a list of endpoints to register dynamically
type EndpointProvider interface {
	GetEndpoints() []Endpoint
}

// Endpoint describes one backend operation the client depends on
type Endpoint struct {
	Path     string
	Method   string
	Bearer   bool
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	Body        string
	// RequestBody and Response are zero values of the wire types
	RequestBody any
	Response    any
	Roles       []Role
}

// ErrorResponse is the JSON error body served by the portal surface
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
