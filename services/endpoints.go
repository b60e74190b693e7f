package services

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/eaglesoak/portal/core"
)

// BaseEndpoints returns the backend operations the client consumes.
//
// The table is the contract between this module and the platform API:
// - Path and Method locate the operation
// - Bearer marks calls that carry the session token
// - Metadata names the body encoding and, where one applies, the role gate
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   core.PathUsersMe,
			Method: http.MethodGet,
			Bearer: true,
			Metadata: core.EndpointMetadata{
				OperationID: "validateSession",
				Description: "Resolve the bearer token to the current user",
				Body:        core.BodyNone,
				Response:    core.User{},
			},
		},
		{
			Path:   core.PathLogin,
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: "login",
				Description: "Exchange email and password for an access token",
				Body:        core.BodyForm,
				Response:    core.AuthResponse{},
			},
		},
		{
			Path:   core.PathRegister,
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: "register",
				Description: "Create a buyer or realtor account",
				Body:        core.BodyJSON,
				Response:    core.AuthResponse{},
			},
		},
		{
			Path:   core.PathProperties,
			Method: http.MethodGet,
			Metadata: core.EndpointMetadata{
				OperationID: "listProperties",
				Description: "List featured properties, limited by ?limit=N",
				Body:        core.BodyNone,
				Response:    core.PropertyList{},
			},
		},
		{
			Path:   core.PathProperties + "/:id",
			Method: http.MethodGet,
			Metadata: core.EndpointMetadata{
				OperationID: "getProperty",
				Description: "Fetch one property",
				Body:        core.BodyNone,
				Response:    core.Property{},
			},
		},
		{
			Path:   core.PathProperties,
			Method: http.MethodPost,
			Bearer: true,
			Metadata: core.EndpointMetadata{
				OperationID: "createProperty",
				Description: "Upload a listing with images and an optional PDF",
				Body:        core.BodyMultipart,
				RequestBody: core.PropertyInput{},
				Response:    core.Property{},
				Roles:       []core.Role{core.RoleRealtor, core.RoleAdmin},
			},
		},
		{
			Path:   core.PathMyListings,
			Method: http.MethodGet,
			Bearer: true,
			Metadata: core.EndpointMetadata{
				OperationID: "myListings",
				Description: "List the caller's own properties",
				Body:        core.BodyNone,
				Response:    []core.Property{},
			},
		},
		{
			Path:   core.PathContact,
			Method: http.MethodPost,
			Metadata: core.EndpointMetadata{
				OperationID: "contact",
				Description: "Submit the contact form",
				Body:        core.BodyJSON,
				RequestBody: core.ContactRequest{},
			},
		},
		{
			Path:   core.PathChat,
			Method: http.MethodPost,
			Bearer: true,
			Metadata: core.EndpointMetadata{
				OperationID: "chat",
				Description: "Ask the assistant about a property; the reply streams as data frames",
				Body:        core.BodyJSON,
				RequestBody: chatRequest{},
			},
		},
	}
}

func endpointKey(method, path string) string {
	return fmt.Sprintf("%s:%s", method, path)
}

// EndpointRegistry holds the consumed endpoints keyed by METHOD:PATH and
// rejects duplicates.
//
// It starts with BaseEndpoints; deployments with extra backend features
// register theirs with Register.
type EndpointRegistry struct {
	endpoints map[string]*core.Endpoint
}

func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	base := BaseEndpoints()
	for i := range base {
		_ = reg.register(&base[i])
	}

	return reg
}

func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := endpointKey(ep.Method, ep.Path)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	return nil
}

// Register adds endpoints all or nothing. It fails on a clash with a
// registered endpoint or a duplicate inside the batch.
func (r *EndpointRegistry) Register(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := endpointKey(ep.Method, ep.Path)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("batch contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[endpointKey(ep.Method, ep.Path)] = &ep
	}

	return nil
}

func (r *EndpointRegistry) Lookup(method, path string) (*core.Endpoint, bool) {
	ep, ok := r.endpoints[endpointKey(method, path)]
	return ep, ok
}

// Endpoints returns every registered endpoint ordered by path, then method
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}
