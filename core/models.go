package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role gates what a user can see in the portal
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleRealtor Role = "realtor"
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
)

// Valid reports whether r is one of the roles the backend hands out
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleRealtor, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// ID is a backend identifier. The API sends numbers for some records and
// strings for others, so both decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// User is the server supplied profile of whoever holds the token
//
// Opaque to the client beyond role-based gating
type User struct {
	ID    ID     `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
}

// DisplayName falls back to a generic label the way the header menu does
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return "User"
	}
	return u.Name
}

// HasRole reports whether the user holds any of the given roles
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// AuthResponse is what /auth/login and /auth/register return
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user"`
}

// Property is a listing as returned by the backend
type Property struct {
	ID             ID         `json:"id"`
	Title          string     `json:"title"`
	Location       string     `json:"location"`
	Address        string     `json:"address,omitempty"`
	Price          float64    `json:"price"`
	Description    string     `json:"description,omitempty"`
	RealtorName    string     `json:"realtor_name,omitempty"`
	RealtorContact string     `json:"realtor_contact,omitempty"`
	YoutubeURL     string     `json:"youtube_url,omitempty"`
	ImageURLs      []string   `json:"image_urls,omitempty"`
	PDFURL         string     `json:"pdf_url,omitempty"`
	Status         string     `json:"status,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// PropertyList is the envelope of GET /properties
type PropertyList struct {
	Data []Property `json:"data"`
}

// PropertyInput is the payload of the multi-step upload form.
// It travels as the property_data_json multipart field.
type PropertyInput struct {
	Title          string  `json:"title"`
	Location       string  `json:"location"`
	Address        string  `json:"address"`
	Price          float64 `json:"price"`
	Description    string  `json:"description"`
	RealtorName    string  `json:"realtor_name"`
	RealtorContact string  `json:"realtor_contact"`
	YoutubeURL     string  `json:"youtube_url"`
}

// ContactRequest is the body of POST /contact
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Message is one entry of a chat transcript
type Message struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}
