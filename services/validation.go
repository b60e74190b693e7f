package services

import (
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eaglesoak/portal/core"
)

const (
	MinPasswordLength = 8
	MaxPropertyImages = 5
)

// SignUpInput is the registration form
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Role            core.Role
	AgreeToTerms    bool
}

func invalid(field, message string) *core.ValidationError {
	return &core.ValidationError{Field: field, Message: message}
}

func minLength(s string, n int) bool {
	return utf8.RuneCountInString(s) >= n
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func ValidateLogin(email, password string) error {
	if !validEmail(email) {
		return invalid("email", "Please enter a valid email address")
	}
	if password == "" {
		return invalid("password", "Password is required")
	}
	return nil
}

func (in SignUpInput) Validate() error {
	if !validEmail(in.Email) {
		return invalid("email", "Please enter a valid email address")
	}
	if !minLength(in.Password, MinPasswordLength) {
		return invalid("password", "Password must be at least 8 characters")
	}
	if in.Role != core.RoleBuyer && in.Role != core.RoleRealtor {
		return invalid("role", "Please select a role")
	}
	if !in.AgreeToTerms {
		return invalid("agreeToTerms", "You must agree to the terms and conditions")
	}
	if in.Password != in.ConfirmPassword {
		return invalid("confirmPassword", "Passwords do not match")
	}
	return nil
}

// PasswordStrength scores a password from 0 to 4: one point each for more
// than eight characters, an uppercase letter, a digit and a symbol
func PasswordStrength(password string) int {
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case !(r >= 'a' && r <= 'z'):
			symbol = true
		}
	}

	score := 0
	for _, ok := range []bool{utf8.RuneCountInString(password) > MinPasswordLength, upper, digit, symbol} {
		if ok {
			score++
		}
	}
	return score
}

// StrengthLabel names a PasswordStrength score; 0 has no label
func StrengthLabel(score int) string {
	labels := []string{"Weak", "Fair", "Good", "Strong"}
	if score < 1 || score > len(labels) {
		return ""
	}
	return labels[score-1]
}

// ParsePrice accepts thousands separators, e.g. "250,000"
func ParsePrice(s string) (float64, error) {
	price, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0, invalid("price", "Price must be a number")
	}
	return price, nil
}

// ValidateProperty checks the upload form; imageCount is the number of
// attached images
func ValidateProperty(in core.PropertyInput, imageCount int) error {
	switch {
	case !minLength(in.Title, 5):
		return invalid("title", "Title is required")
	case !minLength(in.Location, 3):
		return invalid("location", "Location is required")
	case !minLength(in.Address, 10):
		return invalid("address", "A full address is required")
	case in.Price <= 0:
		return invalid("price", "Price must be positive")
	case !minLength(in.Description, 20):
		return invalid("description", "Description must be at least 20 characters")
	case !minLength(in.RealtorName, 2):
		return invalid("realtor_name", "Realtor name is required")
	case !minLength(in.RealtorContact, 10):
		return invalid("realtor_contact", "A valid contact is required")
	case in.YoutubeURL != "" && !validURL(in.YoutubeURL):
		return invalid("youtube_url", "Must be a valid YouTube URL")
	case imageCount < 1:
		return invalid("images", "At least one image is required.")
	case imageCount > MaxPropertyImages:
		return invalid("images", "You can upload a maximum of 5 images.")
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func ValidateContact(in core.ContactRequest) error {
	switch {
	case !minLength(in.Name, 2):
		return invalid("name", "Please enter your full name")
	case !validEmail(in.Email):
		return invalid("email", "Please enter a valid email address")
	case !minLength(in.Message, 10):
		return invalid("message", "Message must be at least 10 characters")
	}
	return nil
}

// isBlank reports whether s holds only whitespace
func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
