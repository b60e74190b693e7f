package services

import (
	"errors"
	"testing"

	"github.com/eaglesoak/portal/core"
)

func validProperty() core.PropertyInput {
	return core.PropertyInput{
		Title:          "Lekki Villa",
		Location:       "Lagos",
		Address:        "12 Admiralty Way, Lekki",
		Price:          250000,
		Description:    "Four bedroom detached duplex with pool",
		RealtorName:    "Ada Obi",
		RealtorContact: "+2348012345678",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error %v is not a ValidationError", err)
	}
	return vErr.Field
}

func TestSignUpInput_Validate(t *testing.T) {
	valid := SignUpInput{
		Email:           "a@b.com",
		Password:        "password1",
		ConfirmPassword: "password1",
		Role:            core.RoleBuyer,
		AgreeToTerms:    true,
	}

	tests := []struct {
		name      string
		mutate    func(in *SignUpInput)
		wantField string
	}{
		{name: "valid", mutate: func(in *SignUpInput) {}},
		{name: "bad email", mutate: func(in *SignUpInput) { in.Email = "a@b" }, wantField: "email"},
		{name: "short password", mutate: func(in *SignUpInput) { in.Password, in.ConfirmPassword = "short", "short" }, wantField: "password"},
		{name: "admin role", mutate: func(in *SignUpInput) { in.Role = core.RoleAdmin }, wantField: "role"},
		{name: "no role", mutate: func(in *SignUpInput) { in.Role = "" }, wantField: "role"},
		{name: "terms not accepted", mutate: func(in *SignUpInput) { in.AgreeToTerms = false }, wantField: "agreeToTerms"},
		{name: "mismatch", mutate: func(in *SignUpInput) { in.ConfirmPassword = "password2" }, wantField: "confirmPassword"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			in := valid
			test.mutate(&in)

			if got := fieldOf(t, in.Validate()); got != test.wantField {
				t.Errorf("failing field = %q, want %q", got, test.wantField)
			}
		})
	}
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     int
		label    string
	}{
		{password: "", want: 0, label: ""},
		{password: "abc", want: 0, label: ""},
		{password: "abcdefghi", want: 1, label: "Weak"},
		{password: "Abcdefgh", want: 1, label: "Weak"},
		{password: "Abcdefgh1", want: 3, label: "Good"},
		{password: "Abcdefgh1!", want: 4, label: "Strong"},
		{password: "12345678", want: 1, label: "Weak"},
		{password: "pass word", want: 2, label: "Fair"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.password, func(t *testing.T) {
			got := PasswordStrength(test.password)
			if got != test.want {
				t.Errorf("PasswordStrength(%q) = %d, want %d", test.password, got, test.want)
			}
			if label := StrengthLabel(got); label != test.label {
				t.Errorf("StrengthLabel(%d) = %q, want %q", got, label, test.label)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "250,000", want: 250000},
		{in: " 1,250.50 ", want: 1250.5},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, test := range tests {
		got, err := ParsePrice(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("ParsePrice(%q) error = %v, wantErr %v", test.in, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestValidateProperty(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(in *core.PropertyInput)
		images    int
		wantField string
	}{
		{name: "valid", mutate: func(in *core.PropertyInput) {}, images: 1},
		{name: "five images", mutate: func(in *core.PropertyInput) {}, images: 5},
		{name: "short title", mutate: func(in *core.PropertyInput) { in.Title = "Flat" }, images: 1, wantField: "title"},
		{name: "short location", mutate: func(in *core.PropertyInput) { in.Location = "NY" }, images: 1, wantField: "location"},
		{name: "short address", mutate: func(in *core.PropertyInput) { in.Address = "Lekki" }, images: 1, wantField: "address"},
		{name: "zero price", mutate: func(in *core.PropertyInput) { in.Price = 0 }, images: 1, wantField: "price"},
		{name: "short description", mutate: func(in *core.PropertyInput) { in.Description = "Nice" }, images: 1, wantField: "description"},
		{name: "short realtor", mutate: func(in *core.PropertyInput) { in.RealtorName = "A" }, images: 1, wantField: "realtor_name"},
		{name: "short contact", mutate: func(in *core.PropertyInput) { in.RealtorContact = "0801" }, images: 1, wantField: "realtor_contact"},
		{name: "bad youtube", mutate: func(in *core.PropertyInput) { in.YoutubeURL = "youtube" }, images: 1, wantField: "youtube_url"},
		{name: "good youtube", mutate: func(in *core.PropertyInput) { in.YoutubeURL = "https://youtu.be/abc" }, images: 1},
		{name: "no images", mutate: func(in *core.PropertyInput) {}, images: 0, wantField: "images"},
		{name: "six images", mutate: func(in *core.PropertyInput) {}, images: 6, wantField: "images"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			in := validProperty()
			test.mutate(&in)

			if got := fieldOf(t, ValidateProperty(in, test.images)); got != test.wantField {
				t.Errorf("failing field = %q, want %q", got, test.wantField)
			}
		})
	}
}

func TestValidateContact(t *testing.T) {
	tests := []struct {
		name      string
		req       core.ContactRequest
		wantField string
	}{
		{name: "valid", req: core.ContactRequest{Name: "Ada", Email: "ada@b.com", Message: "I want a viewing"}},
		{name: "short name", req: core.ContactRequest{Name: "A", Email: "ada@b.com", Message: "I want a viewing"}, wantField: "name"},
		{name: "bad email", req: core.ContactRequest{Name: "Ada", Email: "Ada <ada@b.com>", Message: "I want a viewing"}, wantField: "email"},
		{name: "short message", req: core.ContactRequest{Name: "Ada", Email: "ada@b.com", Message: "hi"}, wantField: "message"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			if got := fieldOf(t, ValidateContact(test.req)); got != test.wantField {
				t.Errorf("failing field = %q, want %q", got, test.wantField)
			}
		})
	}
}
