package services

import (
	"context"
	"strings"

	"github.com/eaglesoak/portal/core"
)

type ContactService struct {
	gateway *Gateway
}

func NewContactService(gateway *Gateway) *ContactService {
	return &ContactService{gateway: gateway}
}

// Send submits the contact form. The backend's acknowledgement carries
// nothing the client needs.
func (s *ContactService) Send(ctx context.Context, req core.ContactRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := ValidateContact(req); err != nil {
		return err
	}
	return s.gateway.PostJSON(ctx, core.PathContact, req, nil)
}
