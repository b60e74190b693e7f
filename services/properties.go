package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/pkg/cache"
)

const (
	DefaultListingLimit = 3
	propertyCacheTTL    = 5 * time.Minute
	propertyCacheSize   = 256
)

// Upload is a file attached to a new listing
type Upload struct {
	Filename string
	Content  io.Reader
}

type PropertyService struct {
	gateway *Gateway
	session *core.SessionStore
	cache   core.Cache[*core.Property]
	logger  *zap.Logger
}

// NewPropertyService caches property details in memory when propertyCache is nil
func NewPropertyService(gateway *Gateway, session *core.SessionStore, propertyCache core.Cache[*core.Property], logger *zap.Logger) *PropertyService {
	if propertyCache == nil {
		propertyCache = cache.NewInMemoryCache[*core.Property](core.CacheConfig{
			TTL:     propertyCacheTTL,
			MaxSize: propertyCacheSize,
		})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropertyService{
		gateway: gateway,
		session: session,
		cache:   propertyCache,
		logger:  logger,
	}
}

// List returns up to limit listings. A success without a JSON body is an
// empty list.
func (s *PropertyService) List(ctx context.Context, limit int) ([]core.Property, error) {
	if limit <= 0 {
		limit = DefaultListingLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var list core.PropertyList
	if err := s.gateway.Get(ctx, core.PathProperties, query, &list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		return []core.Property{}, nil
	}
	return list.Data, nil
}

func (s *PropertyService) Get(ctx context.Context, id core.ID) (*core.Property, error) {
	if id == "" {
		return nil, &core.ValidationError{Field: "id", Message: "Property id is required"}
	}

	if cached, err := s.cache.Get(id.String()); err == nil {
		property := *cached
		return &property, nil
	}

	var property core.Property
	if err := s.gateway.Get(ctx, core.PathProperties+"/"+url.PathEscape(id.String()), nil, &property); err != nil {
		return nil, err
	}
	if property.ID == "" {
		property.ID = id
	}

	stored := property
	if err := s.cache.Set(id.String(), &stored); err != nil {
		s.logger.Warn("could not cache property", zap.String("id", id.String()), zap.Error(err))
	}
	return &property, nil
}

// Invalidate drops one cached property, or all of them when id is empty
func (s *PropertyService) Invalidate(id core.ID) {
	if id == "" {
		_ = s.cache.Clear()
		return
	}
	_ = s.cache.Delete(id.String())
}

// Create uploads a new listing. Only realtors and admins may list.
func (s *PropertyService) Create(ctx context.Context, input core.PropertyInput, images []Upload, pdf *Upload) (*core.Property, error) {
	// Step 1: Gate on role
	user, err := s.session.CurrentUser()
	if err != nil {
		return nil, err
	}
	if !user.HasRole(core.RoleRealtor, core.RoleAdmin) {
		return nil, fmt.Errorf("%w: %s cannot list properties", core.ErrForbidden, user.Role)
	}

	// Step 2: Validate the form
	if err := ValidateProperty(input, len(images)); err != nil {
		return nil, err
	}

	// Step 3: Build the multipart payload
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property: %w", err)
	}
	files := make([]FilePart, 0, len(images)+1)
	for _, img := range images {
		files = append(files, FilePart{Field: "images", Filename: img.Filename, Content: img.Content})
	}
	if pdf != nil {
		files = append(files, FilePart{Field: "pdf", Filename: pdf.Filename, Content: pdf.Content})
	}

	var created core.Property
	err = s.gateway.PostMultipart(ctx, core.PathProperties,
		map[string]string{"property_data_json": string(payload)}, files, &created)
	if err != nil {
		return nil, err
	}

	s.Invalidate("")
	s.logger.Info("property created", zap.String("id", created.ID.String()))
	return &created, nil
}

// MyListings returns the caller's own listings
func (s *PropertyService) MyListings(ctx context.Context) ([]core.Property, error) {
	if _, err := s.session.CurrentUser(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := s.gateway.Get(ctx, core.PathMyListings, nil, &raw); err != nil {
		return nil, err
	}
	return decodeListings(raw)
}

// decodeListings accepts a bare array or the {data: [...]} envelope
func decodeListings(raw json.RawMessage) ([]core.Property, error) {
	if len(raw) == 0 {
		return []core.Property{}, nil
	}

	var list []core.Property
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			list = []core.Property{}
		}
		return list, nil
	}

	var envelope core.PropertyList
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.New("unexpected listings payload")
	}
	if envelope.Data == nil {
		return []core.Property{}, nil
	}
	return envelope.Data, nil
}
