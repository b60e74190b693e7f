package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/internal/metrics"
	"github.com/eaglesoak/portal/pkg/crypto"
)

const (
	HeaderRequestID = "X-Request-ID"
)

type GatewayConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Gateway is the single path every backend call takes. It joins the base
// URL, attaches the bearer token, bounds the call with a timeout and turns
// failures into the core error taxonomy.
type Gateway struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	tokens  core.TokenSource
	logger  *zap.Logger
}

func NewGateway(config GatewayConfig, tokens core.TokenSource) *Gateway {
	if config.Timeout <= 0 {
		config.Timeout = core.DefaultRequestTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Gateway{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		timeout: config.Timeout,
		client:  config.HTTPClient,
		tokens:  tokens,
		logger:  config.Logger,
	}
}

// Request describes one backend call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   io.Reader
	// ContentType is left unset for bodiless requests
	ContentType string
	// Token overrides the token source, used to validate a token that is
	// not yet the session's
	Token string
	// Stream disables the gateway timeout; the caller's context bounds the call
	Stream bool
}

// FilePart is one file of a multipart upload
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

func (g *Gateway) BaseURL() string {
	return g.baseURL
}

func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out any) error {
	return g.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (g *Gateway) PostJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return g.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        bytes.NewReader(data),
		ContentType: core.ContentJSON,
	}, out)
}

func (g *Gateway) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return g.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        strings.NewReader(form.Encode()),
		ContentType: core.ContentForm,
	}, out)
}

// PostMultipart sends fields and files as multipart/form-data; the only
// content type is the one carrying the writer's boundary
func (g *Gateway) PostMultipart(ctx context.Context, path string, fields map[string]string, files []FilePart, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return fmt.Errorf("failed to create part %s: %w", file.Field, err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return fmt.Errorf("failed to copy %s: %w", file.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return g.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        &body,
		ContentType: writer.FormDataContentType(),
	}, out)
}

// Do performs req. A 2xx JSON response is decoded into out when out is
// non-nil; any other 2xx body is discarded and out is left untouched.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	ctx, cancel := g.withTimeout(ctx, req)
	defer cancel()

	resp, err := g.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isJSON(resp.Header.Get("Content-Type")) || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if ctxErr := g.contextError(ctx, req); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to decode %s response: %w", req.Path, err)
	}
	return nil
}

// Stream performs req without the gateway timeout and hands back the open
// 2xx response. The caller must close the body.
func (g *Gateway) Stream(ctx context.Context, req Request) (*http.Response, error) {
	req.Stream = true
	return g.send(ctx, req)
}

func (g *Gateway) withTimeout(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Stream {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, g.timeout, core.ErrTimeout)
}

// send issues the request and returns the response only when it is 2xx
func (g *Gateway) send(ctx context.Context, req Request) (*http.Response, error) {
	target := g.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", core.ContentJSON)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	token := req.Token
	if token == "" && g.tokens != nil {
		token = g.tokens.Token()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	elapsed := time.Since(start)
	metrics.RequestLatency.WithLabelValues(req.Method).Observe(elapsed.Seconds())

	logger := g.logger.With(
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", requestID),
		zap.String("token", crypto.Fingerprint(token)),
		zap.Duration("elapsed", elapsed),
	)

	if err != nil {
		if ctxErr := g.contextError(ctx, req); ctxErr != nil {
			g.record(logger, req.Method, outcomeOf(ctxErr), zap.Error(ctxErr))
			return nil, ctxErr
		}
		netErr := &core.NetworkError{Method: req.Method, URL: target, Err: unwrapURLError(err)}
		g.record(logger, req.Method, metrics.OutcomeNetwork, zap.Error(netErr))
		return nil, netErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		apiErr := &core.APIError{
			StatusCode: resp.StatusCode,
			Message:    errorDetail(resp.StatusCode, body),
		}
		g.record(logger, req.Method, metrics.OutcomeAPIError, zap.Int("status", resp.StatusCode), zap.String("detail", apiErr.Message))
		return nil, apiErr
	}

	g.record(logger, req.Method, metrics.OutcomeOK, zap.Int("status", resp.StatusCode))
	return resp, nil
}

// contextError reports why ctx ended: the caller's cancellation comes back
// as the context error, the gateway's own deadline as core.ErrTimeout
func (g *Gateway) contextError(ctx context.Context, req Request) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), core.ErrTimeout) {
		return fmt.Errorf("%w: %s %s after %s", core.ErrTimeout, req.Method, req.Path, g.timeout)
	}
	return err
}

func (g *Gateway) record(logger *zap.Logger, method, outcome string, fields ...zap.Field) {
	metrics.RequestsTotal.WithLabelValues(method, outcome).Inc()
	logger.Debug("api request", append(fields, zap.String("outcome", outcome))...)
}

func outcomeOf(err error) string {
	if errors.Is(err, core.ErrTimeout) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeCanceled
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), core.ContentJSON)
}

// errorDetail picks the message shown to the user for a non-2xx body:
// detail, then message, then a status line. Bodies that are not JSON at all
// yield "HTTP <code>".
func errorDetail(status int, body []byte) string {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Sprintf("HTTP %d", status)
	}

	if obj, ok := parsed.(map[string]any); ok {
		if detail := detailText(obj["detail"]); detail != "" {
			return detail
		}
		if message, ok := obj["message"].(string); ok && message != "" {
			return message
		}
	}
	return fmt.Sprintf("Error %d: %s", status, http.StatusText(status))
}

// detailText accepts a plain string or a list of {msg} validation errors
func detailText(v any) string {
	switch detail := v.(type) {
	case string:
		return detail
	case []any:
		msgs := make([]string, 0, len(detail))
		for _, item := range detail {
			switch entry := item.(type) {
			case map[string]any:
				if msg, ok := entry["msg"].(string); ok && msg != "" {
					msgs = append(msgs, msg)
				}
			case string:
				msgs = append(msgs, entry)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
