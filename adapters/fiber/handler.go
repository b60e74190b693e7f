package fiber

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/pkg/sse"
	"github.com/eaglesoak/portal/services"
)

const HeaderChatID = "X-Chat-ID"

type loginInput struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type registerInput struct {
	Email           string    `json:"email" form:"email"`
	Password        string    `json:"password" form:"password"`
	ConfirmPassword string    `json:"confirm_password" form:"confirm_password"`
	Role            core.Role `json:"role" form:"role"`
	AgreeToTerms    bool      `json:"agree_to_terms" form:"agree_to_terms"`
}

type chatInput struct {
	ChatID        string  `json:"chat_id"`
	PropertyID    core.ID `json:"property_id"`
	PropertyTitle string  `json:"property_title"`
	Question      string  `json:"question"`
}

type endpointView struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	OperationID string `json:"operation_id"`
}

type sessionView struct {
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	User          *core.User `json:"user,omitempty"`
}

type transcriptView struct {
	ID          string         `json:"id"`
	Messages    []core.Message `json:"messages"`
	Pending     bool           `json:"pending"`
	State       string         `json:"state"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

func viewSession(snap core.Snapshot) sessionView {
	return sessionView{
		Status:        snap.Status.String(),
		Authenticated: snap.Authenticated(),
		User:          snap.User,
	}
}

func (a *Adapter) index(c fiber.Ctx) error {
	endpoints := a.portal.Endpoints.Endpoints()
	views := make([]endpointView, 0, len(endpoints))
	for _, e := range endpoints {
		views = append(views, endpointView{Method: e.Method, Path: e.Path, OperationID: e.Metadata.OperationID})
	}
	return c.JSON(fiber.Map{
		"session":   viewSession(a.portal.Session.Snapshot()),
		"endpoints": views,
	})
}

func (a *Adapter) session(c fiber.Ctx) error {
	return c.JSON(viewSession(a.portal.Session.Snapshot()))
}

func (a *Adapter) login(c fiber.Ctx) error {
	var input loginInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	user, err := a.portal.Auth.Login(c.Context(), strings.TrimSpace(input.Email), input.Password)
	if err != nil {
		return a.handleError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (a *Adapter) register(c fiber.Ctx) error {
	var input registerInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	user, err := a.portal.Auth.Register(c.Context(), services.SignUpInput{
		Email:           strings.TrimSpace(input.Email),
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
		Role:            input.Role,
		AgreeToTerms:    input.AgreeToTerms,
	})
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

func (a *Adapter) logout(c fiber.Ctx) error {
	// Local state is gone even when the store could not be cleared
	if err := a.portal.Auth.Logout(c.Context()); err != nil {
		a.logger.Warn("logout could not clear token store", zap.Error(err))
	}
	a.Close()
	return c.JSON(fiber.Map{"message": "signed out successfully"})
}

func (a *Adapter) listings(c fiber.Ctx) error {
	limit := services.DefaultListingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return a.handleError(c, &core.ValidationError{Field: "limit", Message: "Limit must be a positive number"})
		}
		limit = n
	}

	list, err := a.portal.Properties.List(c.Context(), limit)
	if err != nil {
		return a.handleError(c, err)
	}
	return c.JSON(fiber.Map{"data": list})
}

func (a *Adapter) property(c fiber.Ctx) error {
	property, err := a.portal.Properties.Get(c.Context(), core.ID(c.Params("id")))
	if err != nil {
		return a.handleError(c, err)
	}
	return c.JSON(property)
}

func (a *Adapter) contact(c fiber.Ctx) error {
	var input core.ContactRequest
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}

	if err := a.portal.Contact.Send(c.Context(), input); err != nil {
		return a.handleError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Thank you! Your message has been sent successfully.",
	})
}

func (a *Adapter) myListings(c fiber.Ctx) error {
	list, err := a.portal.Properties.MyListings(c.Context())
	if err != nil {
		return a.handleError(c, err)
	}
	return c.JSON(fiber.Map{"data": list, "user": currentUser(c)})
}

// createProperty takes the same multipart form the backend does and
// forwards it
func (a *Adapter) createProperty(c fiber.Ctx) error {
	var input core.PropertyInput
	if err := json.Unmarshal([]byte(c.FormValue("property_data_json")), &input); err != nil {
		return invalidBody(c)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return invalidBody(c)
	}

	var files []multipart.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	open := func(fh *multipart.FileHeader) (*services.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		return &services.Upload{Filename: fh.Filename, Content: f}, nil
	}

	images := make([]services.Upload, 0, len(form.File["images"]))
	for _, fh := range form.File["images"] {
		upload, err := open(fh)
		if err != nil {
			return invalidBody(c)
		}
		images = append(images, *upload)
	}

	var pdf *services.Upload
	if pdfs := form.File["pdf"]; len(pdfs) > 0 {
		if pdf, err = open(pdfs[0]); err != nil {
			return invalidBody(c)
		}
	}

	created, err := a.portal.Properties.Create(c.Context(), input, images, pdf)
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// chat relays one assistant reply to the browser as the same data frames the
// backend emits. A reply that fails mid-stream ends with the apology.
func (a *Adapter) chat(c fiber.Ctx) error {
	var input chatInput
	if err := c.Bind().Body(&input); err != nil {
		return invalidBody(c)
	}
	if strings.TrimSpace(input.Question) == "" {
		return a.handleError(c, core.ErrEmptyMessage)
	}

	chat := a.openChat(input)
	// Claim the turn before the status line goes out so a busy transcript
	// still gets a 409
	reply, err := chat.Ask(input.Question)
	if err != nil {
		return a.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(HeaderChatID, chat.ID())

	return c.SendStreamWriter(func(w *bufio.Writer) {
		// The handler has returned by now, so the reply is bound to the
		// client connection instead of the request context
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		err := reply.Stream(ctx, func(content string) {
			if err := sse.WriteContent(w, content); err != nil {
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				cancel()
			}
		})
		if errors.Is(err, core.ErrChatClosed) || ctx.Err() != nil {
			return
		}
		if err != nil {
			_ = sse.WriteContent(w, services.ChatApology)
		}
		_ = sse.WriteDone(w)
		_ = w.Flush()
	})
}

// openChat resumes the transcript named in input or starts a new one
func (a *Adapter) openChat(input chatInput) *services.ChatSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	if chat, ok := a.chats[input.ChatID]; ok {
		return chat
	}
	chat := a.portal.Chat.Open(input.PropertyID, input.PropertyTitle)
	a.chats[chat.ID()] = chat
	return chat
}

func (a *Adapter) lookupChat(id string) (*services.ChatSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chat, ok := a.chats[id]
	return chat, ok
}

func (a *Adapter) chatTranscript(c fiber.Ctx) error {
	chat, ok := a.lookupChat(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{Error: "chat not found"})
	}
	snap := chat.Snapshot()
	return c.JSON(transcriptView{
		ID:          snap.ID,
		Messages:    snap.Messages,
		Pending:     snap.Pending,
		State:       snap.State.String(),
		Suggestions: chat.Suggestions(),
	})
}

func (a *Adapter) closeChat(c fiber.Ctx) error {
	id := c.Params("id")
	a.mu.Lock()
	chat, ok := a.chats[id]
	delete(a.chats, id)
	a.mu.Unlock()

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(core.ErrorResponse{Error: "chat not found"})
	}
	chat.Close()
	return c.SendStatus(fiber.StatusNoContent)
}

func invalidBody(c fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
		Error: "invalid request body",
	})
}

// handleError maps portal errors to appropriate HTTP responses
func (a *Adapter) handleError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}

	resp := core.ErrorResponse{Error: err.Error(), Code: status}
	var validation *core.ValidationError
	if errors.As(err, &validation) {
		resp.Error = validation.Field
		resp.Message = validation.Message
	}
	return c.Status(status).JSON(resp)
}

// mapErrorToStatus maps portal error types to HTTP status codes
func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var apiErr *core.APIError
	var validation *core.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.StatusCode

	case errors.As(err, &validation),
		errors.Is(err, core.ErrEmptyMessage):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, core.ErrChatBusy):
		return http.StatusConflict

	case errors.Is(err, core.ErrChatClosed):
		return http.StatusGone

	case errors.Is(err, core.ErrNotInitialized):
		return http.StatusServiceUnavailable

	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout

	case errors.Is(err, core.ErrNetwork):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
