package fiber

import (
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/eaglesoak/portal"
	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/internal/metrics"
	"github.com/eaglesoak/portal/services"
)

// Adapter serves the portal pages as JSON routes on a fiber app
type Adapter struct {
	app    *fiber.App
	portal *portal.Portal
	logger *zap.Logger

	mu    sync.Mutex
	chats map[string]*services.ChatSession
}

func New(app *fiber.App, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		app:    app,
		logger: logger,
		chats:  make(map[string]*services.ChatSession),
	}
}

func (a *Adapter) RegisterRoutes(p *portal.Portal) error {
	a.portal = p
	store := p.Session

	// Public routes
	a.app.Get("/", a.index)
	a.app.Get("/session", a.session)
	a.app.Post("/login", a.login)
	a.app.Post("/register", a.register)
	a.app.Post("/logout", a.logout)
	a.app.Get("/listings", a.listings)
	a.app.Get("/properties/:id", a.property)
	a.app.Post("/contact", a.contact)
	a.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Protected routes
	dashboard := a.app.Group("/dashboard", Protected(store, core.RoleRealtor, core.RoleAdmin))
	dashboard.Get("/listings", a.myListings)
	dashboard.Post("/properties", a.createProperty)

	chat := a.app.Group("/chat", Protected(store))
	chat.Post("/", a.chat)
	chat.Get("/:id", a.chatTranscript)
	chat.Delete("/:id", a.closeChat)

	return nil
}

// Close ends every open chat transcript
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, chat := range a.chats {
		chat.Close()
		delete(a.chats, id)
	}
}
