package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/eaglesoak/portal/core"
)

const localsUser = "user"

// Protected gates a route on the session. While the store is still
// validating the persisted token the request gets 503; a visitor without one
// of roles (or without a session when roles is empty) is sent home.
func Protected(store *core.SessionStore, roles ...core.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap := store.Snapshot()
		if snap.Status != core.StatusReady {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Authenticating...")
		}

		user := snap.User
		if user == nil || (len(roles) > 0 && !user.HasRole(roles...)) {
			return c.Redirect().Status(fiber.StatusFound).To("/")
		}

		c.Locals(localsUser, user)
		return c.Next()
	}
}

// currentUser returns the user Protected stored for this request
func currentUser(c fiber.Ctx) *core.User {
	user, _ := c.Locals(localsUser).(*core.User)
	return user
}
