package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/middleware"
)

// SeedHandler creates the staff accounts on demand.
type SeedHandler struct {
	store    identity.Store
	accounts []identity.SeedAccount
}

func NewSeedHandler(store identity.Store, accounts []identity.SeedAccount) *SeedHandler {
	return &SeedHandler{store: store, accounts: accounts}
}

// Seed is idempotent: existing accounts are left untouched.
func (h *SeedHandler) Seed(c *fiber.Ctx) error {
	created, err := identity.Seed(c.UserContext(), h.store, h.accounts)
	if err != nil {
		middleware.GetLogger(c).Error("Seeding failed",
			logger.Strings("created", created),
			logger.Error(err))
		return middleware.InternalServerError(c)
	}

	middleware.GetLogger(c).Info("Seeded accounts", logger.Strings("created", created))
	return c.SendStatus(fiber.StatusNoContent)
}
