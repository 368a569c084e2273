package handlers

import (
	"errors"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// PasswordHandler serves the authenticated credential vault. Stored secrets
// only appear decrypted in single-entry reads; lists carry metadata only.
type PasswordHandler struct {
	Vault *services.VaultService
}

func NewPasswordHandler(vault *services.VaultService) *PasswordHandler {
	return &PasswordHandler{Vault: vault}
}

func (h *PasswordHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var input services.PasswordInput
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	entry, err := h.Vault.Create(c.UserContext(), user.ID, input)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		logger.ErrorWithUser(user.ID.String(), "password_create_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create entry")
	}

	return utils.Success(c, fiber.StatusCreated, entry)
}

func (h *PasswordHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	entries, err := h.Vault.List(c.UserContext(), user.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list entries")
	}

	return utils.Success(c, fiber.StatusOK, entries)
}

func (h *PasswordHandler) Get(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry ID")
	}

	entry, secret, err := h.Vault.Get(c.UserContext(), user.ID, entryID)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "entry not found")
		}
		logger.ErrorWithUser(user.ID.String(), "password_decrypt_failed", err, map[string]interface{}{
			"entry_id": entryID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load entry")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"entry":    entry,
		"password": secret,
	})
}

func (h *PasswordHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry ID")
	}

	var input services.PasswordInput
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	entry, err := h.Vault.Update(c.UserContext(), user.ID, entryID, input)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "entry not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update entry")
	}

	return utils.Success(c, fiber.StatusOK, entry)
}

func (h *PasswordHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry ID")
	}

	if err := h.Vault.Delete(c.UserContext(), user.ID, entryID); err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "entry not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete entry")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}
