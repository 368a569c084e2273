package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type WebAuthnHandler struct {
	Service *services.WebAuthnService
}

func NewWebAuthnHandler(service *services.WebAuthnService) *WebAuthnHandler {
	return &WebAuthnHandler{Service: service}
}

// GenerateRegistrationOptions starts the registration ceremony for an email.
// GET /auth/webauthn/generate-registration-options?email=&userName=
func (h *WebAuthnHandler) GenerateRegistrationOptions(c *fiber.Ctx) error {
	email := normalizeEmail(c.Query("email"))
	if email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}
	userName := strings.TrimSpace(c.Query("userName"))

	options, err := h.Service.BeginRegistration(c.UserContext(), email, userName)
	if err != nil {
		return ceremonyError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, options)
}

type verifyCeremonyRequest struct {
	Email    string          `json:"email"`
	Response json.RawMessage `json:"response"`
}

// VerifyRegistrationResponse completes the registration ceremony.
// POST /auth/webauthn/verify-registration-response
func (h *WebAuthnHandler) VerifyRegistrationResponse(c *fiber.Ctx) error {
	var req verifyCeremonyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || len(req.Response) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "email and response are required")
	}

	if err := h.Service.FinishRegistration(c.UserContext(), email, req.Response); err != nil {
		return ceremonyError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"verified": true})
}

// GenerateAuthenticationOptions starts the authentication ceremony.
// GET /auth/webauthn/generate-authentication-options?email=
func (h *WebAuthnHandler) GenerateAuthenticationOptions(c *fiber.Ctx) error {
	email := normalizeEmail(c.Query("email"))
	if email == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email is required")
	}

	options, err := h.Service.BeginLogin(c.UserContext(), email)
	if err != nil {
		return ceremonyError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, options)
}

// VerifyAuthenticationResponse completes the authentication ceremony and
// returns a session token.
// POST /auth/webauthn/verify-authentication-response
func (h *WebAuthnHandler) VerifyAuthenticationResponse(c *fiber.Ctx) error {
	var req verifyCeremonyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || len(req.Response) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "email and response are required")
	}

	result, err := h.Service.FinishLogin(c.UserContext(), email, req.Response)
	if err != nil {
		return ceremonyError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// ceremonyError maps service failures to HTTP statuses. Missing-challenge,
// verification and clone failures all share one generic 400 so responses
// never reveal which check tripped.
func ceremonyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNoChallenge),
		errors.Is(err, services.ErrVerificationFailed),
		errors.Is(err, services.ErrCloneDetected):
		return utils.Error(c, fiber.StatusBadRequest, "verification failed")
	case errors.Is(err, services.ErrConflict):
		return utils.Error(c, fiber.StatusConflict, "already registered")
	case errors.Is(err, services.ErrDependency):
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "internal error")
	}
}
