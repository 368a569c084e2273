package handlers

import (
	"errors"

	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AuthHandler serves the legacy email/password flows. Passwords are never
// stored locally; they go straight to the delegated identity provider.
type AuthHandler struct {
	DB           *gorm.DB
	Identity     services.IdentityProvider
	Verification *services.VerificationService
}

func NewAuthHandler(db *gorm.DB, identity services.IdentityProvider, verification *services.VerificationService) *AuthHandler {
	return &AuthHandler{DB: db, Identity: identity, Verification: verification}
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	result, err := h.Identity.Authenticate(c.UserContext(), email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logger.Warn("login_failed", map[string]interface{}{"email": email, "ip": c.IP()})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		logger.Error("login_provider_error", err, map[string]interface{}{"email": email})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	logger.Info("login_succeeded", map[string]interface{}{"email": email})
	return utils.Success(c, fiber.StatusOK, result)
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	providerID, err := h.Identity.SignUp(c.UserContext(), email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			return utils.Error(c, fiber.StatusConflict, "account already exists")
		}
		logger.Error("signup_provider_error", err, map[string]interface{}{"email": email})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	user := models.User{
		Email:      email,
		Name:       req.Name,
		Provider:   models.AuthProviderCognito,
		ProviderID: providerID,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Error(c, fiber.StatusConflict, "account already exists")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create account")
	}

	logger.Info("signup_succeeded", map[string]interface{}{"user_id": user.ID.String()})
	return utils.Success(c, fiber.StatusCreated, user)
}

type confirmEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *AuthHandler) ConfirmEmail(c *fiber.Ctx) error {
	var req confirmEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and code are required")
	}

	if err := h.Identity.ConfirmSignUp(c.UserContext(), email, req.Code); err != nil {
		if errors.Is(err, services.ErrVerificationFailed) {
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired code")
		}
		logger.Error("confirm_email_provider_error", err, map[string]interface{}{"email": email})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	h.DB.Model(&models.User{}).Where("email = ?", email).Update("confirmed", true)

	logger.Info("email_confirmed", map[string]interface{}{"email": email})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"confirmed": true})
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) SendVerificationCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if err := h.Verification.SendCode(c.UserContext(), email); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrDependency):
			return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "internal error")
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"sent": true})
}

func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	var req confirmEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)
	if err := h.Verification.VerifyCode(c.UserContext(), email, req.Code); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrVerificationFailed):
			return utils.Error(c, fiber.StatusBadRequest, "invalid or expired code")
		case errors.Is(err, services.ErrDependency):
			return utils.Error(c, fiber.StatusServiceUnavailable, "service unavailable")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "internal error")
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": true})
}
