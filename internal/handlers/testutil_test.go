package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudvault/backend/internal/cache"
	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/internal/passkeys"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/crypto"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	store    *cache.MemoryStore
	email    *fakeEmailSender
	identity *fakeIdentityProvider
}

type fakeIdentityProvider struct {
	mu       sync.Mutex
	accounts map[string]string
}

func newFakeIdentityProvider() *fakeIdentityProvider {
	return &fakeIdentityProvider{accounts: map[string]string{}}
}

func (f *fakeIdentityProvider) Authenticate(_ context.Context, email, password string) (*services.IdentityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.accounts[email]; !ok || stored != password {
		return nil, services.ErrInvalidCredentials
	}
	return &services.IdentityResult{AccessToken: "provider-token-" + email}, nil
}

func (f *fakeIdentityProvider) SignUp(_ context.Context, email, password, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return "", services.ErrConflict
	}
	f.accounts[email] = password
	return uuid.New().String(), nil
}

func (f *fakeIdentityProvider) ConfirmSignUp(_ context.Context, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; !ok || code != "123456" {
		return services.ErrVerificationFailed
	}
	return nil
}

type fakeEmailSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{codes: map[string]string{}}
}

func (f *fakeEmailSender) SendVerificationCode(_ context.Context, recipient, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[recipient] = code
	return nil
}

func (f *fakeEmailSender) lastCode(recipient string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[recipient]
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Passkey{},
		&models.PasswordEntry{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	store := cache.NewMemoryStore()
	registry := passkeys.NewRegistry(db)

	webAuthnService, err := services.NewWebAuthnService(services.WebAuthnConfig{
		RPName:       "CloudVault Test",
		RPID:         "localhost",
		RPOrigin:     "http://localhost:3000",
		ChallengeTTL: 5 * time.Minute,
	}, registry, store)
	if err != nil {
		t.Fatalf("failed building webauthn service: %v", err)
	}

	identity := newFakeIdentityProvider()
	email := newFakeEmailSender()
	verification := services.NewVerificationService(store, email, registry, 5*time.Minute)

	cipher, err := crypto.NewFromSecret("test-encryption-secret")
	if err != nil {
		t.Fatalf("failed building cipher: %v", err)
	}
	vault := services.NewVaultService(db, cipher)

	webAuthnHandler := NewWebAuthnHandler(webAuthnService)
	authHandler := NewAuthHandler(db, identity, verification)
	passwordHandler := NewPasswordHandler(vault)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	authRoutes := app.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/signup", authHandler.Signup)
	authRoutes.Post("/confirm-email", authHandler.ConfirmEmail)
	authRoutes.Post("/send-verification-code", authHandler.SendVerificationCode)
	authRoutes.Post("/verify-code", authHandler.VerifyCode)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	webauthnRoutes := authRoutes.Group("/webauthn")
	webauthnRoutes.Get("/generate-registration-options", webAuthnHandler.GenerateRegistrationOptions)
	webauthnRoutes.Post("/verify-registration-response", webAuthnHandler.VerifyRegistrationResponse)
	webauthnRoutes.Get("/generate-authentication-options", webAuthnHandler.GenerateAuthenticationOptions)
	webauthnRoutes.Post("/verify-authentication-response", webAuthnHandler.VerifyAuthenticationResponse)

	passwordRoutes := app.Group("/passwords", authMiddleware.RequireAuth)
	passwordRoutes.Post("/", passwordHandler.Create)
	passwordRoutes.Get("/", passwordHandler.List)
	passwordRoutes.Get("/:id", passwordHandler.Get)
	passwordRoutes.Put("/:id", passwordHandler.Update)
	passwordRoutes.Delete("/:id", passwordHandler.Delete)

	return &testEnv{app: app, db: db, store: store, email: email, identity: identity}
}

func createTestUser(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()

	user := &models.User{
		Email:     email,
		Name:      "Test User",
		Provider:  models.AuthProviderWebAuthn,
		Confirmed: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
