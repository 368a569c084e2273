package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/cloudvault/backend/internal/cache"
	"github.com/cloudvault/backend/internal/config"
	"github.com/cloudvault/backend/internal/database"
	"github.com/cloudvault/backend/internal/handlers"
	"github.com/cloudvault/backend/internal/middleware"
	"github.com/cloudvault/backend/internal/passkeys"
	"github.com/cloudvault/backend/internal/services"
	"github.com/cloudvault/backend/pkg/crypto"
	"github.com/cloudvault/backend/pkg/logger"
	"github.com/cloudvault/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	cipher, err := buildCipher(cfg.Encryption)
	if err != nil {
		log.Fatalf("encryption key setup failed: %v", err)
	}

	challengeStore, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatalf("aws configuration failed: %v", err)
	}

	registry := passkeys.NewRegistry(db)

	webAuthnService, err := services.NewWebAuthnService(services.WebAuthnConfig{
		RPName:       cfg.WebAuthn.RPName,
		RPID:         cfg.WebAuthn.RPID,
		RPOrigin:     cfg.WebAuthn.RPOrigin,
		ChallengeTTL: cfg.WebAuthn.ChallengeTTL,
	}, registry, challengeStore)
	if err != nil {
		log.Fatalf("webauthn initialization failed: %v", err)
	}

	identity := services.NewCognitoProvider(awsCfg, cfg.AWS.CognitoClientID)
	emailSender := services.NewSESEmailSender(awsCfg, cfg.AWS.SESSender)
	verification := services.NewVerificationService(challengeStore, emailSender, registry, cfg.WebAuthn.ChallengeTTL)
	vault := services.NewVaultService(db, cipher)

	webAuthnHandler := handlers.NewWebAuthnHandler(webAuthnService)
	authHandler := handlers.NewAuthHandler(db, identity, verification)
	passwordHandler := handlers.NewPasswordHandler(vault)

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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"rp_id":   cfg.WebAuthn.RPID,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
		_ = challengeStore.Close()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// buildCipher resolves the vault key: a 64-char hex key is used verbatim,
// otherwise the configured secret is stretched through HKDF.
func buildCipher(cfg config.EncryptionConfig) (*crypto.Cipher, error) {
	if cfg.Key != "" {
		key, err := crypto.DecodeKey(cfg.Key)
		if err != nil {
			return nil, err
		}
		return crypto.New(key)
	}
	return crypto.NewFromSecret(cfg.Secret)
}
