package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cloudvault/backend/internal/cache"
	"github.com/cloudvault/backend/internal/passkeys"
	"github.com/cloudvault/backend/pkg/logger"
)

const verificationKeyPrefix = "verify:code:"

// VerificationService issues short-lived 4-digit email verification codes.
// One pending code per email: requesting a new code replaces the previous
// one, and a successful verification consumes it.
type VerificationService struct {
	store    cache.Store
	email    EmailSender
	registry *passkeys.Registry
	ttl      time.Duration
}

func NewVerificationService(store cache.Store, email EmailSender, registry *passkeys.Registry, ttl time.Duration) *VerificationService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VerificationService{store: store, email: email, registry: registry, ttl: ttl}
}

func (s *VerificationService) SendCode(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}

	if err := s.store.Put(ctx, verificationKeyPrefix+email, []byte(code), s.ttl); err != nil {
		return fmt.Errorf("%w: store verification code: %v", ErrDependency, err)
	}

	if err := s.email.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("%w: send verification email: %v", ErrDependency, err)
	}

	logger.Info("verification_code_sent", map[string]interface{}{"email": email})
	return nil
}

// VerifyCode checks the submitted code against the pending one and marks the
// account confirmed. Absent, expired and mismatched codes are
// indistinguishable to the caller.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return fmt.Errorf("%w: email and code are required", ErrValidation)
	}

	stored, err := s.store.Get(ctx, verificationKeyPrefix+email)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrVerificationFailed
		}
		return fmt.Errorf("%w: load verification code: %v", ErrDependency, err)
	}

	if subtle.ConstantTimeCompare(stored, []byte(code)) != 1 {
		logger.Warn("verification_code_mismatch", map[string]interface{}{"email": email})
		return ErrVerificationFailed
	}

	if err := s.store.Delete(ctx, verificationKeyPrefix+email); err != nil {
		return fmt.Errorf("%w: consume verification code: %v", ErrDependency, err)
	}

	if err := s.registry.ConfirmUser(ctx, email); err != nil {
		if errors.Is(err, passkeys.ErrNotFound) {
			return ErrVerificationFailed
		}
		return fmt.Errorf("%w: confirm user: %v", ErrDependency, err)
	}

	logger.Info("email_verified", map[string]interface{}{"email": email})
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
