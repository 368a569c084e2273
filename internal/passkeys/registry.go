package passkeys

import (
	"context"
	"errors"
	"time"

	"github.com/cloudvault/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no passkey matches the credential id for
	// the claimed identity.
	ErrNotFound = errors.New("passkey not found")
	// ErrConflict is returned when a credential id is already registered.
	ErrConflict = errors.New("credential already registered")
	// ErrCounterRegression is returned when a compare-and-set counter update
	// matches no row: the reported counter did not advance past the stored
	// one. Callers treat this as clone detection.
	ErrCounterRegression = errors.New("signature counter did not advance")
)

// Registry is the durable store of WebAuthn credentials and their owners.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// ListByEmail returns every passkey registered for the identity. An unknown
// email yields an empty slice, not an error; first-time registrants simply
// have no exclusions yet.
func (r *Registry) ListByEmail(ctx context.Context, email string) ([]models.Passkey, error) {
	var passkeys []models.Passkey
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = passkeys.user_id").
		Where("users.email = ?", email).
		Find(&passkeys).Error
	if err != nil {
		return nil, err
	}
	return passkeys, nil
}

// FindByCredentialID looks up one passkey scoped to the claimed identity.
// Scoping by email prevents a credential registered for one account from
// authenticating another.
func (r *Registry) FindByCredentialID(ctx context.Context, credentialID []byte, email string) (*models.Passkey, error) {
	var passkey models.Passkey
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = passkeys.user_id").
		Where("passkeys.credential_id = ? AND users.email = ?", credentialID, email).
		First(&passkey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &passkey, nil
}

func (r *Registry) Create(ctx context.Context, passkey *models.Passkey) error {
	err := r.db.WithContext(ctx).Create(passkey).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

// UpdateCounter persists a new signature counter via compare-and-set: the
// UPDATE only matches while the stored counter is strictly lower (or, for
// multi-device credentials, not higher) than the reported one, so a racing
// stale update can never regress the row.
func (r *Registry) UpdateCounter(ctx context.Context, credentialID []byte, newCounter uint32, multiDevice bool) error {
	condition := "sign_count < ?"
	if multiDevice {
		condition = "sign_count <= ?"
	}

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Passkey{}).
		Where("credential_id = ?", credentialID).
		Where(condition, newCounter).
		Updates(map[string]interface{}{
			"sign_count":   newCounter,
			"last_used_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCounterRegression
	}
	return nil
}

func (r *Registry) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ConfirmUser marks an account's email as verified.
func (r *Registry) ConfirmUser(ctx context.Context, email string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("confirmed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateUser returns the user for email, creating an unconfirmed
// passkey-only account on first registration. The id is the WebAuthn user
// handle issued when the ceremony began, so the handle stored inside the
// authenticator always equals the user's id; pass uuid.Nil to let the
// model generate one.
func (r *Registry) FindOrCreateUser(ctx context.Context, email, name string, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where(models.User{Email: email}).
		Attrs(models.User{
			BaseModel: models.BaseModel{ID: id},
			Name:      name,
			Provider:  models.AuthProviderWebAuthn,
		}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
