package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudvault/backend/internal/models"
	"github.com/cloudvault/backend/pkg/crypto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrEntryNotFound is returned when a password entry does not exist or
// belongs to a different user. The two cases are indistinguishable.
var ErrEntryNotFound = errors.New("password entry not found")

type PasswordInput struct {
	ServiceName string `json:"serviceName"`
	URL         string `json:"url"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

// VaultService manages per-user password entries. Secrets are encrypted
// before they touch the database and only ever decrypted for single-entry
// reads; list responses carry metadata only.
type VaultService struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

func NewVaultService(db *gorm.DB, cipher *crypto.Cipher) *VaultService {
	return &VaultService{db: db, cipher: cipher}
}

func (s *VaultService) Create(ctx context.Context, userID uuid.UUID, input PasswordInput) (*models.PasswordEntry, error) {
	if input.ServiceName == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: serviceName and password are required", ErrValidation)
	}

	iv, err := crypto.GenerateIV()
	if err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext, err := s.cipher.Encrypt(input.Password, iv)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	entry := models.PasswordEntry{
		UserID:      userID,
		ServiceName: input.ServiceName,
		URL:         input.URL,
		Username:    input.Username,
		Email:       input.Email,
		Description: input.Description,
		Ciphertext:  ciphertext,
		IV:          crypto.EncodeIV(iv),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *VaultService) List(ctx context.Context, userID uuid.UUID) ([]models.PasswordEntry, error) {
	var entries []models.PasswordEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns one entry with its decrypted secret.
func (s *VaultService) Get(ctx context.Context, userID, entryID uuid.UUID) (*models.PasswordEntry, string, error) {
	entry, err := s.find(ctx, userID, entryID)
	if err != nil {
		return nil, "", err
	}

	iv, err := crypto.DecodeIV(entry.IV)
	if err != nil {
		return nil, "", crypto.ErrDecrypt
	}
	plaintext, err := s.cipher.Decrypt(entry.Ciphertext, iv)
	if err != nil {
		return nil, "", err
	}
	return entry, plaintext, nil
}

// Update rewrites an entry. A new secret is re-encrypted under a fresh IV;
// leaving Password empty keeps the stored ciphertext untouched.
func (s *VaultService) Update(ctx context.Context, userID, entryID uuid.UUID, input PasswordInput) (*models.PasswordEntry, error) {
	entry, err := s.find(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"service_name": input.ServiceName,
		"url":          input.URL,
		"username":     input.Username,
		"email":        input.Email,
		"description":  input.Description,
	}
	if input.ServiceName == "" {
		delete(updates, "service_name")
	}

	if input.Password != "" {
		iv, err := crypto.GenerateIV()
		if err != nil {
			return nil, fmt.Errorf("generate iv: %w", err)
		}
		ciphertext, err := s.cipher.Encrypt(input.Password, iv)
		if err != nil {
			return nil, fmt.Errorf("encrypt secret: %w", err)
		}
		updates["ciphertext"] = ciphertext
		updates["iv"] = crypto.EncodeIV(iv)
	}

	if err := s.db.WithContext(ctx).Model(entry).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.find(ctx, userID, entryID)
}

func (s *VaultService) Delete(ctx context.Context, userID, entryID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&models.PasswordEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *VaultService) find(ctx context.Context, userID, entryID uuid.UUID) (*models.PasswordEntry, error) {
	var entry models.PasswordEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
