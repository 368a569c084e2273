package models

import "github.com/google/uuid"

// PasswordEntry stores one credential record. Only the secret itself is
// encrypted; the metadata columns stay queryable in plaintext. IV and
// Ciphertext are always written together in the same statement.
type PasswordEntry struct {
	BaseModel
	UserID      uuid.UUID `json:"userID" gorm:"type:uuid;index;not null"`
	ServiceName string    `json:"serviceName" gorm:"type:varchar(255);not null"`
	URL         string    `json:"url,omitempty" gorm:"type:text"`
	Username    string    `json:"username,omitempty" gorm:"type:varchar(255)"`
	Email       string    `json:"email,omitempty" gorm:"type:varchar(255)"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	Ciphertext  string    `json:"-" gorm:"type:text;not null"`
	IV          string    `json:"-" gorm:"type:varchar(32);not null"`
	User        User      `json:"-" gorm:"foreignKey:UserID"`
}
