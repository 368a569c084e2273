package models

import (
	"time"

	"github.com/google/uuid"
)

type DeviceType string

const (
	DeviceTypeSingleDevice DeviceType = "single_device"
	DeviceTypeMultiDevice  DeviceType = "multi_device"
)

// Passkey is one registered WebAuthn authenticator credential. SignCount is
// only ever advanced by the authentication ceremony; a non-advancing counter
// means possible credential cloning and aborts the login.
type Passkey struct {
	BaseModel
	UserID         uuid.UUID  `json:"userID" gorm:"type:uuid;index;not null"`
	CredentialID   []byte     `json:"-" gorm:"type:bytea;uniqueIndex;not null"`
	PublicKey      []byte     `json:"-" gorm:"type:bytea;not null"`
	WebAuthnUserID []byte     `json:"-" gorm:"type:bytea"`
	SignCount      uint32     `json:"-" gorm:"default:0"`
	Transports     string     `json:"-" gorm:"type:text"`
	DeviceType     DeviceType `json:"deviceType" gorm:"type:varchar(20);not null;default:'single_device'"`
	BackedUp       bool       `json:"backedUp" gorm:"default:false"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	User           User       `json:"-" gorm:"foreignKey:UserID"`
}
