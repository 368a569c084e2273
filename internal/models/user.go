package models

type AuthProvider string

const (
	AuthProviderCognito  AuthProvider = "cognito"
	AuthProviderWebAuthn AuthProvider = "webauthn"
)

type User struct {
	BaseModel
	Email      string          `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name       string          `json:"name,omitempty" gorm:"type:varchar(100)"`
	Provider   AuthProvider    `json:"provider" gorm:"type:varchar(20);not null;default:'webauthn'"`
	ProviderID string          `json:"-" gorm:"type:varchar(255)"`
	Confirmed  bool            `json:"confirmed" gorm:"default:false"`
	Passkeys   []Passkey       `json:"-" gorm:"foreignKey:UserID"`
	Passwords  []PasswordEntry `json:"-" gorm:"foreignKey:UserID"`
}
