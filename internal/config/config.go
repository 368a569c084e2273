package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB         DBConfig
	Redis      RedisConfig
	WebAuthn   WebAuthnConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	AWS        AWSConfig
	Server     ServerConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type WebAuthnConfig struct {
	RPName       string
	RPID         string
	RPOrigin     string
	ChallengeTTL time.Duration
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// EncryptionConfig provisions the AES-256 key for stored secrets. Key takes
// precedence when both are set: a 64-char hex string is used verbatim, while
// Secret is stretched through HKDF.
type EncryptionConfig struct {
	Key    string
	Secret string
}

type AWSConfig struct {
	Region          string
	CognitoClientID string
	SESSender       string
}

type ServerConfig struct {
	Port string
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "cloudvault"),
			Password: getEnv("DB_PASSWORD", "cloudvault_secret"),
			Name:     getEnv("DB_NAME", "cloudvault"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		WebAuthn: WebAuthnConfig{
			RPName:       getEnv("WEBAUTHN_RP_NAME", "CloudVault"),
			RPID:         getEnv("WEBAUTHN_RP_ID", "localhost"),
			RPOrigin:     getEnv("WEBAUTHN_RP_ORIGIN", "http://localhost:3000"),
			ChallengeTTL: getEnvAsDuration("WEBAUTHN_CHALLENGE_TTL", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Encryption: EncryptionConfig{
			Key:    getEnv("AES_ENCRYPTION_KEY", ""),
			Secret: getEnv("ENCRYPTION_SECRET", ""),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-west-1"),
			CognitoClientID: getEnv("COGNITO_CLIENT_ID", ""),
			SESSender:       getEnv("SES_SENDER_ADDRESS", ""),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
