package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize matches the AES block size; one fresh IV per encrypted secret.
	IVSize = aes.BlockSize
)

// ErrDecrypt is returned for any decryption failure. It deliberately carries
// no detail about which input was malformed.
var ErrDecrypt = errors.New("decryption failed")

const derivationSalt = "cloudvault-secret-encryption"

// Cipher encrypts credential secrets at rest with AES-256-CBC. The key is
// provisioned out of band and injected here; the Cipher never generates or
// rotates it.
type Cipher struct {
	key []byte
}

func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// NewFromSecret derives a 32-byte key from an arbitrary passphrase with
// HKDF-SHA256, for deployments that configure a secret instead of a raw
// hex key.
func NewFromSecret(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	reader := hkdf.New(sha256.New, []byte(secret), []byte(derivationSalt), []byte("encryption-key"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// GenerateIV returns 16 cryptographically random bytes. Callers must use a
// fresh IV for every encryption; reusing one under the same key correlates
// ciphertexts.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// DecodeKey parses a hex-encoded AES-256 key.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// EncodeIV renders an IV in the hex form it is stored in.
func EncodeIV(iv []byte) string {
	return hex.EncodeToString(iv)
}

// DecodeIV parses a stored hex IV.
func DecodeIV(encoded string) ([]byte, error) {
	iv, err := hex.DecodeString(encoded)
	if err != nil || len(iv) != IVSize {
		return nil, ErrDecrypt
	}
	return iv, nil
}

// Encrypt returns the hex-encoded AES-256-CBC ciphertext of plaintext,
// PKCS#7 padded. Deterministic for a fixed (key, iv, plaintext).
func (c *Cipher) Encrypt(plaintext string, iv []byte) (string, error) {
	if len(iv) != IVSize {
		return "", fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed hex, wrong length, and invalid padding
// all collapse into ErrDecrypt.
func (c *Cipher) Decrypt(cipherHex string, iv []byte) (string, error) {
	if len(iv) != IVSize {
		return "", ErrDecrypt
	}

	raw, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", ErrDecrypt
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ErrDecrypt
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)

	plaintext, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
