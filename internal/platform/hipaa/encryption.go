package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a column value written by PHIEncryptor. Values without it
// are treated as plaintext rows stored before a key was configured.
const sealedPrefix = "enc:v1:"

var ErrKeyRequired = errors.New("phi encryptor: key required to read sealed value")

// PHIEncryptor seals individual PHI columns with AES-256-GCM. The column name is
// bound as additional data so a sealed value cannot be moved to another column.
type PHIEncryptor struct {
	aead cipher.AEAD
}

// NewPHIEncryptor creates a new PHIEncryptor with the given 32-byte AES-256 key.
func NewPHIEncryptor(key []byte) (*PHIEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("phi encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("phi encryptor: create GCM: %w", err)
	}

	return &PHIEncryptor{aead: aead}, nil
}

// Seal encrypts value for storage in column. A nil encryptor returns the value
// unchanged.
func (e *PHIEncryptor) Seal(column, value string) (string, error) {
	if e == nil {
		return value, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("phi seal %s: generate nonce: %w", column, err)
	}

	out := e.aead.Seal(nonce, nonce, []byte(value), []byte(column))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Unsealed values pass through so rows written without a key
// stay readable after one is introduced.
func (e *PHIEncryptor) Open(column, stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	if e == nil {
		return "", fmt.Errorf("%w (column %s)", ErrKeyRequired, column)
	}

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("phi open %s: decode: %w", column, err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("phi open %s: ciphertext too short", column)
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(column))
	if err != nil {
		return "", fmt.Errorf("phi open %s: %w", column, err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether stored was produced by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}
