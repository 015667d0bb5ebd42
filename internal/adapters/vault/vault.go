// Package vault seals and opens the exchange credentials stored on a bot row.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"gridBot/internal/ports"
)

const (
	keySize  = 32 // AES-256
	hkdfInfo = "gridbot credentials v1"
)

// Credentials is the decrypted content of a bot credentials blob.
type Credentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// Vault encrypts credentials with AES-256-GCM under a key derived from a passphrase.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from passphrase.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: credentials passphrase is empty", ports.ErrConfigurationError)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Vault{aead: gcm}, nil
}

// Seal returns base64(nonce || ciphertext) of the JSON encoded credentials.
func (v *Vault) Seal(c Credentials) (string, error) {
	if c.APIKey == "" || c.APISecret == "" {
		return "", fmt.Errorf("%w: api key and secret are required", ports.ErrInvalidRequest)
	}
	plaintext, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal. Every failure wraps ports.ErrCredentials.
func (v *Vault) Open(blob string) (Credentials, error) {
	var c Credentials
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return c, fmt.Errorf("%w: invalid encoding", ports.ErrCredentials)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return c, fmt.Errorf("%w: ciphertext too short", ports.ErrCredentials)
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return c, fmt.Errorf("%w: decryption failed", ports.ErrCredentials)
	}
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return c, fmt.Errorf("%w: malformed payload: %v", ports.ErrCredentials, err)
	}
	if c.APIKey == "" || c.APISecret == "" {
		return c, fmt.Errorf("%w: incomplete credentials", ports.ErrCredentials)
	}
	return c, nil
}
