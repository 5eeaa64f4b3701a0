package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// LobbyPmsSettings is the decrypted per-tenant PMS credential set.
// SyncEnabled is a tri-state: nil means "not set", which counts as enabled.
type LobbyPmsSettings struct {
	APIKey      string `json:"apiKey"`
	APIURL      string `json:"apiUrl"`
	PropertyID  string `json:"propertyId"`
	SyncEnabled *bool  `json:"syncEnabled,omitempty"`
}

// APISettings is the decrypted shape of an organization settings blob. The
// PMS credentials live under the lobbyPms key next to settings for other
// integrations, which are opaque to this service.
type APISettings struct {
	LobbyPms *LobbyPmsSettings `json:"lobbyPms,omitempty"`
}

// Cipher encrypts and decrypts settings blobs with AES-256-GCM. Blobs are
// stored as nonce||ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("settings encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("settings encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < c.aead.NonceSize() {
		return nil, fmt.Errorf("settings blob too short: %d bytes", len(blob))
	}
	nonce, ciphertext := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt settings blob: %w", err)
	}
	return plaintext, nil
}

// DecryptOrganizationSettings decrypts an organization settings blob.
func (c *Cipher) DecryptOrganizationSettings(blob []byte) (*APISettings, error) {
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	var settings APISettings
	if err := json.Unmarshal(plaintext, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse organization settings: %w", err)
	}
	return &settings, nil
}

// DecryptBranchSettings decrypts a branch settings blob. Branch blobs come
// in two historical shapes: nested under a lobbyPms key like organization
// blobs, or the flat credential object itself.
func (c *Cipher) DecryptBranchSettings(blob []byte) (*LobbyPmsSettings, error) {
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return nil, err
	}

	var nested APISettings
	if err := json.Unmarshal(plaintext, &nested); err == nil && nested.LobbyPms != nil {
		return nested.LobbyPms, nil
	}

	var flat LobbyPmsSettings
	if err := json.Unmarshal(plaintext, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse branch settings: %w", err)
	}
	return &flat, nil
}

// EncryptBranchSettings seals branch credentials in the nested shape.
// Used by the admin configuration surface and by tests.
func (c *Cipher) EncryptBranchSettings(s *LobbyPmsSettings) ([]byte, error) {
	plaintext, err := json.Marshal(&APISettings{LobbyPms: s})
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext)
}

// EncryptOrganizationSettings seals an organization settings object.
func (c *Cipher) EncryptOrganizationSettings(s *APISettings) ([]byte, error) {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext)
}
