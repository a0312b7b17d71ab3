// Package persistence holds the concrete Persistence Adapter implementations
// and the credential-encryption boundary every adapter applies before a
// workflow's http_request auth config touches storage.
package persistence

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Encryptor performs AES-256-GCM encryption of secret strings, keyed by a
// passphrase stretched with PBKDF2.
type Encryptor struct {
	key []byte
}

// EncryptorConfig configures key derivation for Encryptor.
type EncryptorConfig struct {
	Passphrase string
	Salt       string
	Iterations int
}

// DefaultEncryptorConfig returns sane PBKDF2 defaults.
func DefaultEncryptorConfig() EncryptorConfig {
	return EncryptorConfig{Salt: "workflow-core-salt", Iterations: 100000}
}

func NewEncryptor(cfg EncryptorConfig) (*Encryptor, error) {
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("persistence: encryption passphrase must not be empty")
	}
	iterations := cfg.Iterations
	if iterations == 0 {
		iterations = 100000
	}
	key := pbkdf2.Key([]byte(cfg.Passphrase), []byte(cfg.Salt), iterations, 32, sha256.New)
	return &Encryptor{key: key}, nil
}

func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("persistence: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("persistence: creating gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("persistence: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *Encryptor) DecryptString(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("persistence: invalid base64: %w", err)
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("persistence: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("persistence: creating gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", fmt.Errorf("persistence: ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("persistence: decrypting: %w", err)
	}
	return string(plaintext), nil
}

// sensitiveAuthFields names the http_request Auth keys encrypted at rest.
var sensitiveAuthFields = map[string]bool{
	"password": true, "token": true, "api_key": true,
	"client_secret": true, "refresh_token": true, "access_token": true,
}

const encryptedPrefix = "enc:"

// EncryptAuth encrypts sensitive fields of an http_request node's Auth map
// in place, before the workflow is handed to a Persistence Adapter.
func (e *Encryptor) EncryptAuth(auth map[string]interface{}) error {
	for key, value := range auth {
		if !sensitiveAuthFields[key] {
			continue
		}
		strVal, ok := value.(string)
		if !ok || strVal == "" {
			continue
		}
		enc, err := e.EncryptString(strVal)
		if err != nil {
			return fmt.Errorf("persistence: encrypting auth field %q: %w", key, err)
		}
		auth[key] = encryptedPrefix + enc
	}
	return nil
}

// DecryptAuth reverses EncryptAuth after a workflow is loaded back from a
// Persistence Adapter.
func (e *Encryptor) DecryptAuth(auth map[string]interface{}) error {
	for key, value := range auth {
		strVal, ok := value.(string)
		if !ok || len(strVal) <= len(encryptedPrefix) || strVal[:len(encryptedPrefix)] != encryptedPrefix {
			continue
		}
		dec, err := e.DecryptString(strVal[len(encryptedPrefix):])
		if err != nil {
			return fmt.Errorf("persistence: decrypting auth field %q: %w", key, err)
		}
		auth[key] = dec
	}
	return nil
}

// EncryptWorkflowNodes and DecryptWorkflowNodes walk a persistence-record
// Nodes map (the {"items": [...]} shape features.NodesToRecord produces)
// and apply EncryptAuth/DecryptAuth to every http_request node's auth map
// in place. An adapter calls Encrypt before a write and Decrypt after a
// read, so ciphertext never leaves this package.
func (e *Encryptor) EncryptWorkflowNodes(nodes map[string]interface{}) error {
	return e.walkHTTPRequestAuth(nodes, e.EncryptAuth)
}

func (e *Encryptor) DecryptWorkflowNodes(nodes map[string]interface{}) error {
	return e.walkHTTPRequestAuth(nodes, e.DecryptAuth)
}

func (e *Encryptor) walkHTTPRequestAuth(nodes map[string]interface{}, apply func(map[string]interface{}) error) error {
	items, ok := nodes["items"].([]interface{})
	if !ok {
		return nil
	}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "http_request" {
			continue
		}
		auth, ok := m["auth"].(map[string]interface{})
		if !ok || len(auth) == 0 {
			continue
		}
		if err := apply(auth); err != nil {
			return err
		}
	}
	return nil
}
