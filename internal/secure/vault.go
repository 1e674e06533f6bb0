// Package secure keeps the access token between runs in an AES-GCM encrypted file.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/actual-software/chat-bridge/internal/constants"
)

const (
	// PBKDF2 iterations for key derivation.
	pbkdf2Iterations = 10000
	// Key length for AES encryption.
	keyLength = 32

	vaultFile = "tokens.enc"
)

// ErrTokenNotFound is returned by Retrieve for an unknown key.
var ErrTokenNotFound = errors.New("token not found")

// FileVault stores tokens encrypted with a machine-derived key.
type FileVault struct {
	filePath string
	key      []byte
	mu       sync.Mutex
}

// NewFileVault opens the vault under ~/.config/<appName>.
func NewFileVault(appName string) (*FileVault, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return NewFileVaultAt(filepath.Join(homeDir, ".config", appName), appName)
}

// NewFileVaultAt opens the vault in dir, creating the directory if needed.
func NewFileVaultAt(dir, appName string) (*FileVault, error) {
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &FileVault{
		filePath: filepath.Join(dir, vaultFile),
		key:      deriveKey(appName),
	}, nil
}

// Path returns the vault file location.
func (v *FileVault) Path() string {
	return v.filePath
}

// deriveKey produces a deterministic key from the app name and machine identity.
func deriveKey(appName string) []byte {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}

	secret := fmt.Sprintf("%s-%s-%s", appName, hostname, username)

	return pbkdf2.Key([]byte(secret), []byte(appName), pbkdf2Iterations, keyLength, sha256.New)
}

type vaultData struct {
	Tokens map[string]string `json:"tokens"`
}

func (v *FileVault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}

func (v *FileVault) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *FileVault) decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	return gcm.Open(nil, nonce, sealed, nil)
}

// load reads the vault. Callers hold mu.
func (v *FileVault) load() (*vaultData, error) {
	data, err := os.ReadFile(v.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &vaultData{Tokens: make(map[string]string)}, nil
		}

		return nil, err
	}

	plain, err := v.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tokens: %w", err)
	}

	var vd vaultData
	if err := json.Unmarshal(plain, &vd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}

	if vd.Tokens == nil {
		vd.Tokens = make(map[string]string)
	}

	return &vd, nil
}

// save writes the vault atomically. Callers hold mu.
func (v *FileVault) save(vd *vaultData) error {
	data, err := json.Marshal(vd)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	encrypted, err := v.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	tmpFile := v.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, encrypted, constants.FilePermissions); err != nil {
		return fmt.Errorf("failed to write encrypted tokens: %w", err)
	}

	return os.Rename(tmpFile, v.filePath)
}

// Store saves token under key. An empty token removes the key.
func (v *FileVault) Store(key, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	vd, err := v.load()
	if err != nil {
		return err
	}

	if token == "" {
		delete(vd.Tokens, key)
	} else {
		vd.Tokens[key] = base64.StdEncoding.EncodeToString([]byte(token))
	}

	return v.save(vd)
}

// Retrieve returns the token saved under key.
func (v *FileVault) Retrieve(key string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	vd, err := v.load()
	if err != nil {
		return "", err
	}

	encoded, ok := vd.Tokens[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenNotFound, key)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}

	return string(decoded), nil
}

// Delete removes key from the vault.
func (v *FileVault) Delete(key string) error {
	return v.Store(key, "")
}

// List returns the stored keys in sorted order.
func (v *FileVault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	vd, err := v.load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(vd.Tokens))
	for k := range vd.Tokens {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys, nil
}
