package auth

import (
	"sync"

	"go.uber.org/zap"

	"github.com/actual-software/chat-bridge/pkg/common/logging"
)

// MemoryStore keeps the current credential in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
}

// NewMemoryStore creates a store seeded with cred.
func NewMemoryStore(cred Credential) *MemoryStore {
	return &MemoryStore{cred: cred}
}

// Current returns the stored credential and whether one is present.
func (s *MemoryStore) Current() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cred, !s.cred.IsZero()
}

// Update replaces the stored credential.
func (s *MemoryStore) Update(cred Credential) {
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()
}

// Clear drops the stored credential.
func (s *MemoryStore) Clear() {
	s.Update(Credential{})
}

// Vault persists raw tokens between runs.
type Vault interface {
	Store(key, token string) error
	Retrieve(key string) (string, error)
}

// PersistentStore is a MemoryStore that writes every update through to a Vault.
type PersistentStore struct {
	*MemoryStore

	vault  Vault
	key    string
	logger *zap.Logger
}

// NewPersistentStore loads the token saved under key, if any, and returns a write-through store.
func NewPersistentStore(vault Vault, key string, logger *zap.Logger) *PersistentStore {
	s := &PersistentStore{
		MemoryStore: NewMemoryStore(Credential{}),
		vault:       vault,
		key:         key,
		logger:      logger.With(zap.String(logging.FieldComponent, "credential_store")),
	}

	if token, err := vault.Retrieve(key); err == nil && token != "" {
		s.MemoryStore.Update(NewCredential(token))
	}

	return s
}

// Update replaces the credential and persists its token. Persistence failures are logged;
// the in-memory credential stays authoritative.
func (s *PersistentStore) Update(cred Credential) {
	s.MemoryStore.Update(cred)

	if err := s.vault.Store(s.key, cred.Token); err != nil {
		s.logger.Warn("Failed to persist credential", zap.Error(err))
	}
}
