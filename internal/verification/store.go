// Package verification issues and checks one-time email verification codes.
//
// Codes live in an injected CodeStore: MemoryStore for a single instance,
// RedisStore when several instances share state. Both expire codes after
// their TTL; MemoryStore needs its Run loop (or explicit Sweep calls) to
// reclaim memory from codes that are never verified.
package verification

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"go.uber.org/zap"
)

// ErrCodeNotFound is returned when no live code exists for an address.
var ErrCodeNotFound = apperrors.New(apperrors.NotFoundError, "verification code not found", "")

// CodeStore keeps at most one pending code per email address.
type CodeStore interface {
	// Put stores code for email, replacing any previous one.
	Put(ctx context.Context, email, code string, ttl time.Duration) error
	// Get returns the live code for email or ErrCodeNotFound.
	Get(ctx context.Context, email string) (string, error)
	// Delete removes the code and reports whether one was removed.
	Delete(ctx context.Context, email string) (bool, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is a time-indexed in-process CodeStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	log     *zap.SugaredLogger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		log:     logger.GetLogger().Named("verification_store"),
	}
}

func (s *MemoryStore) Put(_ context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[normalizeEmail(email)] = memoryEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[normalizeEmail(email)]
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", ErrCodeNotFound
	}
	return entry.code, nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	delete(s.entries, key)
	return s.now().Before(entry.expiresAt), nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired codes and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debugw("Swept expired verification codes", "count", n)
			}
		}
	}
}
