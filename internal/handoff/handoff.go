// Package handoff carries the current payment session between screens.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/scheme-service/internal/models"
	"github.com/Dan9191/scheme-service/internal/payment"
	"github.com/Dan9191/scheme-service/internal/repository"
	"github.com/Dan9191/scheme-service/internal/utils"
)

// ErrExhausted is returned when no source can supply the session.
var ErrExhausted = errors.New("no payment session available")

// Source names where a recovered session came from.
type Source string

const (
	SourceSnapshot      Source = "snapshot"
	SourceMemory        Source = "memory"
	SourceReconstructed Source = "reconstructed"
)

// Reconstructor rebuilds a minimal session from what is currently known about
// the user. It reports false when too little is known.
type Reconstructor func() (*models.PaymentSession, bool)

// Store persists sealed session snapshots and keeps the latest session in memory
type Store struct {
	store   repository.Store
	key     *[32]byte
	builder *payment.Builder
	log     *logrus.Logger

	mu     sync.RWMutex
	memory map[string]*models.PaymentSession
}

// NewStore initializes a hand-off store
func NewStore(store repository.Store, key *[32]byte, builder *payment.Builder, log *logrus.Logger) *Store {
	return &Store{
		store:   store,
		key:     key,
		builder: builder,
		log:     log,
		memory:  make(map[string]*models.PaymentSession),
	}
}

// Put records s as owner's current session.
func (h *Store) Put(ctx context.Context, owner string, s *models.PaymentSession) error {
	h.mu.Lock()
	h.memory[owner] = s
	h.mu.Unlock()

	data, err := h.builder.Encode(s)
	if err != nil {
		return err
	}
	sealed, err := utils.Seal(data, h.key)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	return h.store.Put(ctx, owner, repository.KeySchemeSelection, sealed)
}

// Get reads owner's persisted snapshot.
func (h *Store) Get(ctx context.Context, owner string) (*models.PaymentSession, error) {
	sealed, err := h.store.Get(ctx, owner, repository.KeySchemeSelection)
	if err != nil {
		return nil, err
	}
	data, err := utils.Open(sealed, h.key)
	if err != nil {
		return nil, err
	}
	return payment.Decode(data)
}

// Clear forgets owner's session everywhere, provided it is still sessionID.
// A session stored since by another flow is left in place.
func (h *Store) Clear(ctx context.Context, owner, sessionID string) error {
	h.mu.Lock()
	if s, ok := h.memory[owner]; ok && s.ID == sessionID {
		delete(h.memory, owner)
	}
	h.mu.Unlock()

	s, err := h.Get(ctx, owner)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err == nil && s.ID != sessionID:
		return nil
	}
	return h.store.Delete(ctx, owner, repository.KeySchemeSelection)
}

// Recover returns owner's session from the snapshot, then the in-memory copy,
// then rebuild. A stored session that accept refuses is passed over. It fails
// only when every source is exhausted.
func (h *Store) Recover(ctx context.Context, owner string, accept func(*models.PaymentSession) bool, rebuild Reconstructor) (*models.PaymentSession, Source, error) {
	if accept == nil {
		accept = func(*models.PaymentSession) bool { return true }
	}
	s, err := h.Get(ctx, owner)
	switch {
	case err == nil && accept(s):
		return s, SourceSnapshot, nil
	case err == nil:
		h.log.WithField("owner", owner).WithField("session_id", s.ID).Info("Session snapshot belongs to another selection, skipped")
	case !errors.Is(err, repository.ErrNotFound):
		h.log.WithError(err).WithField("owner", owner).Warn("Session snapshot unreadable")
	}

	h.mu.RLock()
	s = h.memory[owner]
	h.mu.RUnlock()
	if s != nil && accept(s) {
		return s, SourceMemory, nil
	}

	if rebuild != nil {
		if s, ok := rebuild(); ok {
			return s, SourceReconstructed, nil
		}
	}
	return nil, "", ErrExhausted
}
