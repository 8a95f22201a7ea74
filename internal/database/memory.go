package database

import (
	"context"
	"sync"
	"time"

	"github.com/quantfold/perparb/internal/models"
)

// MemoryPositionStore is an in-process position store used by the
// one-shot scan mode, where no capital is committed and nothing needs
// to survive the process.
type MemoryPositionStore struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

func NewMemoryPositionStore() *MemoryPositionStore {
	return &MemoryPositionStore{positions: make(map[string]*models.Position)}
}

func (s *MemoryPositionStore) Save(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *position
	s.positions[position.ID] = &copied
	return nil
}

func (s *MemoryPositionStore) Update(ctx context.Context, position *models.Position) error {
	return s.Save(ctx, position)
}

func (s *MemoryPositionStore) ListActive(_ context.Context) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*models.Position, 0)
	for _, position := range s.positions {
		if position.Status.IsTerminal() {
			continue
		}
		copied := *position
		active = append(active, &copied)
	}
	return active, nil
}

// MemoryLedger is the scan-mode counterpart for the trade ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []models.TradeResult
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(_ context.Context, result *models.TradeResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *result)
	return nil
}

func (l *MemoryLedger) List(_ context.Context, from time.Time) ([]models.TradeResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]models.TradeResult, 0, len(l.entries))
	for _, entry := range l.entries {
		if !from.IsZero() && entry.ExecutedAt.Before(from) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}
