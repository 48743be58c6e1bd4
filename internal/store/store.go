package store

import (
	"sync"

	"signal_bot/internal/models"
)

// Store держит открытые позиции (по символу), ожидающие сигналы (по id),
// журнал ордеров и общую статистику. Наружу отдаются только копии.
type Store struct {
	mu        sync.RWMutex
	positions *ordered[string, *models.Position]
	pending   *ordered[string, models.PendingSignal]
	history   []models.OrderHistoryEntry
	stats     models.TradeStats
}

func New() *Store {
	return &Store{
		positions: newOrdered[string, *models.Position](),
		pending:   newOrdered[string, models.PendingSignal](),
	}
}

func (s *Store) Position(symbol string) (*models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions.get(symbol)
	return p.Clone(), ok
}

func (s *Store) HasPosition(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.positions.get(symbol)
	return ok
}

// AddPosition fails if a position for the symbol is already open.
func (s *Store) AddPosition(p *models.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions.get(p.Symbol); ok {
		return false
	}
	s.positions.set(p.Symbol, p.Clone())
	return true
}

// UpdatePosition replaces an existing position, keeping its slot in iteration order.
func (s *Store) UpdatePosition(p *models.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions.get(p.Symbol); !ok {
		return false
	}
	s.positions.set(p.Symbol, p.Clone())
	return true
}

func (s *Store) RemovePosition(symbol string) (*models.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.positions.remove(symbol)
}

func (s *Store) Positions() []*models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals := s.positions.values()
	out := make([]*models.Position, 0, len(vals))
	for _, p := range vals {
		out = append(out, p.Clone())
	}
	return out
}

func (s *Store) PositionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.positions.len()
}

func (s *Store) AddPending(p models.PendingSignal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending.get(p.ID); ok {
		return false
	}
	s.pending.set(p.ID, p)
	return true
}

// TakePending атомарно удаляет сигнал. Второй вызов с тем же id вернёт false.
func (s *Store) TakePending(id string) (models.PendingSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.remove(id)
}

func (s *Store) Pending() []models.PendingSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pending.values()
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pending.len()
}

func (s *Store) AppendHistory(e models.OrderHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, e)
}

// History returns the last n entries, n <= 0 means all.
func (s *Store) History(n int) []models.OrderHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]models.OrderHistoryEntry(nil), h...)
}

func (s *Store) UpdateStats(fn func(*models.TradeStats)) models.TradeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.stats)
	return s.stats
}

func (s *Store) Stats() models.TradeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}

// Export — согласованный срез всего состояния.
func (s *Store) Export() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		ActivePositions: make([]models.Position, 0, s.positions.len()),
		PendingSignals:  s.pending.values(),
		OrderHistory:    append([]models.OrderHistoryEntry(nil), s.history...),
		Stats:           s.stats,
	}
	for _, p := range s.positions.values() {
		snap.ActivePositions = append(snap.ActivePositions, *p.Clone())
	}
	return snap
}

// Import заменяет состояние содержимым снапшота.
func (s *Store) Import(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions.reset()
	for i := range snap.ActivePositions {
		p := snap.ActivePositions[i]
		s.positions.set(p.Symbol, p.Clone())
	}
	s.pending.reset()
	for _, p := range snap.PendingSignals {
		s.pending.set(p.ID, p)
	}
	s.history = append([]models.OrderHistoryEntry(nil), snap.OrderHistory...)
	s.stats = snap.Stats
}
