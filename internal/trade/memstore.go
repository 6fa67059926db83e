package trade

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Transactions are serialized and their
// writes are staged, so a failing transaction leaves no trace.
type MemoryStore struct {
	txMu sync.Mutex // held for the whole of WithinTx
	mu   sync.RWMutex

	trades   map[string]*Trade
	products map[string]Product
	locks    map[string]string
	outbox   []OutboxMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades:   make(map[string]*Trade),
		products: make(map[string]Product),
		locks:    make(map[string]string),
	}
}

// PutProduct seeds or replaces a catalog row.
func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// LockHolder returns the trade holding productID, if any.
func (s *MemoryStore) LockHolder(productID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.locks[productID]
	return id, ok
}

// Outbox returns a copy of every outbox message written so far.
func (s *MemoryStore) Outbox() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OutboxMessage(nil), s.outbox...)
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	tx := &memTx{
		s:      s,
		trades: make(map[string]*Trade),
		locks:  make(map[string]string, len(s.locks)),
	}
	for k, v := range s.locks {
		tx.locks[k] = v
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tx.trades {
		s.trades[id] = t
	}
	s.locks = tx.locks
	s.outbox = append(s.outbox, tx.outbox...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Trade
	for _, t := range s.trades {
		if f.matches(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int)
	for _, t := range s.trades {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) PendingOutbox(_ context.Context, limit int) ([]OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OutboxMessage
	for _, m := range s.outbox {
		if m.DispatchedAt != nil {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkDispatched(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.outbox {
		if want[s.outbox[i].ID] && s.outbox[i].DispatchedAt == nil {
			ts := at
			s.outbox[i].DispatchedAt = &ts
		}
	}
	return nil
}

type memTx struct {
	s      *MemoryStore
	trades map[string]*Trade
	locks  map[string]string
	outbox []OutboxMessage
}

func (tx *memTx) lookup(id string) (*Trade, bool) {
	if t, ok := tx.trades[id]; ok {
		return t, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	t, ok := tx.s.trades[id]
	return t, ok
}

func (tx *memTx) LockTrade(_ context.Context, id string) (*Trade, error) {
	t, ok := tx.lookup(id)
	if !ok {
		return nil, ErrTradeNotFound
	}
	return t.Clone(), nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *Trade) error {
	if _, ok := tx.lookup(t.ID); ok {
		return ErrValidation.With("trade %s already exists", t.ID)
	}
	tx.trades[t.ID] = t.Clone()
	return nil
}

func (tx *memTx) UpdateTrade(_ context.Context, t *Trade, prevVersion int64) error {
	cur, ok := tx.lookup(t.ID)
	if !ok {
		return ErrTradeNotFound
	}
	if cur.Version != prevVersion {
		return ErrConcurrentUpdate
	}
	tx.trades[t.ID] = t.Clone()
	return nil
}

func (tx *memTx) Products(_ context.Context, ids []string) (map[string]Product, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := tx.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memTx) AcquireItems(_ context.Context, tradeID string, productIDs []string) error {
	for _, pid := range productIDs {
		if holder, ok := tx.locks[pid]; ok && holder != tradeID {
			return ErrItemAlreadyCommitted.With("product %s is committed to another active trade", pid)
		}
	}
	for _, pid := range productIDs {
		tx.locks[pid] = tradeID
	}
	return nil
}

func (tx *memTx) ReleaseItems(_ context.Context, tradeID string) error {
	for pid, holder := range tx.locks {
		if holder == tradeID {
			delete(tx.locks, pid)
		}
	}
	return nil
}

func (tx *memTx) HeldItems(_ context.Context, tradeID string) ([]string, error) {
	var out []string
	for pid, holder := range tx.locks {
		if holder == tradeID {
			out = append(out, pid)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (tx *memTx) Enqueue(_ context.Context, msgs ...OutboxMessage) error {
	tx.outbox = append(tx.outbox, msgs...)
	return nil
}
