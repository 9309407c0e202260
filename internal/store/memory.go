package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/punchamoorthee/decoledger/internal/domain"
)

// MemoryStore implements Store in memory. Transactions are serialized by a
// single mutex and buffer their writes until fn succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	kv      map[string][]byte
	events  map[domain.AccountID][]domain.Event
	payouts map[string]domain.Payout
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:      make(map[string][]byte),
		events:  make(map[domain.AccountID][]domain.Event),
		payouts: make(map[string]domain.Payout),
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:       s,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
		failed:  make(map[string]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for k := range tx.deletes {
		delete(s.kv, k)
	}
	for k, v := range tx.writes {
		s.kv[k] = v
	}
	for _, ev := range tx.events {
		s.events[ev.Ledger] = append(s.events[ev.Ledger], ev)
	}
	for _, p := range tx.payouts {
		if _, ok := s.payouts[p.ID]; ok {
			continue
		}
		s.payouts[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	for id := range tx.failed {
		p := s.payouts[id]
		p.Status = domain.PayoutFailed
		s.payouts[id] = p
	}
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, ledger domain.AccountID, after uint64, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = normalizeLimit(limit)
	all := s.events[ledger]
	// Seq is 1-based and dense, so the slice index is Seq-1.
	if after >= uint64(len(all)) {
		return []domain.Event{}, nil
	}
	end := min(int(after)+limit, len(all))
	out := make([]domain.Event, end-int(after))
	copy(out, all[after:end])
	return out, nil
}

func (s *MemoryStore) PendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = normalizeLimit(limit)
	var out []domain.Payout
	for _, id := range s.order {
		if p := s.payouts[id]; p.Status == domain.PayoutPending {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkPayoutDone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = domain.PayoutDone
	s.payouts[id] = p
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	s       *MemoryStore
	writes  map[string][]byte
	deletes map[string]struct{}
	events  []domain.Event
	payouts []domain.Payout
	failed  map[string]struct{}
}

func (tx *memoryTx) Get(ctx context.Context, key string) ([]byte, error) {
	if _, ok := tx.deletes[key]; ok {
		return nil, ErrNotFound
	}
	if v, ok := tx.writes[key]; ok {
		return clone(v), nil
	}
	if v, ok := tx.s.kv[key]; ok {
		return clone(v), nil
	}
	return nil, ErrNotFound
}

func (tx *memoryTx) Put(ctx context.Context, key string, value []byte) error {
	delete(tx.deletes, key)
	tx.writes[key] = clone(value)
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, key string) error {
	delete(tx.writes, key)
	tx.deletes[key] = struct{}{}
	return nil
}

func (tx *memoryTx) Scan(ctx context.Context, prefix string) ([]KV, error) {
	merged := make(map[string][]byte)
	for k, v := range tx.s.kv {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k := range tx.deletes {
		delete(merged, k)
	}
	for k, v := range tx.writes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}

	out := make([]KV, 0, len(merged))
	for k, v := range merged {
		out = append(out, KV{Key: k, Value: clone(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (tx *memoryTx) AppendEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	seq := uint64(len(tx.s.events[ev.Ledger]))
	for _, pending := range tx.events {
		if pending.Ledger == ev.Ledger {
			seq++
		}
	}
	ev.Seq = seq + 1
	tx.events = append(tx.events, ev)
	return ev, nil
}

func (tx *memoryTx) SchedulePayout(ctx context.Context, p domain.Payout) error {
	if _, ok := tx.lookupPayout(p.ID); ok {
		return nil
	}
	p.Status = domain.PayoutPending
	tx.payouts = append(tx.payouts, p)
	return nil
}

func (tx *memoryTx) FailPayout(ctx context.Context, id string) (domain.Payout, error) {
	p, ok := tx.lookupPayout(id)
	if !ok || p.Status != domain.PayoutPending {
		return domain.Payout{}, ErrNotFound
	}
	if _, done := tx.failed[id]; done {
		return domain.Payout{}, ErrNotFound
	}
	tx.failed[id] = struct{}{}
	p.Status = domain.PayoutFailed
	return p, nil
}

// lookupPayout sees payouts scheduled earlier in this transaction.
func (tx *memoryTx) lookupPayout(id string) (domain.Payout, bool) {
	for _, p := range tx.payouts {
		if p.ID == id {
			return p, true
		}
	}
	p, ok := tx.s.payouts[id]
	return p, ok
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
