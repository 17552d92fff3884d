package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// MemLedger is the thread-safe in-memory ledger. All writes go through a
// single write lock, which also guards id assignment.
type MemLedger struct {
	mu sync.RWMutex

	works    map[int64]*schema.Work
	order    []int64 // work ids in creation order
	children map[int64][]int64

	purchases        []schema.Purchase
	purchasesByWork  map[int64][]int
	purchasesByBuyer map[int64][]int

	entries        []schema.RevenueEntry
	entriesByAgent map[int64][]int
	agentStats     map[int64]*schema.AgentStats
	volume         schema.Amount
	derivatives    int64

	nextWorkID     int64
	nextPurchaseID int64
	nextEntryID    int64

	journal  Journal
	observer Observer
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures a MemLedger.
type Option func(*MemLedger)

// WithJournal makes every write durable in j before it becomes visible.
func WithJournal(j Journal) Option {
	return func(m *MemLedger) { m.journal = j }
}

// WithObserver registers an observer for committed changes.
func WithObserver(o Observer) Option {
	return func(m *MemLedger) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the ledger's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *MemLedger) { m.log = l.With().Str("component", "ledger").Logger() }
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *MemLedger) { m.now = now }
}

// NewMemLedger returns an empty ledger.
func NewMemLedger(opts ...Option) *MemLedger {
	m := &MemLedger{
		works:            make(map[int64]*schema.Work),
		children:         make(map[int64][]int64),
		purchasesByWork:  make(map[int64][]int),
		purchasesByBuyer: make(map[int64][]int),
		entriesByAgent:   make(map[int64][]int),
		agentStats:       make(map[int64]*schema.AgentStats),
		nextWorkID:       1,
		nextPurchaseID:   1,
		nextEntryID:      1,
		observer:         nopObserver{},
		log:              zerolog.Nop(),
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open builds a ledger from the records in j and keeps appending to it.
func Open(ctx context.Context, j Journal, opts ...Option) (*MemLedger, error) {
	snap, err := j.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	m := NewMemLedger(append(opts, WithJournal(j))...)
	if err := m.restore(snap); err != nil {
		return nil, err
	}
	m.log.Info().
		Int("works", len(snap.Works)).
		Int("purchases", len(snap.Purchases)).
		Msg("ledger restored")
	return m, nil
}

// restore replays a snapshot through the same apply paths as live writes so
// every derived statistic is rebuilt from the records.
func (m *MemLedger) restore(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range snap.Works {
		if w.ID < m.nextWorkID {
			return fmt.Errorf("restore: work %d out of order", w.ID)
		}
		if w.ParentID != nil {
			if _, ok := m.works[*w.ParentID]; !ok {
				return fmt.Errorf("restore: work %d: %w", w.ID, schema.ErrInvalidParent)
			}
		}
		w.PurchaseCount, w.TotalRevenue, w.DerivativeCount = 0, 0, 0
		m.applyWork(w.Clone())
	}

	byPurchase := make(map[int64][]schema.RevenueEntry)
	for _, e := range snap.Entries {
		byPurchase[e.PurchaseID] = append(byPurchase[e.PurchaseID], e)
	}
	for _, p := range snap.Purchases {
		if p.ID < m.nextPurchaseID {
			return fmt.Errorf("restore: purchase %d out of order", p.ID)
		}
		if _, ok := m.works[p.WorkID]; !ok {
			return fmt.Errorf("restore: purchase %d: %w", p.ID, schema.ErrWorkNotFound)
		}
		m.applyPurchase(p, byPurchase[p.ID])
	}
	return nil
}

// Len returns the number of works in the ledger.
func (m *MemLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Snapshot returns a copy of every record in creation order.
func (m *MemLedger) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Works:     make([]schema.Work, 0, len(m.order)),
		Purchases: append([]schema.Purchase(nil), m.purchases...),
		Entries:   append([]schema.RevenueEntry(nil), m.entries...),
	}
	for _, id := range m.order {
		snap.Works = append(snap.Works, m.works[id].Clone())
	}
	return snap, nil
}

// Close closes the underlying journal, if any.
func (m *MemLedger) Close() error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Close()
}

// applyWork inserts w and updates the parent's derivative count.
// It MUST be called while holding m.mu.Lock.
func (m *MemLedger) applyWork(w schema.Work) {
	stored := w
	m.works[w.ID] = &stored
	m.order = append(m.order, w.ID)
	if w.ParentID != nil {
		pid := *w.ParentID
		m.children[pid] = append(m.children[pid], w.ID)
		m.works[pid].DerivativeCount++
		m.derivatives++
	}
	m.nextWorkID = w.ID + 1
}

// applyPurchase records p and its entries and updates all statistics.
// It MUST be called while holding m.mu.Lock.
func (m *MemLedger) applyPurchase(p schema.Purchase, entries []schema.RevenueEntry) {
	idx := len(m.purchases)
	m.purchases = append(m.purchases, p)
	m.purchasesByWork[p.WorkID] = append(m.purchasesByWork[p.WorkID], idx)
	m.purchasesByBuyer[p.BuyerAgentID] = append(m.purchasesByBuyer[p.BuyerAgentID], idx)
	m.recordPurchaseEffects(p.WorkID, p.Price)

	for _, e := range entries {
		eidx := len(m.entries)
		m.entries = append(m.entries, e)
		m.entriesByAgent[e.RecipientAgentID] = append(m.entriesByAgent[e.RecipientAgentID], eidx)

		st := m.agentStats[e.RecipientAgentID]
		if st == nil {
			st = &schema.AgentStats{AgentID: e.RecipientAgentID}
			m.agentStats[e.RecipientAgentID] = st
		}
		st.TotalEarned += e.Amount
		switch e.Kind {
		case schema.RevenueSale:
			st.SalesCount++
		case schema.RevenueDerivativeRoyalty:
			st.RoyaltiesCount++
			st.RoyaltiesEarned += e.Amount
		}
		m.volume += e.Amount
		if e.ID >= m.nextEntryID {
			m.nextEntryID = e.ID + 1
		}
	}
	m.nextPurchaseID = p.ID + 1
}

// recordPurchaseEffects bumps the per-work purchase statistics.
// It MUST be called while holding m.mu.Lock.
func (m *MemLedger) recordPurchaseEffects(workID int64, price schema.Amount) {
	w := m.works[workID]
	w.PurchaseCount++
	w.TotalRevenue += price
}
