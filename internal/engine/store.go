// Package engine implements the creative-work ledger: the work store, lineage
// tracking, revenue distribution and the purchase ledger.
package engine

import (
	"context"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Revenue split between a derivative's creator and the creator of its
// immediate parent, in percent.
const (
	CreatorSharePercent = 70
	RoyaltySharePercent = 30
)

// Snapshot is the full record set a journal replays into a ledger.
// Derived statistics are never part of a snapshot; they are recomputed.
type Snapshot struct {
	Works     []schema.Work         `json:"works"`
	Purchases []schema.Purchase     `json:"purchases"`
	Entries   []schema.RevenueEntry `json:"revenue_entries"`
}

// Journal is the durable append-only log behind a MemLedger.
// A purchase and its revenue entries must be appended as one unit.
type Journal interface {
	AppendWork(ctx context.Context, w schema.Work) error
	AppendPurchase(ctx context.Context, p schema.Purchase, entries []schema.RevenueEntry) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}

// Observer is notified after ledger state changes have been committed.
type Observer interface {
	WorkCreated(w schema.Work)
	PurchaseRecorded(p schema.Purchase, entries []schema.RevenueEntry)
	OperationRejected(op string, err error)
}

type nopObserver struct{}

func (nopObserver) WorkCreated(schema.Work)                                {}
func (nopObserver) PurchaseRecorded(schema.Purchase, []schema.RevenueEntry) {}
func (nopObserver) OperationRejected(string, error)                        {}
