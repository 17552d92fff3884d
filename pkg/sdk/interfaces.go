package sdk

import (
	"context"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// --- Functional Interfaces (Interface Segregation) ---

// WorkReader reads works from the ledger.
type WorkReader interface {
	GetWork(ctx context.Context, id int64) (schema.Work, error)
	ListWorks(ctx context.Context, f schema.WorkFilter) ([]schema.Work, error)
}

// WorkWriter registers new works.
type WorkWriter interface {
	CreateWork(ctx context.Context, in schema.CreateWorkInput) (schema.Work, error)
}

// LineageReader walks derivation relationships.
type LineageReader interface {
	AncestryChain(ctx context.Context, id int64) ([]schema.Work, error)
	RootOf(ctx context.Context, id int64) (schema.Work, error)
	ListDerivatives(ctx context.Context, id int64) ([]schema.Work, error)
}

// Purchaser records purchases and the revenue they produce.
type Purchaser interface {
	Purchase(ctx context.Context, workID, buyerAgentID int64, purpose string) (schema.PurchaseResult, error)
}

// PurchaseReader lists recorded purchases.
type PurchaseReader interface {
	PurchasesOfWork(ctx context.Context, workID int64) ([]schema.Purchase, error)
	PurchasesByBuyer(ctx context.Context, agentID int64) ([]schema.Purchase, error)
}

// RevenueReader reports earnings.
type RevenueReader interface {
	RevenueOf(ctx context.Context, agentID int64) ([]schema.RevenueEntry, error)
	StatsOf(ctx context.Context, agentID int64) (schema.AgentStats, error)
	MarketplaceStats(ctx context.Context) (schema.MarketplaceStats, error)
}

// --- Composite Interfaces ---

// Ledger is the full creative-work ledger. Both the embedded engine and the
// remote client implement it.
type Ledger interface {
	WorkReader
	WorkWriter
	LineageReader
	Purchaser
	PurchaseReader
	RevenueReader

	Close() error
}

// PurchaseRequest is the wire form of a purchase.
type PurchaseRequest struct {
	WorkID       int64  `json:"work_id"`
	BuyerAgentID int64  `json:"buyer_agent_id"`
	Purpose      string `json:"purpose"`
}
