package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Purchase records buyer acquiring a work. The purchase, its revenue entries
// and every statistic they affect are committed as one unit: either all of
// them become visible or none do.
func (m *MemLedger) Purchase(ctx context.Context, workID, buyerAgentID int64, purpose string) (schema.PurchaseResult, error) {
	purpose = strings.TrimSpace(purpose)
	var errs []schema.FieldError
	if buyerAgentID <= 0 {
		errs = append(errs, schema.FieldError{Field: "buyer_agent_id", Message: "required"})
	}
	if purpose == "" {
		errs = append(errs, schema.FieldError{Field: "purpose", Message: "required"})
	}
	if len(errs) > 0 {
		err := &schema.ValidationError{Errors: errs}
		m.reject("purchase", err)
		return schema.PurchaseResult{}, err
	}

	m.mu.Lock()
	work, ok := m.works[workID]
	if !ok {
		m.mu.Unlock()
		err := fmt.Errorf("work %d: %w", workID, schema.ErrWorkNotFound)
		m.reject("purchase", err)
		return schema.PurchaseResult{}, err
	}
	if work.CreatorAgentID == buyerAgentID {
		m.mu.Unlock()
		err := fmt.Errorf("agent %d on work %d: %w", buyerAgentID, workID, schema.ErrSelfPurchase)
		m.reject("purchase", err)
		return schema.PurchaseResult{}, err
	}

	var parent *schema.Work
	if work.ParentID != nil {
		parent = m.works[*work.ParentID]
	}

	p := schema.Purchase{
		ID:           m.nextPurchaseID,
		WorkID:       work.ID,
		BuyerAgentID: buyerAgentID,
		Price:        work.Price,
		Purpose:      purpose,
		Timestamp:    m.now(),
	}
	entries := Distribute(*work, parent, p)
	for i := range entries {
		entries[i].ID = m.nextEntryID + int64(i)
	}

	if m.journal != nil {
		if err := m.journal.AppendPurchase(ctx, p, entries); err != nil {
			m.mu.Unlock()
			err = fmt.Errorf("journal purchase %d: %w", p.ID, err)
			m.journalFailed("purchase", err)
			return schema.PurchaseResult{}, err
		}
	}
	m.applyPurchase(p, entries)
	m.mu.Unlock()

	m.log.Info().
		Int64("purchase_id", p.ID).
		Int64("work_id", p.WorkID).
		Int64("buyer", p.BuyerAgentID).
		Str("price", p.Price.String()).
		Int("entries", len(entries)).
		Msg("purchase recorded")
	m.observer.PurchaseRecorded(p, entries)
	return schema.PurchaseResult{Purchase: p, Entries: entries}, nil
}

// PurchasesOfWork returns the purchases of a work, oldest first.
func (m *MemLedger) PurchasesOfWork(ctx context.Context, workID int64) ([]schema.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.works[workID]; !ok {
		return nil, fmt.Errorf("work %d: %w", workID, schema.ErrWorkNotFound)
	}
	return m.collectPurchases(m.purchasesByWork[workID]), nil
}

// PurchasesByBuyer returns the purchases made by an agent, oldest first.
func (m *MemLedger) PurchasesByBuyer(ctx context.Context, agentID int64) ([]schema.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectPurchases(m.purchasesByBuyer[agentID]), nil
}

func (m *MemLedger) collectPurchases(idx []int) []schema.Purchase {
	out := make([]schema.Purchase, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.purchases[i])
	}
	return out
}
