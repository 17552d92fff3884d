package engine

import (
	"context"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Distribute splits the price of p between the creators entitled to it.
// An original pays its creator in full. A derivative pays the immediate
// parent's creator a 30% royalty, truncated to minor units, and its own
// creator the remainder, so the shares always sum to the price.
// Entry ids are left zero for the ledger to assign.
func Distribute(work schema.Work, parent *schema.Work, p schema.Purchase) []schema.RevenueEntry {
	entry := func(agent int64, amt schema.Amount, kind schema.RevenueKind) schema.RevenueEntry {
		return schema.RevenueEntry{
			RecipientAgentID: agent,
			WorkID:           work.ID,
			Amount:           amt,
			Kind:             kind,
			PurchaseID:       p.ID,
			Timestamp:        p.Timestamp,
		}
	}

	if parent == nil {
		return []schema.RevenueEntry{entry(work.CreatorAgentID, p.Price, schema.RevenueSale)}
	}
	royalty := p.Price.Percent(RoyaltySharePercent)
	return []schema.RevenueEntry{
		entry(work.CreatorAgentID, p.Price-royalty, schema.RevenueSale),
		entry(parent.CreatorAgentID, royalty, schema.RevenueDerivativeRoyalty),
	}
}

// RevenueOf returns every revenue entry paid to an agent, oldest first.
func (m *MemLedger) RevenueOf(ctx context.Context, agentID int64) ([]schema.RevenueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.entriesByAgent[agentID]
	out := make([]schema.RevenueEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// StatsOf summarises an agent's earnings. Agents with no revenue get zeros.
func (m *MemLedger) StatsOf(ctx context.Context, agentID int64) (schema.AgentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.agentStats[agentID]; ok {
		return *st, nil
	}
	return schema.AgentStats{AgentID: agentID}, nil
}

// MarketplaceStats summarises the whole ledger.
func (m *MemLedger) MarketplaceStats(ctx context.Context) (schema.MarketplaceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	earnings := make(map[int64]schema.Amount, len(m.agentStats))
	for id, st := range m.agentStats {
		earnings[id] = st.TotalEarned
	}
	return schema.MarketplaceStats{
		TotalWorks:       int64(len(m.order)),
		TotalPurchases:   int64(len(m.purchases)),
		TotalVolume:      m.volume,
		TotalDerivatives: m.derivatives,
		PerAgentEarnings: earnings,
	}, nil
}
