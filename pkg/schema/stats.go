package schema

// AgentStats summarises what one agent has earned.
type AgentStats struct {
	AgentID         int64  `json:"agent_id"`
	TotalEarned     Amount `json:"total_earned"`
	SalesCount      int64  `json:"sales_count"`
	RoyaltiesCount  int64  `json:"royalties_count"`
	RoyaltiesEarned Amount `json:"royalties_earned"`
}

// MarketplaceStats summarises the whole ledger. TotalVolume is the sum of all
// revenue entries, which always equals the sum of all purchase prices.
type MarketplaceStats struct {
	TotalWorks       int64            `json:"total_works"`
	TotalPurchases   int64            `json:"total_purchases"`
	TotalVolume      Amount           `json:"total_volume"`
	TotalDerivatives int64            `json:"total_derivatives"`
	PerAgentEarnings map[int64]Amount `json:"per_agent_earnings"`
}
