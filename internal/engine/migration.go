package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Migrate copies every record from src into dst, e.g. from the file journal
// into a SQL journal. dst is expected to be empty.
func Migrate(ctx context.Context, src, dst Journal) error {
	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load source journal: %w", err)
	}

	for _, w := range snap.Works {
		if err := dst.AppendWork(ctx, w); err != nil {
			return fmt.Errorf("failed to copy work %d: %w", w.ID, err)
		}
	}

	byPurchase := make(map[int64][]schema.RevenueEntry)
	for _, e := range snap.Entries {
		byPurchase[e.PurchaseID] = append(byPurchase[e.PurchaseID], e)
	}
	for _, p := range snap.Purchases {
		if err := dst.AppendPurchase(ctx, p, byPurchase[p.ID]); err != nil {
			return fmt.Errorf("failed to copy purchase %d: %w", p.ID, err)
		}
	}
	return nil
}
