package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// CanDeriveFrom reports whether parent may be used as the basis of a new work.
func CanDeriveFrom(parent schema.Work) bool {
	return parent.License.AllowsDerivatives()
}

// AncestryChain returns the ancestry of a work, root first and the work
// itself last.
func (m *MemLedger) AncestryChain(ctx context.Context, id int64) ([]schema.Work, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.works[id]
	if !ok {
		return nil, fmt.Errorf("work %d: %w", id, schema.ErrWorkNotFound)
	}

	chain := []schema.Work{w.Clone()}
	for w.ParentID != nil {
		parent, ok := m.works[*w.ParentID]
		if !ok {
			return nil, fmt.Errorf("work %d references missing parent %d", w.ID, *w.ParentID)
		}
		// parents are always created earlier, so ids strictly decrease
		if parent.ID >= w.ID {
			return nil, fmt.Errorf("work %d has parent %d created later", w.ID, parent.ID)
		}
		chain = append(chain, parent.Clone())
		w = parent
	}
	slices.Reverse(chain)
	return chain, nil
}

// RootOf returns the original work a derivation chain starts from.
func (m *MemLedger) RootOf(ctx context.Context, id int64) (schema.Work, error) {
	chain, err := m.AncestryChain(ctx, id)
	if err != nil {
		return schema.Work{}, err
	}
	return chain[0], nil
}

// ListDerivatives returns the direct children of a work in creation order.
func (m *MemLedger) ListDerivatives(ctx context.Context, id int64) ([]schema.Work, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.works[id]; !ok {
		return nil, fmt.Errorf("work %d: %w", id, schema.ErrWorkNotFound)
	}
	ids := m.children[id]
	out := make([]schema.Work, 0, len(ids))
	for _, cid := range ids {
		out = append(out, m.works[cid].Clone())
	}
	return out, nil
}
