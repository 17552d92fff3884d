package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// CreateWork validates in, assigns the next work id and registers the work.
// A derivative's parent must already exist and allow derivatives.
func (m *MemLedger) CreateWork(ctx context.Context, in schema.CreateWorkInput) (schema.Work, error) {
	if err := in.Validate(); err != nil {
		m.reject("create_work", err)
		return schema.Work{}, err
	}

	m.mu.Lock()
	if in.ParentID != nil {
		parent, ok := m.works[*in.ParentID]
		if !ok {
			m.mu.Unlock()
			err := fmt.Errorf("work %d: %w", *in.ParentID, schema.ErrInvalidParent)
			m.reject("create_work", err)
			return schema.Work{}, err
		}
		if !CanDeriveFrom(*parent) {
			m.mu.Unlock()
			err := fmt.Errorf("work %d is %s: %w", parent.ID, parent.License, schema.ErrLicenseViolation)
			m.reject("create_work", err)
			return schema.Work{}, err
		}
	}

	w := schema.Work{
		ID:             m.nextWorkID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Content:        in.Content,
		Style:          in.Style,
		CreatorAgentID: in.CreatorAgentID,
		CreatedAt:      m.now(),
		Price:          in.Price,
		License:        in.License,
		Tags:           slices.Clone(in.Tags),
	}
	if w.Tags == nil {
		w.Tags = []string{}
	}
	if in.ParentID != nil {
		pid := *in.ParentID
		w.ParentID = &pid
	}
	if in.Music != nil {
		music := *in.Music
		w.Music = &music
	}

	if m.journal != nil {
		if err := m.journal.AppendWork(ctx, w); err != nil {
			m.mu.Unlock()
			err = fmt.Errorf("journal work %d: %w", w.ID, err)
			m.journalFailed("create_work", err)
			return schema.Work{}, err
		}
	}
	m.applyWork(w.Clone())
	m.mu.Unlock()

	m.log.Info().
		Int64("work_id", w.ID).
		Int64("creator", w.CreatorAgentID).
		Str("style", w.Style.String()).
		Str("price", w.Price.String()).
		Bool("derivative", w.ParentID != nil).
		Msg("work created")
	m.observer.WorkCreated(w)
	return w, nil
}

// GetWork returns a copy of the work with the given id.
func (m *MemLedger) GetWork(ctx context.Context, id int64) (schema.Work, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.works[id]
	if !ok {
		return schema.Work{}, fmt.Errorf("work %d: %w", id, schema.ErrWorkNotFound)
	}
	return w.Clone(), nil
}

// ListWorks returns the works matching f, in creation order unless f asks
// for newest first.
func (m *MemLedger) ListWorks(ctx context.Context, f schema.WorkFilter) ([]schema.Work, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schema.Work, 0)
	visit := func(id int64) bool {
		w := m.works[id]
		if f.Match(*w) {
			out = append(out, w.Clone())
		}
		return f.Limit <= 0 || len(out) < f.Limit
	}

	if f.Sort == schema.SortNewest {
		for i := len(m.order) - 1; i >= 0; i-- {
			if !visit(m.order[i]) {
				break
			}
		}
		return out, nil
	}
	for _, id := range m.order {
		if !visit(id) {
			break
		}
	}
	return out, nil
}

func (m *MemLedger) journalFailed(op string, err error) {
	m.log.Error().Stack().Err(err).Str("op", op).Msg("journal append failed")
	m.observer.OperationRejected(op, err)
}

func (m *MemLedger) reject(op string, err error) {
	m.log.Debug().Err(err).Str("op", op).Msg("operation rejected")
	m.observer.OperationRejected(op, err)
}
