package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// Derive streams an agent buying a parent work and registering a derivative
// of it. The purchase is committed before the derivative is created, and the
// ledger checks the parent's license again when the derivative is registered.
// An agent deriving from its own work skips the purchase.
func (o *Orchestrator) Derive(ctx context.Context, req DeriveRequest) *Flow {
	return o.start(ctx, KindDerive, func(f *Flow) error {
		_, err := o.derive(ctx, f, req)
		return err
	})
}

// Purchase streams one purchase and the revenue it distributes.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) *Flow {
	return o.start(ctx, KindPurchase, func(f *Flow) error {
		if err := req.Validate(); err != nil {
			return err
		}
		buyer, err := o.actor(f, req.BuyerAgentID)
		if err != nil {
			return err
		}
		work, err := o.ledger.GetWork(ctx, req.WorkID)
		if err != nil {
			return err
		}
		_, err = o.purchase(ctx, f, buyer, work, req.Purpose)
		return err
	})
}

// Simulate streams a scripted market scenario as a single flow.
func (o *Orchestrator) Simulate(ctx context.Context, sc Scenario) *Flow {
	return o.start(ctx, KindSimulate, func(f *Flow) error {
		if err := sc.Validate(); err != nil {
			return err
		}

		original, err := o.createOriginal(ctx, f, sc.Original)
		if err != nil {
			return err
		}
		if err := o.sleep(ctx); err != nil {
			return err
		}

		d := sc.Derivative
		d.ParentID = original.ID
		derivative, err := o.derive(ctx, f, d)
		if err != nil {
			return err
		}
		if err := o.sleep(ctx); err != nil {
			return err
		}

		if err := o.buy(ctx, f, sc.DerivativeBuyer, derivative, sc.DerivativeUse); err != nil {
			return err
		}
		if err := o.sleep(ctx); err != nil {
			return err
		}

		track, err := o.createMusic(ctx, f, sc.Music)
		if err != nil {
			return err
		}
		if err := o.sleep(ctx); err != nil {
			return err
		}

		return o.buy(ctx, f, sc.MusicBuyer, track, sc.MusicUse)
	})
}

func (o *Orchestrator) buy(ctx context.Context, f *Flow, buyerID int64, work schema.Work, purpose string) error {
	buyer, err := o.actor(f, buyerID)
	if err != nil {
		return err
	}
	_, err = o.purchase(ctx, f, buyer, work, purpose)
	return err
}

func (o *Orchestrator) derive(ctx context.Context, f *Flow, req DeriveRequest) (schema.Work, error) {
	if err := req.Validate(); err != nil {
		return schema.Work{}, err
	}
	agent, err := o.actor(f, req.CreatorAgentID)
	if err != nil {
		return schema.Work{}, err
	}
	parent, err := o.ledger.GetWork(ctx, req.ParentID)
	if err != nil {
		return schema.Work{}, err
	}
	if !engine.CanDeriveFrom(parent) {
		return schema.Work{}, fmt.Errorf("%q is exclusively licensed: %w", parent.Title, schema.ErrLicenseViolation)
	}

	if parent.CreatorAgentID != agent.ID {
		purpose := "Source material for a derivative: " + req.Transform
		if _, err := o.purchase(ctx, f, agent, parent, purpose); err != nil {
			return schema.Work{}, err
		}
		f.actAs(agent.ID, agent.Name)
	}

	style := req.Style
	if style == "" {
		style = parent.Style
	}
	if err := f.enter(StateGeneratingContent, Event{
		Type:      EventDerivativeStart,
		WorkID:    parent.ID,
		WorkTitle: parent.Title,
		Content:   fmt.Sprintf("Deriving from %q: %s", parent.Title, req.Transform),
	}); err != nil {
		return schema.Work{}, err
	}
	content, err := o.generate(ctx, f, agent, derivativePrompt(agent, parent, style, req.Transform), EventDerivativeDelta)
	if err != nil {
		return schema.Work{}, err
	}

	title, err := o.title(ctx, f, agent, fmt.Sprintf("this derivative of %q", parent.Title), content)
	if err != nil {
		return schema.Work{}, err
	}

	parentID := parent.ID
	work, err := o.ledger.CreateWork(ctx, schema.CreateWorkInput{
		CreatorAgentID: agent.ID,
		Title:          title,
		Description:    fmt.Sprintf("A derivative of %q by %s. %s", parent.Title, agent.Name, req.Transform),
		Content:        content,
		Style:          style,
		License:        schema.LicenseCommercial,
		Tags:           derivativeTags(parent.Tags, style, req.Tags),
		Price:          o.DerivativePrice(parent.Price),
		ParentID:       &parentID,
	})
	if err != nil {
		return schema.Work{}, err
	}

	return work, f.emit(Event{
		Type:      EventDerivativeComplete,
		WorkID:    work.ID,
		WorkTitle: work.Title,
		Content:   content,
		Price:     work.Price,
	})
}

// purchase records buyer purchasing work and reports the payouts.
func (o *Orchestrator) purchase(ctx context.Context, f *Flow, buyer schema.Agent, work schema.Work, purpose string) (schema.PurchaseResult, error) {
	if err := f.enter(StatePurchasingParent, Event{
		Type:      EventPurchaseStart,
		WorkID:    work.ID,
		WorkTitle: work.Title,
		Price:     work.Price,
		Content:   fmt.Sprintf("%s is purchasing %q", buyer.Name, work.Title),
	}); err != nil {
		return schema.PurchaseResult{}, err
	}

	res, err := o.ledger.Purchase(ctx, work.ID, buyer.ID, purpose)
	if err != nil {
		return schema.PurchaseResult{}, err
	}

	details := o.revenueDetails(res.Entries)
	if err := f.enter(StateRevenueDistributing, Event{
		Type:      EventPurchaseComplete,
		WorkID:    work.ID,
		WorkTitle: work.Title,
		Price:     res.Purchase.Price,
		Revenue:   details,
		Content:   fmt.Sprintf("Purchase complete: paid %s to %s", res.Purchase.Price, o.agents.NameOf(work.CreatorAgentID)),
	}); err != nil {
		return res, err
	}
	return res, f.emit(Event{
		Type:      EventRevenueDistributed,
		AgentName: "System",
		WorkID:    work.ID,
		Revenue:   details,
		Content:   "Revenue distributed",
	})
}

func (o *Orchestrator) revenueDetails(entries []schema.RevenueEntry) []RevenueDetail {
	out := make([]RevenueDetail, 0, len(entries))
	for _, e := range entries {
		out = append(out, RevenueDetail{
			RecipientAgentID: e.RecipientAgentID,
			RecipientName:    o.agents.NameOf(e.RecipientAgentID),
			Amount:           e.Amount,
			Kind:             e.Kind,
		})
	}
	return out
}

// derivativeTags merges the parent's tags with the derivative markers and any
// extra tags, keeping first occurrences.
func derivativeTags(parent []string, style schema.Style, extra []string) []string {
	all := slices.Concat(parent, []string{"derivative", string(style)}, extra)
	out := make([]string, 0, len(all))
	for _, t := range all {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
