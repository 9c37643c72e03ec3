package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/metrics"
	"github.com/mimiza/smm/internal/store"
)

// Engine ties the resolver and the walker together: one call per plan
// resolves slots per agent and walks every combination.
type Engine struct {
	store    store.Store
	resolver *Resolver
	walker   *Walker
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewEngine creates an engine. metrics may be nil; now defaults to time.Now.
func NewEngine(st store.Store, resolver *Resolver, walker *Walker, m *metrics.Metrics, log *logger.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{store: st, resolver: resolver, walker: walker, metrics: m, log: log, now: now}
}

// WalkPlan resolves and walks one plan for all its agents. Missing or
// disabled plans are skipped with a notice and an empty summary.
func (e *Engine) WalkPlan(ctx context.Context, id string) (Summary, error) {
	started := e.now()
	defer func() { e.metrics.RecordWalkDuration(e.now().Sub(started)) }()

	var total Summary

	plan, agents, ok, err := e.resolver.LoadPlan(ctx, id)
	if err != nil || !ok {
		return total, err
	}

	for _, agent := range agents {
		slots, err := e.resolver.Slots(ctx, plan, agent)
		if err != nil {
			return total, fmt.Errorf("resolve slots for agent %s: %w", agent.ID, err)
		}

		summary, err := e.walker.Walk(ctx, plan, agent, slots)
		total.Created += summary.Created
		total.Skipped += summary.Skipped
		total.NoSlot += summary.NoSlot
		if err != nil {
			return total, fmt.Errorf("walk plan %s for agent %s: %w", plan.ID, agent.ID, err)
		}
	}

	e.log.Debug("plan walked",
		logger.Field{Key: "plan", Value: plan.ID},
		logger.Field{Key: "created", Value: total.Created},
		logger.Field{Key: "skipped", Value: total.Skipped},
		logger.Field{Key: "no_slot", Value: total.NoSlot},
	)
	return total, nil
}

// WalkEnabledPlans walks every enabled plan. A failing plan does not stop
// the others; the first error is returned after all plans ran.
func (e *Engine) WalkEnabledPlans(ctx context.Context) (Summary, error) {
	plans, err := e.store.ListEnabledPlans(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list enabled plans: %w", err)
	}

	var total Summary
	var firstErr error
	for _, plan := range plans {
		summary, err := e.WalkPlan(ctx, plan.ID)
		total.Created += summary.Created
		total.Skipped += summary.Skipped
		total.NoSlot += summary.NoSlot
		if err != nil {
			e.log.Error("plan walk failed", err, logger.Field{Key: "plan", Value: plan.ID})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return total, firstErr
}
