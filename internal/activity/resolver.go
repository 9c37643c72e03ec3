package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/expr"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/notice"
	"github.com/mimiza/smm/internal/store"
)

// Candidate is one resolvable entity for a slot. Exactly one of Mechanism
// and Activity is set, matching the requirement's entity type.
type Candidate struct {
	ID        string
	Mechanism *domain.ContentMechanism
	Activity  *domain.NetworkActivity
}

// Slot is one named requirement dimension with its ordered, deduplicated
// candidate set.
type Slot struct {
	Field      string
	Candidates []Candidate
}

// Resolver turns an activity plan into the slots the walker enumerates.
// Resolution is a pure read projection per (plan, agent); it never writes.
type Resolver struct {
	store  store.Store
	notify *notice.Notifier
	log    *logger.Logger
}

// NewResolver creates a resolver. notify may be nil.
func NewResolver(st store.Store, notify *notice.Notifier, log *logger.Logger) *Resolver {
	if notify == nil {
		notify = notice.New(notice.DefaultLanguage, nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{store: st, notify: notify, log: log}
}

// LoadPlan fetches a plan and its flattened agent set. A missing, unnamed or
// disabled plan produces a notice and ok=false, not an error; the caller
// skips scheduling without side effects. Disabled agents are excluded.
func (r *Resolver) LoadPlan(ctx context.Context, id string) (*domain.ActivityPlan, []*domain.Agent, bool, error) {
	if id == "" {
		r.notify.EmptyName("Network Activity Plan")
		return nil, nil, false, nil
	}

	plan, err := r.store.GetPlan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		r.notify.NotExist("Network Activity Plan", id)
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("load plan %s: %w", id, err)
	}
	if !plan.Enabled {
		r.notify.Disabled("Network Activity Plan", id)
		return nil, nil, false, nil
	}

	seen := make(map[string]bool)
	var agents []*domain.Agent

	for _, agentID := range plan.Agents {
		agent, err := r.store.GetAgent(ctx, agentID)
		if errors.Is(err, store.ErrNotFound) {
			r.notify.NotExist("Agent", agentID)
			continue
		}
		if err != nil {
			return nil, nil, false, fmt.Errorf("load agent %s: %w", agentID, err)
		}
		if !seen[agent.ID] {
			seen[agent.ID] = true
			agents = append(agents, agent)
		}
	}

	if len(plan.AgentGroups) > 0 {
		grouped, err := r.store.AgentsInGroups(ctx, plan.AgentGroups)
		if err != nil {
			return nil, nil, false, fmt.Errorf("load agent groups: %w", err)
		}
		for _, agent := range grouped {
			if !seen[agent.ID] {
				seen[agent.ID] = true
				agents = append(agents, agent)
			}
		}
	}

	enabled := agents[:0]
	for _, agent := range agents {
		if agent.Enabled {
			enabled = append(enabled, agent)
		}
	}

	return plan, enabled, true, nil
}

// Slots resolves the plan's requirement list into ordered slots for one
// agent. Requirements sharing a field name merge their candidates into one
// slot, deduplicated by identity.
func (r *Resolver) Slots(ctx context.Context, plan *domain.ActivityPlan, agent *domain.Agent) ([]Slot, error) {
	var order []string
	byField := make(map[string]*Slot)
	dedupe := make(map[string]map[string]bool)

	for _, req := range KindRequirements(plan.Kind) {
		slot, ok := byField[req.Field]
		if !ok {
			order = append(order, req.Field)
			slot = &Slot{Field: req.Field}
			byField[req.Field] = slot
			dedupe[req.Field] = make(map[string]bool)
		}

		for _, linked := range parentItems(plan, req.Parent) {
			candidates, err := r.resolveLinked(ctx, plan, agent, req, linked)
			if err != nil {
				return nil, err
			}
			for _, c := range candidates {
				if dedupe[req.Field][c.ID] {
					continue
				}
				dedupe[req.Field][c.ID] = true
				slot.Candidates = append(slot.Candidates, c)
			}
		}
	}

	slots := make([]Slot, 0, len(order))
	for _, field := range order {
		slots = append(slots, *byField[field])
	}
	return slots, nil
}

// resolveLinked produces the candidates one parent entry contributes, either
// through the requirement's custom query or its filter template. Disabled
// candidates are excluded; entities without an enabled flag always pass.
func (r *Resolver) resolveLinked(ctx context.Context, plan *domain.ActivityPlan, agent *domain.Agent, req Requirement, linked string) ([]Candidate, error) {
	if req.Query != "" {
		return r.customQuery(ctx, agent, req, linked)
	}

	resolved := expr.Transform(req.Filters, map[string]any{
		"agent":       map[string]any{"name": agent.ID},
		"linked_item": map[string]any{req.Name: linked},
	})

	filters, _ := resolved.(map[string]any)
	id, ok := filters["name"].(string)
	if !ok || id == "" {
		return nil, nil
	}

	return r.fetchCandidate(ctx, req.Entity, id)
}

func (r *Resolver) customQuery(ctx context.Context, agent *domain.Agent, req Requirement, linked string) ([]Candidate, error) {
	switch req.Query {
	case "prior_plan_activities":
		prior, err := r.store.PriorPlanActivities(ctx, linked, agent.ID)
		if err != nil {
			return nil, fmt.Errorf("prior plan activities of %s: %w", linked, err)
		}
		out := make([]Candidate, 0, len(prior))
		for _, a := range prior {
			out = append(out, Candidate{ID: a.ID, Activity: a})
		}
		return out, nil
	default:
		r.log.Warn("unknown requirement query", logger.Field{Key: "query", Value: req.Query})
		return nil, nil
	}
}

func (r *Resolver) fetchCandidate(ctx context.Context, entity, id string) ([]Candidate, error) {
	switch entity {
	case "Content Mechanism":
		m, err := r.store.GetMechanism(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load mechanism %s: %w", id, err)
		}
		if !m.Enabled {
			return nil, nil
		}
		return []Candidate{{ID: m.ID, Mechanism: m}}, nil
	case "Network Activity":
		a, err := r.store.GetActivity(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load activity %s: %w", id, err)
		}
		return []Candidate{{ID: a.ID, Activity: a}}, nil
	default:
		r.log.Warn("unknown requirement entity", logger.Field{Key: "entity", Value: entity})
		return nil, nil
	}
}

// parentItems returns the plan collection a requirement resolves against.
func parentItems(plan *domain.ActivityPlan, parent string) []string {
	switch parent {
	case "mechanisms":
		return plan.Mechanisms
	case "activities":
		return plan.Activities
	case "plans":
		return plan.Plans
	default:
		return nil
	}
}
