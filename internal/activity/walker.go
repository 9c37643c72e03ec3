package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/metrics"
	"github.com/mimiza/smm/internal/store"
)

// walkHorizonDays bounds the day walk for plans without an end date so a
// pathological spacing chain cannot loop forever.
const walkHorizonDays = 3650

// Outcome classifies what one slot combination produced.
type Outcome int

const (
	// OutcomeCreated: a new Pending activity was created.
	OutcomeCreated Outcome = iota
	// OutcomeSkipped: a matching Pending activity already exists.
	OutcomeSkipped
	// OutcomeNoSlot: no feasible schedule exists within plan constraints.
	OutcomeNoSlot
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoSlot:
		return "no_slot"
	default:
		return "unknown"
	}
}

// Summary aggregates per-combination outcomes over one walk.
type Summary struct {
	Created int
	Skipped int
	NoSlot  int
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNoSlot:
		s.NoSlot++
	}
}

// Walker enumerates the Cartesian product of resolved slots and creates at
// most one new Pending activity per combination. Safe to re-trigger: both
// the pending-count guard and the store's conditional insert make repeated
// runs idempotent.
type Walker struct {
	store   store.Store
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewWalker creates a walker. now defaults to time.Now; tests inject a fixed
// clock. metrics may be nil.
func NewWalker(st store.Store, m *metrics.Metrics, log *logger.Logger, now func() time.Time) *Walker {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Walker{store: st, metrics: m, log: log, now: now}
}

// Walk enumerates every combination of the given slots for one agent and
// schedules each. A plan whose kind has requirements but whose slots
// resolved empty yields no combinations and therefore no activities.
func (w *Walker) Walk(ctx context.Context, plan *domain.ActivityPlan, agent *domain.Agent, slots []Slot) (Summary, error) {
	var summary Summary
	if len(slots) == 0 {
		return summary, nil
	}

	err := w.enumerate(ctx, plan, agent, slots, map[string]Candidate{}, &summary)
	return summary, err
}

// enumerate recurses over the slot list, binding one candidate per slot into
// a fresh copy of the accumulator so sibling branches never share bindings.
func (w *Walker) enumerate(ctx context.Context, plan *domain.ActivityPlan, agent *domain.Agent, slots []Slot, bound map[string]Candidate, summary *Summary) error {
	slot := slots[0]

	for _, candidate := range slot.Candidates {
		combo := make(map[string]Candidate, len(bound)+1)
		for k, v := range bound {
			combo[k] = v
		}
		combo[slot.Field] = candidate

		if len(slots) > 1 {
			if err := w.enumerate(ctx, plan, agent, slots[1:], combo, summary); err != nil {
				return err
			}
			continue
		}

		outcome, err := w.schedule(ctx, plan, agent, combo)
		if err != nil {
			return err
		}
		summary.add(outcome)
		w.metrics.RecordWalkOutcome(outcome.String())
	}
	return nil
}

// schedule finds the earliest feasible slot for one combination and creates
// the Pending activity, or reports why nothing was created.
func (w *Walker) schedule(ctx context.Context, plan *domain.ActivityPlan, agent *domain.Agent, combo map[string]Candidate) (Outcome, error) {
	now := w.now()

	links := make(map[string]string, len(combo))
	for field, candidate := range combo {
		links[field] = candidate.ID
	}

	// One Pending activity per (plan, agent, links) at a time.
	pending, err := w.store.CountActivities(ctx, store.ActivityQuery{
		Plan:         plan.ID,
		Agent:        agent.ID,
		Status:       domain.StatusPending,
		ScheduleFrom: &now,
		Links:        links,
	})
	if err != nil {
		return 0, fmt.Errorf("count pending activities: %w", err)
	}
	if pending >= 1 {
		return OutcomeSkipped, nil
	}

	today := midnight(now)
	base := today
	if plan.StartDate != nil && plan.StartDate.After(base) {
		base = *plan.StartDate
	}

	// The floor no schedule may fall below: the predecessor's schedule when
	// one is bound, otherwise the current instant.
	floor := now
	if pred, ok := combo["activity"]; ok && pred.Activity != nil {
		floor = pred.Activity.Schedule
		if d := midnight(floor); d.After(base) {
			base = d
		}
	}

	startTime, endTime := plan.Window()

	for day := 0; day <= walkHorizonDays; {
		date := base.AddDate(0, 0, day)

		if plan.EndDate != nil && date.After(*plan.EndDate) {
			return OutcomeNoSlot, nil
		}

		// Earliest time of day on this date: the window start, or the
		// current time of day when the date is today and already past it.
		tod := startTime
		if date.Equal(today) && timeOfDay(now) > tod {
			tod = timeOfDay(now)
		}
		schedule := date.Add(tod)
		if schedule.Before(floor) {
			schedule = floor
		}

		// Spacing against the latest activity sharing plan, agent and links
		// with a schedule at or before this day's window end.
		until := date.Add(endTime)
		latest, err := w.store.ListActivities(ctx, store.ActivityQuery{
			Plan:          plan.ID,
			Agent:         agent.ID,
			ScheduleUntil: &until,
			Links:         links,
			Order:         store.OrderDesc,
			Limit:         1,
		})
		if err != nil {
			return 0, fmt.Errorf("query latest activity: %w", err)
		}
		if len(latest) > 0 {
			if next := latest[0].Schedule.Add(plan.Duration); next.After(schedule) {
				schedule = next
			}
		}

		scheduleDate := midnight(schedule)

		if plan.EndDate != nil && scheduleDate.After(*plan.EndDate) {
			return OutcomeNoSlot, nil
		}
		// Spacing pushed the slot to a later day: jump straight there. The
		// jump counts calendar days, so a DST-shortened day still advances.
		if scheduleDate.After(date) {
			day += daysBetween(date, scheduleDate)
			continue
		}
		if timeOfDay(schedule) > endTime {
			day++
			continue
		}

		activity := &domain.NetworkActivity{
			ID:       store.NewID(),
			Plan:     plan.ID,
			Agent:    agent.ID,
			Kind:     plan.Kind,
			Schedule: schedule,
			Status:   domain.StatusPending,
			Links:    links,
			Created:  now,
		}
		if err := w.store.CreateActivity(ctx, activity); err != nil {
			// A concurrent walk created the same combination first.
			if errors.Is(err, store.ErrDuplicatePending) {
				return OutcomeSkipped, nil
			}
			return 0, fmt.Errorf("create activity: %w", err)
		}

		w.metrics.RecordActivityCreated(string(plan.Kind))
		w.log.Info("activity created",
			logger.Field{Key: "activity", Value: activity.ID},
			logger.Field{Key: "plan", Value: plan.ID},
			logger.Field{Key: "agent", Value: agent.ID},
			logger.Field{Key: "schedule", Value: schedule},
		)
		return OutcomeCreated, nil
	}

	w.log.Warn("walk horizon exhausted",
		logger.Field{Key: "plan", Value: plan.ID},
		logger.Field{Key: "agent", Value: agent.ID},
	)
	return OutcomeNoSlot, nil
}

// midnight truncates t to the start of its day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// timeOfDay returns t's offset from midnight.
func timeOfDay(t time.Time) time.Duration {
	return t.Sub(midnight(t))
}

// daysBetween returns the calendar-day difference between two midnights.
// The dates are re-anchored in UTC so transition days with 23 or 25
// wall-clock hours still count as whole days.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}
