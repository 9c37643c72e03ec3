package domain

import "time"

// EndOfDay is the default daily window end when a plan does not set one.
const EndOfDay = 23*time.Hour + 59*time.Minute + 59*time.Second

// ActivityPlan is a recurring rule describing when and for whom network
// activities are generated. Plans are created and edited by users and are
// read-only to the scheduler; the Enabled flag gates all processing.
type ActivityPlan struct {
	ID      string
	Enabled bool
	Kind    ActivityKind

	// StartDate and EndDate bound the calendar range, inclusive on both
	// ends. Nil means unbounded. Only the date part is meaningful; the
	// store normalizes both to midnight.
	StartDate *time.Time
	EndDate   *time.Time

	// StartTime and EndTime bound the daily window as offsets from
	// midnight. Zero StartTime and zero EndTime mean the full day
	// (00:00:00 .. 23:59:59).
	StartTime time.Duration
	EndTime   time.Duration

	// Duration is the minimum spacing between consecutive activities
	// scheduled under the same plan, agent and slot bindings.
	Duration time.Duration

	// Agent assignment, directly and via groups. Resolution flattens both
	// into one unique set.
	Agents      []string
	AgentGroups []string

	// Linked candidate collections enumerated by the walker, per kind.
	Mechanisms []string // Content Mechanism IDs
	Activities []string // predecessor NetworkActivity IDs
	Plans      []string // cross-plan dependency: respond to activities of these plans

	Owner string
}

// Window returns the effective daily time window of the plan.
func (p *ActivityPlan) Window() (start, end time.Duration) {
	start = p.StartTime
	end = p.EndTime
	if end == 0 {
		end = EndOfDay
	}
	return start, end
}
