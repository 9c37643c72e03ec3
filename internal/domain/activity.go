// Package domain defines the typed records shared by the scheduling engine,
// the content pipeline and the provider adapters. Entities mirror the
// persistent store one-to-one; all cross-entity references are held as IDs,
// never as embedded documents.
package domain

import "time"

// ActivityKind describes what kind of social action an activity performs.
type ActivityKind string

const (
	KindPostContent  ActivityKind = "Post Content"
	KindPostComment  ActivityKind = "Post Comment"
	KindShareContent ActivityKind = "Share Content"
)

// ActivityStatus is the lifecycle state of a NetworkActivity.
// Pending activities are mutable; Success and Failed are terminal.
type ActivityStatus string

const (
	StatusPending ActivityStatus = "Pending"
	StatusSuccess ActivityStatus = "Success"
	StatusFailed  ActivityStatus = "Failed"
)

// NetworkActivity is one scheduled unit of social action for one agent.
// It is created by the scheduling walker and mutated only by the lifecycle
// orchestrator: first the generated content is attached, then the cast
// outcome. Payload, Response and ResponseStatus are write-once audit fields
// recorded at cast time regardless of outcome.
type NetworkActivity struct {
	ID       string
	Plan     string // owning ActivityPlan, empty for ad-hoc activities
	Agent    string
	Kind     ActivityKind
	Schedule time.Time
	Status   ActivityStatus

	// Links holds the resolved slot bindings this activity was created for,
	// keyed by slot field name ("mechanism", "activity"). Together with Plan
	// and Agent they form the duplicate-prevention identity.
	Links map[string]string

	Content    string // generated Content ID, empty until generation succeeds
	ExternalID string // ID returned by the publishing platform

	Payload        string
	Response       string
	ResponseStatus int

	Created time.Time
}

// Mechanism returns the bound content mechanism ID, if any.
func (a *NetworkActivity) Mechanism() string {
	return a.Links["mechanism"]
}

// Predecessor returns the bound causal predecessor activity ID, if any.
func (a *NetworkActivity) Predecessor() string {
	return a.Links["activity"]
}

// Terminal reports whether the activity reached a final state.
func (a *NetworkActivity) Terminal() bool {
	return a.Status == StatusSuccess || a.Status == StatusFailed
}
