// Package store defines the persistence boundary of the engine and its two
// implementations: an in-memory store used by tests and a sqlite store used
// in production. The scheduling walker and the lifecycle orchestrator are the
// only writers of network activities; every other component reads.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mimiza/smm/internal/domain"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePending is returned by CreateActivity when another Pending
// activity with the same (plan, agent, links) identity already exists. The
// walker treats this as an idempotent no-op, never as a fault.
var ErrDuplicatePending = errors.New("duplicate pending activity")

// Order selects result ordering by schedule.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// ActivityQuery is the typed rendering of the (field, operator, value)
// filter triples the engine issues against network activities. Zero-valued
// fields are unconstrained.
type ActivityQuery struct {
	Plan   string
	Agent  string
	Status domain.ActivityStatus
	Kind   domain.ActivityKind

	ScheduleFrom  *time.Time // schedule >= From
	ScheduleUntil *time.Time // schedule <= Until

	// HasContent filters on presence of an attached Content reference.
	HasContent *bool

	// Links constrains resolved slot bindings by equality, one condition
	// per slot field name.
	Links map[string]string

	Order Order
	Limit int
}

// FeedQuery selects feeds of one provider, newest first by default.
type FeedQuery struct {
	Provider string
	Order    Order
	Limit    int
}

// Store is the persistence capability consumed by the engine. All methods
// are safe for use from concurrent trigger runs.
type Store interface {
	GetPlan(ctx context.Context, id string) (*domain.ActivityPlan, error)
	ListEnabledPlans(ctx context.Context) ([]*domain.ActivityPlan, error)

	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context, provider domain.Provider) ([]*domain.Agent, error)
	AgentsInGroups(ctx context.Context, groups []string) ([]*domain.Agent, error)
	UpdateAgent(ctx context.Context, agent *domain.Agent) error

	GetMechanism(ctx context.Context, id string) (*domain.ContentMechanism, error)
	GetPrompt(ctx context.Context, id string) (*domain.Prompt, error)

	GetContent(ctx context.Context, id string) (*domain.Content, error)
	CreateContent(ctx context.Context, content *domain.Content) error

	GetActivity(ctx context.Context, id string) (*domain.NetworkActivity, error)
	CountActivities(ctx context.Context, q ActivityQuery) (int, error)
	ListActivities(ctx context.Context, q ActivityQuery) ([]*domain.NetworkActivity, error)
	CreateActivity(ctx context.Context, activity *domain.NetworkActivity) error
	UpdateActivity(ctx context.Context, activity *domain.NetworkActivity) error

	// PriorPlanActivities returns successful Post Content activities of the
	// given plan created by agents other than agent, excluding those the
	// agent has already commented on or shared.
	PriorPlanActivities(ctx context.Context, plan, agent string) ([]*domain.NetworkActivity, error)

	ListFeedProviders(ctx context.Context) ([]*domain.FeedProvider, error)
	GetFeedProvider(ctx context.Context, id string) (*domain.FeedProvider, error)
	UpdateFeedProvider(ctx context.Context, provider *domain.FeedProvider) error

	FeedExistsByURL(ctx context.Context, url string) (bool, error)
	CreateFeed(ctx context.Context, feed *domain.Feed) error
	ListFeeds(ctx context.Context, q FeedQuery) ([]*domain.Feed, error)
}

// NewID produces a new entity identifier.
func NewID() string {
	return uuid.NewString()
}

// LinksHash computes the canonical digest of a slot-binding set. Together
// with plan and agent it forms the uniqueness identity of a Pending activity.
func LinksHash(links map[string]string) string {
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(links[k])
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// MatchActivity reports whether an activity satisfies a query. Shared by the
// memory store and by tests asserting on query semantics.
func MatchActivity(a *domain.NetworkActivity, q ActivityQuery) bool {
	if q.Plan != "" && a.Plan != q.Plan {
		return false
	}
	if q.Agent != "" && a.Agent != q.Agent {
		return false
	}
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if q.Kind != "" && a.Kind != q.Kind {
		return false
	}
	if q.ScheduleFrom != nil && a.Schedule.Before(*q.ScheduleFrom) {
		return false
	}
	if q.ScheduleUntil != nil && a.Schedule.After(*q.ScheduleUntil) {
		return false
	}
	if q.HasContent != nil {
		if *q.HasContent != (a.Content != "") {
			return false
		}
	}
	for field, want := range q.Links {
		if a.Links[field] != want {
			return false
		}
	}
	return true
}
