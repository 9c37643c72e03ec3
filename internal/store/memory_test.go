package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiza/smm/internal/domain"
)

func TestMemoryPlanRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	m.PutPlan(&domain.ActivityPlan{ID: "P1", Enabled: true, Kind: domain.KindPostContent})
	m.PutPlan(&domain.ActivityPlan{ID: "P2", Enabled: false, Kind: domain.KindPostContent})

	p, err := m.GetPlan(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindPostContent, p.Kind)

	enabled, err := m.ListEnabledPlans(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "P1", enabled[0].ID)
}

func TestMemoryAgentsInGroupsFlattensUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.PutAgent(&domain.Agent{ID: "A1", Provider: domain.ProviderTelegramBot})
	m.PutAgent(&domain.Agent{ID: "A2", Provider: domain.ProviderX})
	m.PutGroup(&domain.AgentGroup{ID: "G1", Agents: []string{"A1", "A2"}})
	m.PutGroup(&domain.AgentGroup{ID: "G2", Agents: []string{"A2"}})

	agents, err := m.AgentsInGroups(ctx, []string{"G1", "G2", "absent"})
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestMemoryDuplicatePendingRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	links := map[string]string{"mechanism": "M1"}
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	first := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: at, Links: links,
	}
	require.NoError(t, m.CreateActivity(ctx, first))

	dup := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: at, Links: links,
	}
	assert.ErrorIs(t, m.CreateActivity(ctx, dup), ErrDuplicatePending)

	// The same combination may queue again at a later slot while the
	// first is still Pending.
	later := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: at.Add(time.Hour), Links: links,
	}
	assert.NoError(t, m.CreateActivity(ctx, later))

	// A different binding is a different identity.
	other := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status:   domain.StatusPending,
		Schedule: at, Links: map[string]string{"mechanism": "M2"},
	}
	assert.NoError(t, m.CreateActivity(ctx, other))

	// Terminal activities never conflict.
	done := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusSuccess, Schedule: at, Links: links,
	}
	assert.NoError(t, m.CreateActivity(ctx, done))
}

func TestMemoryListActivitiesOrderAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.CreateActivity(ctx, &domain.NetworkActivity{
			Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
			Status:   domain.StatusPending,
			Schedule: base.Add(time.Duration(i) * time.Hour),
			Links:    map[string]string{"mechanism": "M", "n": string(rune('a' + i))},
		}))
	}

	desc, err := m.ListActivities(ctx, ActivityQuery{
		Plan: "P1", Order: OrderDesc, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, desc, 1)
	assert.Equal(t, base.Add(4*time.Hour), desc[0].Schedule)

	until := base.Add(90 * time.Minute)
	bounded, err := m.ListActivities(ctx, ActivityQuery{
		Plan: "P1", ScheduleUntil: &until,
	})
	require.NoError(t, err)
	assert.Len(t, bounded, 2)
}

func TestMatchActivityLinkConditions(t *testing.T) {
	a := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Status: domain.StatusPending,
		Links: map[string]string{"mechanism": "M1", "activity": "ACT9"},
	}

	assert.True(t, MatchActivity(a, ActivityQuery{
		Links: map[string]string{"mechanism": "M1"},
	}))
	assert.True(t, MatchActivity(a, ActivityQuery{
		Links: map[string]string{"mechanism": "M1", "activity": "ACT9"},
	}))
	assert.False(t, MatchActivity(a, ActivityQuery{
		Links: map[string]string{"mechanism": "M2"},
	}))
	assert.False(t, MatchActivity(a, ActivityQuery{
		Links: map[string]string{"other": "X"},
	}))
}

func TestMemoryPriorPlanActivities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	// Successful posts by another agent under the plan.
	post1 := &domain.NetworkActivity{
		ID: "POST1", Plan: "P1", Agent: "other", Kind: domain.KindPostContent,
		Status: domain.StatusSuccess, Schedule: now,
	}
	post2 := &domain.NetworkActivity{
		ID: "POST2", Plan: "P1", Agent: "other", Kind: domain.KindPostContent,
		Status: domain.StatusSuccess, Schedule: now.Add(time.Hour),
	}
	// Still pending, must not be offered.
	post3 := &domain.NetworkActivity{
		ID: "POST3", Plan: "P1", Agent: "other", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: now,
	}
	// This agent's own post, must not be offered.
	own := &domain.NetworkActivity{
		ID: "OWN", Plan: "P1", Agent: "me", Kind: domain.KindPostContent,
		Status: domain.StatusSuccess, Schedule: now,
	}
	require.NoError(t, m.CreateActivity(ctx, post1))
	require.NoError(t, m.CreateActivity(ctx, post2))
	require.NoError(t, m.CreateActivity(ctx, post3))
	require.NoError(t, m.CreateActivity(ctx, own))

	// The agent already commented on POST1.
	require.NoError(t, m.CreateActivity(ctx, &domain.NetworkActivity{
		ID: "C1", Plan: "P1", Agent: "me", Kind: domain.KindPostComment,
		Status: domain.StatusSuccess, Schedule: now,
		Links: map[string]string{"activity": "POST1"},
	}))

	candidates, err := m.PriorPlanActivities(ctx, "P1", "me")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "POST2", candidates[0].ID)
}

func TestLinksHashCanonical(t *testing.T) {
	a := LinksHash(map[string]string{"mechanism": "M1", "activity": "X"})
	b := LinksHash(map[string]string{"activity": "X", "mechanism": "M1"})
	c := LinksHash(map[string]string{"mechanism": "M2", "activity": "X"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEmpty(t, LinksHash(nil))
}
