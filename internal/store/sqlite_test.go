package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiza/smm/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "smm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLitePlanRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.Local)
	plan := &domain.ActivityPlan{
		ID:         "P1",
		Enabled:    true,
		Kind:       domain.KindPostComment,
		StartDate:  &start,
		EndDate:    &end,
		StartTime:  9 * time.Hour,
		EndTime:    17 * time.Hour,
		Duration:   time.Hour,
		Agents:     []string{"A1"},
		Mechanisms: []string{"M1", "M2"},
		Plans:      []string{"P0"},
		Owner:      "user@example.com",
	}
	require.NoError(t, s.PutPlan(ctx, plan))

	got, err := s.GetPlan(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, plan.Kind, got.Kind)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, "2024-01-01", got.StartDate.Format("2006-01-02"))
	assert.Equal(t, 9*time.Hour, got.StartTime)
	assert.Equal(t, time.Hour, got.Duration)
	assert.Equal(t, []string{"M1", "M2"}, got.Mechanisms)

	_, err = s.GetPlan(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteActivityLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	schedule := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	activity := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: schedule,
		Links: map[string]string{"mechanism": "M1"},
	}
	require.NoError(t, s.CreateActivity(ctx, activity))
	require.NotEmpty(t, activity.ID)

	// Unique partial index rejects the same pending identity.
	dup := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: schedule,
		Links: map[string]string{"mechanism": "M1"},
	}
	assert.ErrorIs(t, s.CreateActivity(ctx, dup), ErrDuplicatePending)

	// The same combination at a later slot is a distinct activity.
	later := &domain.NetworkActivity{
		Plan: "P1", Agent: "A1", Kind: domain.KindPostContent,
		Status: domain.StatusPending, Schedule: schedule.Add(time.Hour),
		Links: map[string]string{"mechanism": "M1"},
	}
	require.NoError(t, s.CreateActivity(ctx, later))

	n, err := s.CountActivities(ctx, ActivityQuery{
		Plan: "P1", Agent: "A1", Status: domain.StatusPending,
		Links: map[string]string{"mechanism": "M1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	activity.Status = domain.StatusSuccess
	activity.ExternalID = "42"
	activity.Response = `{"ok":true}`
	activity.ResponseStatus = 200
	require.NoError(t, s.UpdateActivity(ctx, activity))

	got, err := s.GetActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)
	assert.Equal(t, "42", got.ExternalID)
	assert.Equal(t, "M1", got.Mechanism())

	// Identity freed once terminal.
	assert.NoError(t, s.CreateActivity(ctx, dup))
}

func TestSQLiteFeedDedupe(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.CreateFeed(ctx, &domain.Feed{
		Provider: "FP1", Title: "hello", URL: "https://example.com/a",
	}))

	exists, err := s.FeedExistsByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.FeedExistsByURL(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.False(t, exists)

	feeds, err := s.ListFeeds(ctx, FeedQuery{Provider: "FP1", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}
