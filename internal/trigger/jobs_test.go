package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/publisher"
	"github.com/mimiza/smm/internal/store"
)

type stubProfileRefresher struct {
	err   error
	calls int
}

func (s *stubProfileRefresher) RefreshProfile(_ context.Context, agent *domain.Agent) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	agent.DisplayName = "refreshed"
	agent.AudienceSize = 1000
	return nil
}

type stubTokenRefresher struct {
	err   error
	calls int
}

func (s *stubTokenRefresher) RefreshToken(_ context.Context, agent *domain.Agent) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	agent.Credentials.AccessToken = "rotated"
	agent.Credentials.Refreshed = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return nil
}

func TestRefreshProfilesUpdatesEnabledAgents(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "tg1", Provider: domain.ProviderTelegramBot, Enabled: true})
	st.PutAgent(&domain.Agent{ID: "tg2", Provider: domain.ProviderTelegramBot, Enabled: false})
	st.PutAgent(&domain.Agent{ID: "x1", Provider: domain.ProviderX, Enabled: true})

	refresher := &stubProfileRefresher{}
	maint := NewMaintenance(st,
		map[domain.Provider]publisher.ProfileRefresher{domain.ProviderTelegramBot: refresher},
		nil, 0, nil, nil)

	refreshed, err := maint.RefreshProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, refresher.calls)

	agent, err := st.GetAgent(ctx, "tg1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", agent.DisplayName)
	assert.Equal(t, 1000, agent.AudienceSize)
}

func TestRefreshProfilesContinuesPastFailures(t *testing.T) {
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "tg1", Provider: domain.ProviderTelegramBot, Enabled: true})
	st.PutAgent(&domain.Agent{ID: "tg2", Provider: domain.ProviderTelegramBot, Enabled: true})

	refresher := &stubProfileRefresher{err: errors.New("chat not found")}
	maint := NewMaintenance(st,
		map[domain.Provider]publisher.ProfileRefresher{domain.ProviderTelegramBot: refresher},
		nil, 0, nil, nil)

	refreshed, err := maint.RefreshProfiles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, refreshed)
	assert.Equal(t, 2, refresher.calls)
}

func TestRefreshTokensRotatesOnlyStaleCredentials(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemory()

	// Stale, fresh, never rotated and without a refresh token at all.
	st.PutAgent(&domain.Agent{ID: "stale", Provider: domain.ProviderX, Enabled: true,
		Credentials: domain.Credentials{RefreshToken: "r1", Refreshed: now.Add(-3 * time.Hour)}})
	st.PutAgent(&domain.Agent{ID: "fresh", Provider: domain.ProviderX, Enabled: true,
		Credentials: domain.Credentials{RefreshToken: "r2", Refreshed: now.Add(-10 * time.Minute)}})
	st.PutAgent(&domain.Agent{ID: "never", Provider: domain.ProviderX, Enabled: true,
		Credentials: domain.Credentials{RefreshToken: "r3"}})
	st.PutAgent(&domain.Agent{ID: "no-token", Provider: domain.ProviderX, Enabled: true})

	refresher := &stubTokenRefresher{}
	maint := NewMaintenance(st, nil,
		map[domain.Provider]TokenRefresher{domain.ProviderX: refresher},
		time.Hour, nil, func() time.Time { return now })

	rotated, err := maint.RefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rotated)
	assert.Equal(t, 2, refresher.calls)

	agent, err := st.GetAgent(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, "rotated", agent.Credentials.AccessToken)

	agent, err = st.GetAgent(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, agent.Credentials.AccessToken)
}

func TestRegisterInstallsEnabledJobs(t *testing.T) {
	s := NewScheduler(nil)
	maint := NewMaintenance(store.NewMemory(), nil, nil, 0, nil, nil)

	specs := Specs{
		Walk:         "@every 1m",
		Generate:     "@every 1m",
		Cast:         "@every 1m",
		TokenRefresh: "@hourly",
		// FeedRefresh and ProfileRefresh disabled.
	}
	require.NoError(t, Register(s, specs, nil, nil, nil, maint))

	assert.Equal(t, []string{"cast-scan", "generate-scan", "plan-walk", "token-refresh"}, s.Jobs())
}
