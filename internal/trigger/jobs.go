package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/mimiza/smm/internal/activity"
	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/feed"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/publisher"
	"github.com/mimiza/smm/internal/store"
)

// defaultTokenMaxAge is how old rotating credentials may get before the
// token-refresh job rotates them again.
const defaultTokenMaxAge = 90 * time.Minute

// TokenRefresher rotates an agent's OAuth credentials in place; the caller
// persists the agent.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, agent *domain.Agent) error
}

// Maintenance syncs agent profiles from their platforms and rotates
// expiring credentials.
type Maintenance struct {
	store       store.Store
	profiles    map[domain.Provider]publisher.ProfileRefresher
	tokens      map[domain.Provider]TokenRefresher
	tokenMaxAge time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// NewMaintenance creates the maintenance jobs. tokenMaxAge defaults when
// zero; now defaults to time.Now.
func NewMaintenance(st store.Store, profiles map[domain.Provider]publisher.ProfileRefresher, tokens map[domain.Provider]TokenRefresher, tokenMaxAge time.Duration, log *logger.Logger, now func() time.Time) *Maintenance {
	if tokenMaxAge <= 0 {
		tokenMaxAge = defaultTokenMaxAge
	}
	if log == nil {
		log = logger.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Maintenance{
		store:       st,
		profiles:    profiles,
		tokens:      tokens,
		tokenMaxAge: tokenMaxAge,
		log:         log,
		now:         now,
	}
}

// RefreshProfiles syncs every enabled agent whose provider has a profile
// refresher. Per-agent failures are logged and do not stop the sweep.
func (m *Maintenance) RefreshProfiles(ctx context.Context) (int, error) {
	refreshed := 0
	for provider, refresher := range m.profiles {
		agents, err := m.store.ListAgents(ctx, provider)
		if err != nil {
			return refreshed, fmt.Errorf("list %s agents: %w", provider, err)
		}
		for _, agent := range agents {
			if !agent.Enabled {
				continue
			}
			if err := refresher.RefreshProfile(ctx, agent); err != nil {
				m.log.Error("profile refresh failed", err,
					logger.Field{Key: "agent", Value: agent.ID})
				continue
			}
			if err := m.store.UpdateAgent(ctx, agent); err != nil {
				return refreshed, fmt.Errorf("update agent %s: %w", agent.ID, err)
			}
			refreshed++
		}
	}
	return refreshed, nil
}

// RefreshTokens rotates credentials of enabled agents whose last rotation is
// older than the threshold. Agents without a refresh token are skipped.
func (m *Maintenance) RefreshTokens(ctx context.Context) (int, error) {
	rotated := 0
	for provider, refresher := range m.tokens {
		agents, err := m.store.ListAgents(ctx, provider)
		if err != nil {
			return rotated, fmt.Errorf("list %s agents: %w", provider, err)
		}
		for _, agent := range agents {
			if !agent.Enabled || agent.Credentials.RefreshToken == "" {
				continue
			}
			if m.now().Sub(agent.Credentials.Refreshed) < m.tokenMaxAge {
				continue
			}
			if err := refresher.RefreshToken(ctx, agent); err != nil {
				m.log.Error("token refresh failed", err,
					logger.Field{Key: "agent", Value: agent.ID})
				continue
			}
			if err := m.store.UpdateAgent(ctx, agent); err != nil {
				return rotated, fmt.Errorf("update agent %s: %w", agent.ID, err)
			}
			rotated++
		}
	}
	return rotated, nil
}

// Specs holds the cron expressions for the built-in jobs. An empty spec
// disables that job.
type Specs struct {
	Walk           string
	Generate       string
	Cast           string
	FeedRefresh    string
	ProfileRefresh string
	TokenRefresh   string
}

// Register installs the built-in jobs on the scheduler.
func Register(s *Scheduler, specs Specs, engine *activity.Engine, orch *activity.Orchestrator, feeds *feed.Manager, maint *Maintenance) error {
	jobs := []Job{
		{Name: "plan-walk", Spec: specs.Walk, Run: func(ctx context.Context) error {
			_, err := engine.WalkEnabledPlans(ctx)
			return err
		}},
		{Name: "generate-scan", Spec: specs.Generate, Run: func(ctx context.Context) error {
			_, err := orch.GenerateDue(ctx)
			return err
		}},
		{Name: "cast-scan", Spec: specs.Cast, Run: func(ctx context.Context) error {
			_, err := orch.CastDue(ctx)
			return err
		}},
		{Name: "feed-refresh", Spec: specs.FeedRefresh, Run: func(ctx context.Context) error {
			_, err := feeds.RefreshDue(ctx)
			return err
		}},
		{Name: "profile-refresh", Spec: specs.ProfileRefresh, Run: func(ctx context.Context) error {
			_, err := maint.RefreshProfiles(ctx)
			return err
		}},
		{Name: "token-refresh", Spec: specs.TokenRefresh, Run: func(ctx context.Context) error {
			_, err := maint.RefreshTokens(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			return err
		}
	}
	return nil
}
