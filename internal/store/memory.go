package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mimiza/smm/internal/domain"
)

// Memory is an in-memory Store. It backs tests and small single-process
// deployments; semantics mirror the sqlite store, including the uniqueness
// guarantee on pending activities.
type Memory struct {
	mu sync.RWMutex

	plans      map[string]*domain.ActivityPlan
	agents     map[string]*domain.Agent
	groups     map[string]*domain.AgentGroup
	mechanisms map[string]*domain.ContentMechanism
	prompts    map[string]*domain.Prompt
	contents   map[string]*domain.Content
	activities map[string]*domain.NetworkActivity
	providers  map[string]*domain.FeedProvider
	feeds      map[string]*domain.Feed
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		plans:      make(map[string]*domain.ActivityPlan),
		agents:     make(map[string]*domain.Agent),
		groups:     make(map[string]*domain.AgentGroup),
		mechanisms: make(map[string]*domain.ContentMechanism),
		prompts:    make(map[string]*domain.Prompt),
		contents:   make(map[string]*domain.Content),
		activities: make(map[string]*domain.NetworkActivity),
		providers:  make(map[string]*domain.FeedProvider),
		feeds:      make(map[string]*domain.Feed),
	}
}

// Seed helpers. These upsert reference data and are used by tests and by the
// fixture loader; the engine itself never calls them.

func (m *Memory) PutPlan(p *domain.ActivityPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
}

func (m *Memory) PutAgent(a *domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.agents[a.ID] = &cp
}

func (m *Memory) PutGroup(g *domain.AgentGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[g.ID] = &cp
}

func (m *Memory) PutMechanism(c *domain.ContentMechanism) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.mechanisms[c.ID] = &cp
}

func (m *Memory) PutPrompt(p *domain.Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prompts[p.ID] = &cp
}

func (m *Memory) PutFeedProvider(p *domain.FeedProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.providers[p.ID] = &cp
}

func (m *Memory) PutFeed(f *domain.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.feeds[f.ID] = &cp
}

func (m *Memory) GetPlan(_ context.Context, id string) (*domain.ActivityPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListEnabledPlans(_ context.Context) ([]*domain.ActivityPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ActivityPlan
	for _, p := range m.plans {
		if p.Enabled {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListAgents(_ context.Context, provider domain.Provider) ([]*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Agent
	for _, a := range m.agents {
		if provider != "" && a.Provider != provider {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AgentsInGroups(_ context.Context, groups []string) ([]*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []*domain.Agent
	for _, gid := range groups {
		g, ok := m.groups[gid]
		if !ok {
			continue
		}
		for _, aid := range g.Agents {
			if seen[aid] {
				continue
			}
			seen[aid] = true
			if a, ok := m.agents[aid]; ok {
				cp := *a
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateAgent(_ context.Context, agent *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; !ok {
		return ErrNotFound
	}
	cp := *agent
	m.agents[agent.ID] = &cp
	return nil
}

func (m *Memory) GetMechanism(_ context.Context, id string) (*domain.ContentMechanism, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.mechanisms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) GetPrompt(_ context.Context, id string) (*domain.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetContent(_ context.Context, id string) (*domain.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) CreateContent(_ context.Context, content *domain.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if content.ID == "" {
		content.ID = NewID()
	}
	if content.Created.IsZero() {
		content.Created = time.Now()
	}
	cp := *content
	m.contents[content.ID] = &cp
	return nil
}

func (m *Memory) GetActivity(_ context.Context, id string) (*domain.NetworkActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyActivity(a)
	return &cp, nil
}

func (m *Memory) CountActivities(_ context.Context, q ActivityQuery) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.activities {
		if MatchActivity(a, q) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListActivities(_ context.Context, q ActivityQuery) ([]*domain.NetworkActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.NetworkActivity
	for _, a := range m.activities {
		if MatchActivity(a, q) {
			cp := copyActivity(a)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Order == OrderDesc {
			return out[i].Schedule.After(out[j].Schedule)
		}
		return out[i].Schedule.Before(out[j].Schedule)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) CreateActivity(_ context.Context, activity *domain.NetworkActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Conditional insert: reject a second Pending activity with the same
	// (plan, agent, links, schedule) identity. This is the store-level
	// equivalent of the sqlite partial unique index; a Pending at a
	// different schedule is a distinct activity, not a duplicate.
	if activity.Status == domain.StatusPending {
		hash := LinksHash(activity.Links)
		for _, existing := range m.activities {
			if existing.Status == domain.StatusPending &&
				existing.Plan == activity.Plan &&
				existing.Agent == activity.Agent &&
				existing.Schedule.Equal(activity.Schedule) &&
				LinksHash(existing.Links) == hash {
				return ErrDuplicatePending
			}
		}
	}

	if activity.ID == "" {
		activity.ID = NewID()
	}
	if activity.Created.IsZero() {
		activity.Created = time.Now()
	}
	cp := copyActivity(activity)
	m.activities[activity.ID] = &cp
	return nil
}

func (m *Memory) UpdateActivity(_ context.Context, activity *domain.NetworkActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[activity.ID]; !ok {
		return ErrNotFound
	}
	cp := copyActivity(activity)
	m.activities[activity.ID] = &cp
	return nil
}

func (m *Memory) PriorPlanActivities(_ context.Context, plan, agent string) ([]*domain.NetworkActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Predecessors this agent already responded to, pending or successful.
	responded := make(map[string]bool)
	for _, a := range m.activities {
		if a.Agent != agent {
			continue
		}
		if a.Kind != domain.KindPostComment && a.Kind != domain.KindShareContent {
			continue
		}
		if a.Status != domain.StatusPending && a.Status != domain.StatusSuccess {
			continue
		}
		if pred := a.Predecessor(); pred != "" {
			responded[pred] = true
		}
	}

	var out []*domain.NetworkActivity
	for _, a := range m.activities {
		if a.Plan != plan || a.Agent == agent {
			continue
		}
		if a.Kind != domain.KindPostContent || a.Status != domain.StatusSuccess {
			continue
		}
		if responded[a.ID] {
			continue
		}
		cp := copyActivity(a)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Schedule.Before(out[j].Schedule) })
	return out, nil
}

func (m *Memory) ListFeedProviders(_ context.Context) ([]*domain.FeedProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.FeedProvider
	for _, p := range m.providers {
		cp := *p
		out = append(out, &cp)
	}
	// Least recently fetched first, so stale providers come up first.
	sort.Slice(out, func(i, j int) bool { return out[i].Fetched.Before(out[j].Fetched) })
	return out, nil
}

func (m *Memory) GetFeedProvider(_ context.Context, id string) (*domain.FeedProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpdateFeedProvider(_ context.Context, provider *domain.FeedProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[provider.ID]; !ok {
		return ErrNotFound
	}
	cp := *provider
	m.providers[provider.ID] = &cp
	return nil
}

func (m *Memory) FeedExistsByURL(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.feeds {
		if f.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateFeed(_ context.Context, feed *domain.Feed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if feed.ID == "" {
		feed.ID = NewID()
	}
	if feed.Created.IsZero() {
		feed.Created = time.Now()
	}
	cp := *feed
	m.feeds[feed.ID] = &cp
	return nil
}

func (m *Memory) ListFeeds(_ context.Context, q FeedQuery) ([]*domain.Feed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Feed
	for _, f := range m.feeds {
		if q.Provider != "" && f.Provider != q.Provider {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Order == OrderAsc {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].Created.After(out[j].Created)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func copyActivity(a *domain.NetworkActivity) domain.NetworkActivity {
	cp := *a
	if a.Links != nil {
		cp.Links = make(map[string]string, len(a.Links))
		for k, v := range a.Links {
			cp.Links[k] = v
		}
	}
	return cp
}
