package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/generator"
	"github.com/mimiza/smm/internal/publisher"
	"github.com/mimiza/smm/internal/store"
)

// stubGenerator persists and returns a canned content, like the real
// adapter does, or nothing at all.
type stubGenerator struct {
	store   store.Store
	content *domain.Content
	err     error
	calls   int
	lastReq generator.Request
}

func (g *stubGenerator) Generate(ctx context.Context, req generator.Request) (*domain.Content, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	if g.content == nil {
		return nil, nil
	}
	if err := g.store.CreateContent(ctx, g.content); err != nil {
		return nil, err
	}
	return g.content, nil
}

type stubPublisher struct {
	result  *publisher.Result
	err     error
	calls   int
	lastReq publisher.Request
}

func (p *stubPublisher) Send(_ context.Context, req publisher.Request) (*publisher.Result, error) {
	p.calls++
	p.lastReq = req
	return p.result, p.err
}

func seedPendingActivity(t *testing.T, st *store.Memory, act *domain.NetworkActivity) *domain.NetworkActivity {
	t.Helper()
	if act.ID == "" {
		act.ID = store.NewID()
	}
	act.Status = domain.StatusPending
	require.NoError(t, st.CreateActivity(context.Background(), act))
	return act
}

func TestGenerateAttachesContent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutMechanism(&domain.ContentMechanism{ID: "m1", Enabled: true})
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan:     "p1",
		Agent:    "a1",
		Kind:     domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Links:    map[string]string{"mechanism": "m1"},
	})

	gen := &stubGenerator{store: st, content: &domain.Content{ID: "c1", Mechanism: "m1", Description: "hello"}}
	orch := NewOrchestrator(st, gen, publisher.NewRegistry(), nil, nil, nil)

	ok, err := orch.Generate(ctx, act)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindPostContent, gen.lastReq.Kind)
	assert.Equal(t, "m1", gen.lastReq.Mechanism.ID)

	stored, err := st.GetActivity(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", stored.Content)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestGenerateSkipsDisabledMechanism(t *testing.T) {
	st := store.NewMemory()
	st.PutMechanism(&domain.ContentMechanism{ID: "m1", Enabled: false})
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan:     "p1",
		Agent:    "a1",
		Kind:     domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Links:    map[string]string{"mechanism": "m1"},
	})

	gen := &stubGenerator{store: st}
	orch := NewOrchestrator(st, gen, publisher.NewRegistry(), nil, nil, nil)

	ok, err := orch.Generate(context.Background(), act)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, gen.calls)
}

func TestGeneratePassesPredecessorContent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutMechanism(&domain.ContentMechanism{ID: "m1", Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c-pred", Description: "original post"}))
	seedPendingActivity(t, st, &domain.NetworkActivity{
		ID:       "act-pred",
		Plan:     "p1",
		Agent:    "author",
		Kind:     domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Content:  "c-pred",
	})
	comment := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan:     "p2",
		Agent:    "commenter",
		Kind:     domain.KindPostComment,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Links:    map[string]string{"mechanism": "m1", "activity": "act-pred"},
	})

	gen := &stubGenerator{store: st, content: &domain.Content{ID: "c2", Description: "nice post"}}
	orch := NewOrchestrator(st, gen, publisher.NewRegistry(), nil, nil, nil)

	ok, err := orch.Generate(ctx, comment)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, gen.lastReq.Linked)
	assert.Equal(t, "original post", gen.lastReq.Linked.Description)
}

func TestGenerateDueRetriesUntilContentExists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutMechanism(&domain.ContentMechanism{ID: "m1", Enabled: true})
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan:     "p1",
		Agent:    "a1",
		Kind:     domain.KindPostContent,
		Schedule: now.Add(10 * time.Minute),
		Links:    map[string]string{"mechanism": "m1"},
	})

	gen := &stubGenerator{store: st} // produces nothing
	orch := NewOrchestrator(st, gen, publisher.NewRegistry(), nil, nil, nil, WithClock(func() time.Time { return now }))

	generated, err := orch.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, generated)
	assert.Equal(t, 1, gen.calls)

	// Still Pending without content, so the next tick picks it up again.
	generated, err = orch.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, generated)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateDueHonorsWindowAndBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutMechanism(&domain.ContentMechanism{ID: "m1", Enabled: true})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// One activity outside the window, four inside.
	seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p1", Agent: "a0", Kind: domain.KindPostContent,
		Schedule: now.Add(2 * time.Hour),
		Links:    map[string]string{"mechanism": "m1"},
	})
	for i := 0; i < 4; i++ {
		seedPendingActivity(t, st, &domain.NetworkActivity{
			Plan: "p1", Agent: string(rune('b' + i)), Kind: domain.KindPostContent,
			Schedule: now.Add(time.Duration(i) * time.Minute),
			Links:    map[string]string{"mechanism": "m1"},
		})
	}

	gen := &stubGenerator{store: st}
	orch := NewOrchestrator(st, gen, publisher.NewRegistry(), nil, nil, nil, WithClock(func() time.Time { return now }))

	_, err := orch.GenerateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls) // batch cap, window excluded the far one
}

func TestCastSuccessRecordsExternalID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "a1", Provider: domain.ProviderTelegramBot, Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c1", Description: `"quoted text"`}))
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p1", Agent: "a1", Kind: domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Content:  "c1",
		Links:    map[string]string{"mechanism": "m1"},
	})

	pub := &stubPublisher{result: &publisher.Result{
		OK: true, StatusCode: 200, ExternalID: "12345",
		Payload: `{"text":"quoted text"}`, Response: `{"ok":true}`,
	}}
	registry := publisher.NewRegistry()
	registry.Register(domain.ProviderTelegramBot, pub)
	orch := NewOrchestrator(st, &stubGenerator{store: st}, registry, nil, nil, nil)

	require.NoError(t, orch.Cast(ctx, act))
	assert.Equal(t, "quoted text", pub.lastReq.Text) // surrounding quotes removed

	stored, err := st.GetActivity(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.Equal(t, "12345", stored.ExternalID)
	assert.Equal(t, 200, stored.ResponseStatus)
	assert.NotEmpty(t, stored.Response)
}

func TestCastFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "a1", Provider: domain.ProviderTelegramBot, Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c1", Description: "text"}))
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p1", Agent: "a1", Kind: domain.KindPostContent,
		Schedule: now.Add(-time.Minute),
		Content:  "c1",
	})

	pub := &stubPublisher{result: &publisher.Result{OK: false, StatusCode: 403, Response: `{"ok":false}`}}
	registry := publisher.NewRegistry()
	registry.Register(domain.ProviderTelegramBot, pub)
	orch := NewOrchestrator(st, &stubGenerator{store: st}, registry, nil, nil, nil, WithClock(func() time.Time { return now }))

	require.NoError(t, orch.Cast(ctx, act))

	stored, err := st.GetActivity(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Empty(t, stored.ExternalID)
	assert.Equal(t, 403, stored.ResponseStatus)

	// One-shot: the failed activity never comes back in a cast scan.
	cast, err := orch.CastDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, cast)
	assert.Equal(t, 1, pub.calls)
}

func TestCastTransportFaultFailsWithAudit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "a1", Provider: domain.ProviderTelegramBot, Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c1", Description: "text"}))
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p1", Agent: "a1", Kind: domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Content:  "c1",
	})

	pub := &stubPublisher{err: errors.New("connection refused")}
	registry := publisher.NewRegistry()
	registry.Register(domain.ProviderTelegramBot, pub)
	orch := NewOrchestrator(st, &stubGenerator{store: st}, registry, nil, nil, nil)

	err := orch.Cast(ctx, act)
	assert.Error(t, err)

	stored, getErr := st.GetActivity(ctx, act.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.Response, "connection refused")
}

func TestCastThreadsPredecessorExternalID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "a1", Provider: domain.ProviderX, Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c1", Description: "reply"}))

	pred := &domain.NetworkActivity{
		ID: "act-pred", Plan: "p1", Agent: "author", Kind: domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Status:   domain.StatusSuccess, ExternalID: "ext-42",
	}
	require.NoError(t, st.CreateActivity(ctx, pred))

	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p2", Agent: "a1", Kind: domain.KindPostComment,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Content:  "c1",
		Links:    map[string]string{"activity": "act-pred", "mechanism": "m1"},
	})

	pub := &stubPublisher{result: &publisher.Result{OK: true, StatusCode: 201, ExternalID: "ext-43"}}
	registry := publisher.NewRegistry()
	registry.Register(domain.ProviderX, pub)
	orch := NewOrchestrator(st, &stubGenerator{store: st}, registry, nil, nil, nil)

	require.NoError(t, orch.Cast(ctx, act))
	assert.Equal(t, "ext-42", pub.lastReq.PredecessorExternalID)
	assert.Equal(t, domain.KindPostComment, pub.lastReq.Kind)
}

func TestCastWithoutPublisherLeavesPending(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.PutAgent(&domain.Agent{ID: "a1", Provider: domain.ProviderFacebook, Enabled: true})
	require.NoError(t, st.CreateContent(ctx, &domain.Content{ID: "c1", Description: "text"}))
	act := seedPendingActivity(t, st, &domain.NetworkActivity{
		Plan: "p1", Agent: "a1", Kind: domain.KindPostContent,
		Schedule: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Content:  "c1",
	})

	orch := NewOrchestrator(st, &stubGenerator{store: st}, publisher.NewRegistry(), nil, nil, nil)
	require.NoError(t, orch.Cast(ctx, act))

	stored, err := st.GetActivity(ctx, act.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}
