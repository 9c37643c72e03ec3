package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/metrics"
	"github.com/mimiza/smm/internal/notice"
	"github.com/mimiza/smm/internal/store"
)

// Manager polls feed providers whose refresh interval elapsed and
// materializes their items as Feed records, deduplicated by URL. Virtual
// providers keep the fetch audit on the provider record only.
type Manager struct {
	store   store.Store
	sources map[domain.FeedProviderType]Source
	notify  *notice.Notifier
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewManager creates a manager. notify and metrics may be nil; now defaults
// to time.Now.
func NewManager(st store.Store, sources map[domain.FeedProviderType]Source, notify *notice.Notifier, m *metrics.Metrics, log *logger.Logger, now func() time.Time) *Manager {
	if notify == nil {
		notify = notice.New(notice.DefaultLanguage, nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: st, sources: sources, notify: notify, metrics: m, log: log, now: now}
}

// RefreshDue fetches every enabled provider that is due, least recently
// fetched first. Individual fetch failures are reported and do not stop
// the sweep.
func (m *Manager) RefreshDue(ctx context.Context) (int, error) {
	providers, err := m.store.ListFeedProviders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feed providers: %w", err)
	}

	refreshed := 0
	for _, provider := range providers {
		if !provider.Due(m.now()) {
			continue
		}
		if err := m.Refresh(ctx, provider); err != nil {
			m.log.Error("feed refresh failed", err, logger.Field{Key: "provider", Value: provider.ID})
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// Refresh fetches one provider now. Disabled providers are skipped without
// touching their fetch timestamp.
func (m *Manager) Refresh(ctx context.Context, provider *domain.FeedProvider) error {
	if !provider.Enabled {
		return nil
	}

	source, ok := m.sources[provider.Type]
	if !ok {
		m.log.Warn("no source for provider type",
			logger.Field{Key: "provider", Value: provider.ID},
			logger.Field{Key: "type", Value: string(provider.Type)},
		)
		return nil
	}

	// Mark the attempt first so a failing provider is not retried on every
	// sweep before its interval elapses again.
	provider.Fetched = m.now()

	result, err := source.Fetch(ctx, provider)
	if result != nil {
		provider.Payload = result.Payload
		provider.Response = result.Response
		provider.ResponseStatus = result.StatusCode
	}
	if err != nil {
		m.notify.FetchError(provider.URL)
		m.metrics.RecordFeedFetch(string(provider.Type), "error")
		if updateErr := m.store.UpdateFeedProvider(ctx, provider); updateErr != nil {
			return fmt.Errorf("record failed fetch: %w", updateErr)
		}
		return err
	}

	created := 0
	if !provider.Virtual {
		for _, item := range result.Items {
			ok, err := m.materialize(ctx, provider, item)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
	}

	if err := m.store.UpdateFeedProvider(ctx, provider); err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}

	m.metrics.RecordFeedFetch(string(provider.Type), "ok")
	m.log.Info("feed provider refreshed",
		logger.Field{Key: "provider", Value: provider.ID},
		logger.Field{Key: "items", Value: len(result.Items)},
		logger.Field{Key: "created", Value: created},
	)
	return nil
}

// materialize stores one item unless a feed with the same URL exists.
func (m *Manager) materialize(ctx context.Context, provider *domain.FeedProvider, item Item) (bool, error) {
	if item.URL != "" {
		exists, err := m.store.FeedExistsByURL(ctx, item.URL)
		if err != nil {
			return false, fmt.Errorf("check feed %s: %w", item.URL, err)
		}
		if exists {
			return false, nil
		}
	}

	feed := &domain.Feed{
		ID:          store.NewID(),
		Provider:    provider.ID,
		Title:       item.Title,
		Description: item.Description,
		URL:         item.URL,
		Image:       item.Image,
		Created:     m.now(),
	}
	if err := m.store.CreateFeed(ctx, feed); err != nil {
		return false, fmt.Errorf("create feed: %w", err)
	}
	return true, nil
}
