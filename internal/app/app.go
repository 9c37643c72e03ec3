// Package app assembles the service from its components: store, metrics,
// scheduling engine, content pipeline, feed ingestion and the trigger
// scheduler. The serve command builds one App and runs it until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mimiza/smm/internal/activity"
	"github.com/mimiza/smm/internal/config"
	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/feed"
	"github.com/mimiza/smm/internal/generator"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/metrics"
	"github.com/mimiza/smm/internal/notice"
	"github.com/mimiza/smm/internal/publisher"
	"github.com/mimiza/smm/internal/store"
	"github.com/mimiza/smm/internal/trigger"
)

// App holds the assembled components.
type App struct {
	cfg *config.Config
	log *logger.Logger

	Store        store.Store
	Metrics      *metrics.Metrics
	Notifier     *notice.Notifier
	Engine       *activity.Engine
	Orchestrator *activity.Orchestrator
	Feeds        *feed.Manager
	Maintenance  *trigger.Maintenance
	Scheduler    *trigger.Scheduler

	started       bool
	storeCloser   io.Closer
	metricsServer *http.Server
}

// New builds the application from a validated configuration.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}

	a := &App{cfg: cfg, log: log}

	if err := a.buildStore(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace, nil)
	}

	a.Notifier = notice.New(cfg.Language(), func(text string) {
		log.Warn("notice", logger.Field{Key: "text", Value: text})
	})

	resolver := activity.NewResolver(a.Store, a.Notifier, log)
	walker := activity.NewWalker(a.Store, a.Metrics, log, nil)
	a.Engine = activity.NewEngine(a.Store, resolver, walker, a.Metrics, log, nil)

	gen := generator.NewOpenAI(generator.OpenAIConfig{
		APIKey:         cfg.Generator.OpenAI.APIKey,
		Model:          cfg.Generator.OpenAI.Model,
		TimeoutSeconds: cfg.Generator.OpenAI.TimeoutSeconds,
	}, a.Store, log)

	registry, profiles, tokens := a.buildPublishers()
	a.Orchestrator = activity.NewOrchestrator(a.Store, gen, registry, a.Notifier, a.Metrics, log)

	sources := map[domain.FeedProviderType]feed.Source{
		domain.FeedProviderRSS: feed.NewRSS(nil, log),
	}
	if cfg.Crawler.Enabled {
		sources[domain.FeedProviderCrawler] = feed.NewCrawler(log)
	}
	a.Feeds = feed.NewManager(a.Store, sources, a.Notifier, a.Metrics, log, nil)

	tokenMaxAge := time.Duration(cfg.Triggers.TokenMaxAgeMinutes) * time.Minute
	a.Maintenance = trigger.NewMaintenance(a.Store, profiles, tokens, tokenMaxAge, log, nil)

	a.Scheduler = trigger.NewScheduler(log)
	specs := trigger.Specs{
		Walk:           cfg.Triggers.Walk,
		Generate:       cfg.Triggers.Generate,
		Cast:           cfg.Triggers.Cast,
		FeedRefresh:    cfg.Triggers.FeedRefresh,
		ProfileRefresh: cfg.Triggers.ProfileRefresh,
		TokenRefresh:   cfg.Triggers.TokenRefresh,
	}
	if err := trigger.Register(a.Scheduler, specs, a.Engine, a.Orchestrator, a.Feeds, a.Maintenance); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *App) buildStore() error {
	switch a.cfg.Store.Driver {
	case "memory":
		a.Store = store.NewMemory()
	case "sqlite":
		s, err := store.NewSQLite(a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.Store = s
		a.storeCloser = s
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) buildPublishers() (*publisher.Registry, map[domain.Provider]publisher.ProfileRefresher, map[domain.Provider]trigger.TokenRefresher) {
	registry := publisher.NewRegistry()
	profiles := make(map[domain.Provider]publisher.ProfileRefresher)
	tokens := make(map[domain.Provider]trigger.TokenRefresher)

	if a.cfg.Publishers.Telegram {
		tg := publisher.NewTelegram(a.log)
		registry.Register(domain.ProviderTelegramBot, tg)
		profiles[domain.ProviderTelegramBot] = tg
	}
	if a.cfg.Publishers.X {
		x := publisher.NewX(nil, a.log)
		registry.Register(domain.ProviderX, x)
		tokens[domain.ProviderX] = x
	}
	if a.cfg.Publishers.Facebook {
		registry.Register(domain.ProviderFacebook, publisher.NewFacebook(nil, a.log))
	}

	return registry, profiles, tokens
}

// Start starts the trigger scheduler and, when enabled, the metrics
// endpoint. It returns immediately.
func (a *App) Start(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	a.started = true

	if a.cfg.Metrics.Enabled {
		a.metricsServer = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", err,
					logger.Field{Key: "addr", Value: a.cfg.Metrics.Addr})
			}
		}()
		a.log.Info("metrics endpoint started", logger.Field{Key: "addr", Value: a.cfg.Metrics.Addr})
	}

	return nil
}

// Shutdown stops the scheduler, the metrics endpoint and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.started {
		if err := a.Scheduler.Stop(); err != nil {
			errs = append(errs, err)
		}
		a.started = false
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.storeCloser != nil {
		if err := a.storeCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
