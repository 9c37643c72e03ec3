package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/generator"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/metrics"
	"github.com/mimiza/smm/internal/notice"
	"github.com/mimiza/smm/internal/publisher"
	"github.com/mimiza/smm/internal/store"
	"github.com/mimiza/smm/internal/text"
)

const (
	// defaultBatchSize bounds per-tick work against a large backlog.
	defaultBatchSize = 3
	// defaultScanWindow is the lookbehind/lookahead around now when
	// selecting due activities.
	defaultScanWindow = time.Hour
)

// Orchestrator drives the activity state machine:
// Pending(no content) -> Pending(has content) -> Success | Failed.
// Generation is retried on every tick until content exists; casting is
// strictly one-shot.
type Orchestrator struct {
	store      store.Store
	generator  generator.Generator
	publishers *publisher.Registry
	notify     *notice.Notifier
	metrics    *metrics.Metrics
	log        *logger.Logger

	now        func() time.Time
	batchSize  int
	scanWindow time.Duration
}

// OrchestratorOption tunes an orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBatchSize overrides the per-tick batch cap.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithScanWindow overrides the due-scan window around now.
func WithScanWindow(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.scanWindow = d
		}
	}
}

// WithClock injects the time source. Tests pin it.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates an orchestrator. notify and metrics may be nil.
func NewOrchestrator(st store.Store, gen generator.Generator, pubs *publisher.Registry, notify *notice.Notifier, m *metrics.Metrics, log *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	if notify == nil {
		notify = notice.New(notice.DefaultLanguage, nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	o := &Orchestrator{
		store:      st,
		generator:  gen,
		publishers: pubs,
		notify:     notify,
		metrics:    m,
		log:        log,
		now:        time.Now,
		batchSize:  defaultBatchSize,
		scanWindow: defaultScanWindow,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GenerateDue selects Pending activities without content whose schedule
// falls within the scan window around now and generates content for each,
// oldest first, capped at the batch size.
func (o *Orchestrator) GenerateDue(ctx context.Context) (int, error) {
	now := o.now()
	from := now.Add(-o.scanWindow)
	until := now.Add(o.scanWindow)
	hasContent := false

	due, err := o.store.ListActivities(ctx, store.ActivityQuery{
		Status:        domain.StatusPending,
		ScheduleFrom:  &from,
		ScheduleUntil: &until,
		HasContent:    &hasContent,
		Order:         store.OrderAsc,
		Limit:         o.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list due activities: %w", err)
	}

	generated := 0
	for _, act := range due {
		ok, err := o.Generate(ctx, act)
		if err != nil {
			// Generation failures keep the activity Pending; the next tick
			// retries it.
			o.log.Error("content generation failed", err, logger.Field{Key: "activity", Value: act.ID})
			continue
		}
		if ok {
			generated++
		}
	}
	return generated, nil
}

// Generate produces and attaches content for one activity. Returns false
// without error when the activity is not eligible or the provider produced
// nothing.
func (o *Orchestrator) Generate(ctx context.Context, act *domain.NetworkActivity) (bool, error) {
	if act.Status != domain.StatusPending || act.Content != "" {
		return false, nil
	}

	mechanismID := act.Mechanism()
	if mechanismID == "" {
		o.notify.EmptyName("Content Mechanism")
		return false, nil
	}
	mechanism, err := o.store.GetMechanism(ctx, mechanismID)
	if errors.Is(err, store.ErrNotFound) {
		o.notify.NotExist("Content Mechanism", mechanismID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load mechanism %s: %w", mechanismID, err)
	}
	if !mechanism.Enabled {
		o.notify.Disabled("Content Mechanism", mechanismID)
		return false, nil
	}

	var linked *domain.Content
	if predID := act.Predecessor(); predID != "" {
		pred, err := o.store.GetActivity(ctx, predID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("load predecessor %s: %w", predID, err)
		}
		if pred != nil && pred.Content != "" {
			linked, err = o.store.GetContent(ctx, pred.Content)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return false, fmt.Errorf("load predecessor content: %w", err)
			}
		}
	}

	content, err := o.generator.Generate(ctx, generator.Request{
		Kind:      act.Kind,
		Mechanism: mechanism,
		Linked:    linked,
	})
	if err != nil {
		o.metrics.RecordGeneration("error")
		return false, err
	}
	if content == nil {
		o.metrics.RecordGeneration("empty")
		return false, nil
	}

	act.Content = content.ID
	if err := o.store.UpdateActivity(ctx, act); err != nil {
		return false, fmt.Errorf("attach content: %w", err)
	}

	o.metrics.RecordGeneration("ok")
	o.log.Info("content attached",
		logger.Field{Key: "activity", Value: act.ID},
		logger.Field{Key: "content", Value: content.ID},
	)
	return true, nil
}

// CastDue selects Pending activities with content whose schedule is due
// (within the lookbehind window up to now) and casts each, oldest first,
// capped at the batch size.
func (o *Orchestrator) CastDue(ctx context.Context) (int, error) {
	now := o.now()
	from := now.Add(-o.scanWindow)
	hasContent := true

	due, err := o.store.ListActivities(ctx, store.ActivityQuery{
		Status:        domain.StatusPending,
		ScheduleFrom:  &from,
		ScheduleUntil: &now,
		HasContent:    &hasContent,
		Order:         store.OrderAsc,
		Limit:         o.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list castable activities: %w", err)
	}

	cast := 0
	for _, act := range due {
		if err := o.Cast(ctx, act); err != nil {
			o.log.Error("cast failed", err, logger.Field{Key: "activity", Value: act.ID})
			continue
		}
		cast++
	}
	return cast, nil
}

// Cast publishes one activity and records the terminal outcome. One-shot:
// whatever the provider answers, the activity leaves Pending.
func (o *Orchestrator) Cast(ctx context.Context, act *domain.NetworkActivity) error {
	if act.Status != domain.StatusPending || act.Content == "" {
		return nil
	}

	agent, err := o.store.GetAgent(ctx, act.Agent)
	if errors.Is(err, store.ErrNotFound) {
		o.notify.NotExist("Agent", act.Agent)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load agent %s: %w", act.Agent, err)
	}

	content, err := o.store.GetContent(ctx, act.Content)
	if errors.Is(err, store.ErrNotFound) {
		o.notify.NotExist("Content", act.Content)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content %s: %w", act.Content, err)
	}

	var predecessorExternalID string
	if predID := act.Predecessor(); predID != "" {
		pred, err := o.store.GetActivity(ctx, predID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load predecessor %s: %w", predID, err)
		}
		if pred != nil {
			predecessorExternalID = pred.ExternalID
		}
	}

	pub, ok := o.publishers.Lookup(agent.Provider)
	if !ok {
		o.log.Warn("no publisher for provider",
			logger.Field{Key: "provider", Value: string(agent.Provider)},
			logger.Field{Key: "activity", Value: act.ID},
		)
		return nil
	}

	result, err := pub.Send(ctx, publisher.Request{
		Agent:                 agent,
		Kind:                  act.Kind,
		Text:                  text.RemoveQuotes(content.Description),
		Image:                 content.Image,
		PredecessorExternalID: predecessorExternalID,
	})

	// Terminal either way. Transport faults without a result become Failed
	// with the error recorded for audit.
	if result == nil {
		result = &publisher.Result{}
		if err != nil {
			result.Response = err.Error()
		}
	}

	act.Payload = result.Payload
	act.Response = result.Response
	act.ResponseStatus = result.StatusCode
	if result.OK {
		act.Status = domain.StatusSuccess
		act.ExternalID = result.ExternalID
	} else {
		act.Status = domain.StatusFailed
	}

	if updateErr := o.store.UpdateActivity(ctx, act); updateErr != nil {
		return fmt.Errorf("record cast outcome: %w", updateErr)
	}

	o.metrics.RecordCast(string(agent.Provider), string(act.Status))
	o.log.Info("activity cast",
		logger.Field{Key: "activity", Value: act.ID},
		logger.Field{Key: "status", Value: string(act.Status)},
		logger.Field{Key: "external_id", Value: act.ExternalID},
	)
	return err
}
