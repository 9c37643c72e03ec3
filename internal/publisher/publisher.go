// Package publisher defines the outbound publishing capability and its
// provider adapters. Adapters wrap one platform API each; the lifecycle
// orchestrator picks the adapter matching the agent's provider and treats
// every send as one-shot.
package publisher

import (
	"context"

	"github.com/mimiza/smm/internal/domain"
)

// Request carries everything an adapter needs to publish one activity.
type Request struct {
	Agent *domain.Agent
	Kind  domain.ActivityKind

	Text  string
	Image string // file path or URL, empty when the content has no image

	// PredecessorExternalID threads comments and shares onto the platform
	// object the predecessor activity produced.
	PredecessorExternalID string
}

// Result records the outcome of one send. Payload and Response are kept
// verbatim for audit regardless of outcome.
type Result struct {
	OK         bool
	StatusCode int

	// ExternalID is the platform identifier of the created object
	// (message id, tweet id, post id). Empty on failure.
	ExternalID string

	Payload  string // outbound request, serialized
	Response string // raw provider response
}

// Publisher posts content to one external platform.
type Publisher interface {
	// Send publishes one piece of content. A non-nil Result is returned
	// whenever the provider was reached, even on failure responses; err is
	// reserved for transport-level faults.
	Send(ctx context.Context, req Request) (*Result, error)
}

// ProfileRefresher is implemented by adapters that can sync an agent's
// platform profile (display name, audience size) back into the store.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context, agent *domain.Agent) error
}

// Registry maps providers to their adapters. The provider set is closed;
// lookup failure means the deployment did not configure that provider.
type Registry struct {
	adapters map[domain.Provider]Publisher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.Provider]Publisher)}
}

// Register installs an adapter for a provider, replacing any previous one.
func (r *Registry) Register(provider domain.Provider, p Publisher) {
	r.adapters[provider] = p
}

// Lookup returns the adapter for a provider.
func (r *Registry) Lookup(provider domain.Provider) (Publisher, bool) {
	p, ok := r.adapters[provider]
	return p, ok
}

// Providers returns the registered provider set.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
