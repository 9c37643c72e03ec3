// Package generator defines the content generation capability consumed by
// the lifecycle orchestrator, plus the OpenAI-backed implementation.
package generator

import (
	"context"

	"github.com/mimiza/smm/internal/domain"
)

// Request names what to generate content for. The mechanism supplies the
// recipe; Linked carries the predecessor's content when the activity
// comments on or shares an earlier post.
type Request struct {
	Kind      domain.ActivityKind
	Mechanism *domain.ContentMechanism
	Linked    *domain.Content
}

// Generator produces publishable content. Implementations persist the
// created Content and return it; a (nil, nil) return means the provider
// produced no usable result, which callers treat as "retry later".
type Generator interface {
	Generate(ctx context.Context, req Request) (*domain.Content, error)
}
