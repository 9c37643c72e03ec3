// Package feed ingests external content used as generation input: RSS and
// Atom documents over HTTP and chart snapshots captured with a headless
// browser. The manager polls providers on their refresh intervals and
// materializes deduplicated Feed records.
package feed

import (
	"context"

	"github.com/mimiza/smm/internal/domain"
)

// Item is one fetched entry before it becomes a Feed record.
type Item struct {
	Title       string
	Description string
	URL         string
	Image       string
}

// FetchResult carries the fetched items plus the raw exchange for audit.
type FetchResult struct {
	Items []Item

	Payload    string
	Response   string
	StatusCode int
}

// Source fetches content for one provider type.
type Source interface {
	Fetch(ctx context.Context, provider *domain.FeedProvider) (*FetchResult, error)
}
