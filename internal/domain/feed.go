package domain

import "time"

// FeedProviderType selects the fetch strategy for a feed provider.
type FeedProviderType string

const (
	FeedProviderRSS     FeedProviderType = "RSS"
	FeedProviderCrawler FeedProviderType = "Crawler"
)

// FeedProvider configures one external content source that is polled on the
// feed-refresh trigger. Virtual providers keep fetched feeds only on the
// provider record and never materialize Feed rows.
type FeedProvider struct {
	ID      string
	Enabled bool
	Type    FeedProviderType
	URL     string

	// RefreshInterval is the minimum time between fetches. A provider is due
	// when Fetched is zero or Fetched+RefreshInterval <= now.
	RefreshInterval time.Duration
	Fetched         time.Time

	Virtual bool

	// Audit fields recorded verbatim from the last fetch.
	Payload        string
	Response       string
	ResponseStatus int
}

// Due reports whether the provider should be fetched at the given instant.
func (p *FeedProvider) Due(now time.Time) bool {
	if p.Fetched.IsZero() {
		return true
	}
	return !p.Fetched.Add(p.RefreshInterval).After(now)
}

// Feed is one ingested external item usable as generation input.
type Feed struct {
	ID          string
	Provider    string
	Title       string
	Description string
	URL         string
	Image       string
	Created     time.Time
}
