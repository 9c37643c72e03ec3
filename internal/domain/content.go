package domain

import "time"

// FeedSelection references a feed provider together with how many of its
// latest feeds a mechanism pulls into the generation prompt.
type FeedSelection struct {
	Provider string
	Limit    int
}

// ContentMechanism is a reusable recipe for generating content: prompt
// templates, feed inputs and output constraints. Disabled mechanisms are
// excluded from scheduling and from generation.
type ContentMechanism struct {
	ID      string
	Enabled bool

	Prompts       []string        // Prompt IDs, applied in order
	FeedProviders []FeedSelection // latest N feeds per provider
	Feeds         []string        // individually pinned Feed IDs

	// Length caps the generated description in characters. Zero means no cap.
	Length int

	// GenerateImage asks the generator to also produce an image.
	GenerateImage bool
}

// Prompt is one reusable prompt fragment referenced by mechanisms.
type Prompt struct {
	ID          string
	Description string
}

// Content is a generated title/description/image ready to be published.
// Immutable once created: re-generation creates a new Content record.
type Content struct {
	ID          string
	Mechanism   string
	Title       string
	Description string
	Image       string // file path or URL, empty when no image was generated
	Created     time.Time
}
