package domain

import "time"

// Provider identifies the external platform an agent posts to. The set is
// closed: adapters are registered per provider, there is no runtime
// capability probing.
type Provider string

const (
	ProviderTelegramBot Provider = "Telegram Bot"
	ProviderX           Provider = "X"
	ProviderFacebook    Provider = "Facebook"
)

// Credentials holds the opaque provider credential material for an agent.
// The core never interprets these; only the matching publisher adapter does.
type Credentials struct {
	Token          string // bot or page token (Telegram, Facebook)
	ConsumerKey    string // OAuth1 consumer pair (X)
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	RefreshToken   string // OAuth2 refresh token (X)

	// Refreshed is when the access token was last rotated. Agents whose
	// credential age exceeds the refresh threshold get rotated by the
	// token-refresh trigger.
	Refreshed time.Time
}

// Agent is an account on an external platform capable of posting. Immutable
// from the engine's perspective; profile metadata and credentials are
// refreshed by provider adapters on their own triggers.
type Agent struct {
	ID       string
	Provider Provider
	Enabled  bool

	// UID is the provider-side account identifier (chat id, user id,
	// page id), Alias the human handle ("@channel").
	UID   string
	Alias string

	DisplayName  string
	Description  string
	AudienceSize int

	Credentials Credentials
}

// ChatID returns the identifier a messaging provider should address: the
// provider UID when known, otherwise the "@" alias.
func (a *Agent) ChatID() string {
	if a.UID != "" {
		return a.UID
	}
	alias := a.Alias
	if alias != "" && alias[0] != '@' {
		alias = "@" + alias
	}
	return alias
}

// AgentGroup names a set of agents that can be assigned to plans as a unit.
type AgentGroup struct {
	ID     string
	Agents []string
}
