// Package notice produces the user-visible messages emitted when processing
// is skipped for configuration or state reasons (missing plan, disabled
// mechanism). Messages go through a golang.org/x/text message printer so
// deployments can ship translated catalogs; background triggers route them
// to the log, interactive callers to the response.
package notice

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	for _, m := range []struct{ key, translation string }{
		{"%s %s does not exist", "%s %s does not exist"},
		{"%s %s is disabled", "%s %s is disabled"},
		{"%s name is empty", "%s name is empty"},
		{"Error fetching feed from %s", "Error fetching feed from %s"},
	} {
		message.SetString(language.English, m.key, m.translation)
	}
}

// DefaultLanguage is the catalog language used when none is configured.
var DefaultLanguage = language.English

// Sink receives rendered notices. The serve runtime logs them; tests collect
// them to assert on skip reasons.
type Sink func(text string)

// Notifier renders localized notices into a sink.
type Notifier struct {
	printer *message.Printer
	sink    Sink
}

// New creates a notifier for the given language. A nil sink discards.
func New(lang language.Tag, sink Sink) *Notifier {
	if sink == nil {
		sink = func(string) {}
	}
	return &Notifier{printer: message.NewPrinter(lang), sink: sink}
}

// NotExist reports a reference to a missing entity, e.g. ("Network Activity
// Plan", "P1").
func (n *Notifier) NotExist(entity, id string) {
	n.sink(n.printer.Sprintf("%s %s does not exist", entity, id))
}

// Disabled reports processing skipped because the entity is disabled.
func (n *Notifier) Disabled(entity, id string) {
	n.sink(n.printer.Sprintf("%s %s is disabled", entity, id))
}

// EmptyName reports a call without the required entity name.
func (n *Notifier) EmptyName(entity string) {
	n.sink(n.printer.Sprintf("%s name is empty", entity))
}

// FetchError reports a failed feed fetch.
func (n *Notifier) FetchError(url string) {
	n.sink(n.printer.Sprintf("Error fetching feed from %s", url))
}
