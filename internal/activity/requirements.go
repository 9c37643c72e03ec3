// Package activity implements the scheduling engine: the linked-field
// resolver, the Cartesian scheduling walker and the lifecycle orchestrator
// that drives activities from Pending through content generation to cast.
package activity

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mimiza/smm/internal/domain"
)

//go:embed requirements.yaml
var requirementsYAML []byte

// Requirement describes one slot an activity kind needs bound before an
// activity can be created.
type Requirement struct {
	// Name is the catalog key ("mechanism", "activity", "plan").
	Name string `yaml:"-"`

	// Field is the slot field name candidates bind under. Requirements
	// sharing a field merge into one slot.
	Field string `yaml:"field"`

	// Parent names the plan collection whose entries seed resolution.
	Parent string `yaml:"parent"`

	// Entity is the candidate entity type.
	Entity string `yaml:"entity"`

	// Filters is the expression template rendered against
	// {agent, linked_item} to locate candidates. Ignored when Query is set.
	Filters map[string]any `yaml:"filters"`

	// Query names a custom resolver predicate instead of a filter template.
	Query string `yaml:"query"`
}

type requirementCatalog struct {
	Kinds map[string][]string    `yaml:"kinds"`
	Slots map[string]Requirement `yaml:"slots"`
}

var catalog requirementCatalog

func init() {
	if err := yaml.Unmarshal(requirementsYAML, &catalog); err != nil {
		panic(fmt.Sprintf("activity: invalid requirement catalog: %v", err))
	}
	for name, slot := range catalog.Slots {
		slot.Name = name
		if slot.Field == "" {
			slot.Field = name
		}
		catalog.Slots[name] = slot
	}
}

// KindRequirements returns the ordered requirements of an activity kind.
// Unknown kinds have no requirements.
func KindRequirements(kind domain.ActivityKind) []Requirement {
	names := catalog.Kinds[string(kind)]
	out := make([]Requirement, 0, len(names))
	for _, name := range names {
		if slot, ok := catalog.Slots[name]; ok {
			out = append(out, slot)
		}
	}
	return out
}
