package toolset

import (
	"fmt"

	"github.com/stewardhq/steward/internal/tools"
)

// SetBuilder constructs the registry tools backing one tool set.
type SetBuilder func() []tools.Tool

// BuildReplayRegistry assembles the registry for historical replay from
// whichever set builders the caller can serve. Only sets named by
// ReplaySets are consulted, so user-scoped sets and web search stay out
// of the replay surface even when a builder for them is supplied.
func (c *Catalog) BuildReplayRegistry(builders map[string]SetBuilder) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	for _, name := range c.ReplaySets() {
		build, ok := builders[name]
		if !ok {
			continue
		}
		if err := registry.RegisterAll(build()); err != nil {
			return nil, fmt.Errorf("register %s tools: %w", name, err)
		}
	}
	return registry, nil
}
