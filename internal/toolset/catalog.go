// Package toolset defines the closed catalog of tool sets the router can
// select. Tool sets group related tool capabilities under one name; the
// catalog is versioned with the binary, and router output referencing an
// unknown name is a contract violation, not something to drop silently.
package toolset

import (
	"fmt"
	"sort"
	"strings"
)

// WebSearch is the built-in web-search capability. It has no registry
// tools behind it; the orchestrator enables the model's native search
// when this set is selected.
const WebSearch = "web_search"

// ToolSet is a named, closed group of tool capabilities.
type ToolSet struct {
	// Name is the identifier the router selects.
	Name string

	// Description is the human summary used when no per-tool hint exists.
	Description string

	// Tools lists the registry tool names in this set.
	Tools []string

	// PrecisionCritical marks sets whose answers must not be approximated
	// (financial operations and the like).
	PrecisionCritical bool

	// UserScoped marks sets whose tools need per-user context and are
	// therefore excluded from historical replay.
	UserScoped bool
}

// Catalog is the closed tool-set registry.
type Catalog struct {
	sets  map[string]ToolSet
	order []string
}

// Default returns the catalog shipped with this build.
func Default() *Catalog {
	return NewCatalog([]ToolSet{
		{
			Name:        "knowledge",
			Description: "Answer questions from the community knowledge base and past digests.",
			Tools:       []string{"search_knowledge", "get_recent_digest"},
		},
		{
			Name:        "members",
			Description: "Look up member profiles, membership status, and stored insights.",
			Tools:       []string{"lookup_member", "list_member_insights"},
			UserScoped:  true,
		},
		{
			Name:              "billing",
			Description:       "Answer billing, subscription, and payment questions.",
			Tools:             []string{"get_billing_status", "get_payment_history"},
			PrecisionCritical: true,
		},
		{
			Name:        "admin",
			Description: "Administrative statistics and moderation actions.",
			Tools:       []string{"get_community_stats", "flag_content"},
			UserScoped:  true,
		},
		{
			Name:        WebSearch,
			Description: "Search the web for current information outside the knowledge base.",
		},
	})
}

// NewCatalog builds a catalog preserving the given declaration order.
func NewCatalog(sets []ToolSet) *Catalog {
	c := &Catalog{sets: make(map[string]ToolSet, len(sets))}
	for _, ts := range sets {
		if _, dup := c.sets[ts.Name]; dup {
			continue
		}
		c.sets[ts.Name] = ts
		c.order = append(c.order, ts.Name)
	}
	return c
}

// Get returns the tool set with the given name.
func (c *Catalog) Get(name string) (ToolSet, bool) {
	ts, ok := c.sets[name]
	return ts, ok
}

// Names returns tool-set names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Validate checks that every name references a known tool set.
func (c *Catalog) Validate(names []string) error {
	var unknown []string
	for _, name := range names {
		if _, ok := c.sets[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown tool sets: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// RequiresPrecision reports whether any of the named sets is
// precision-critical. Unknown names are ignored here; Validate is the
// gate for those.
func (c *Catalog) RequiresPrecision(names []string) bool {
	for _, name := range names {
		if ts, ok := c.sets[name]; ok && ts.PrecisionCritical {
			return true
		}
	}
	return false
}

// ReplaySets returns the names of tool sets safe for historical replay:
// everything not user-scoped and not the built-in web search.
func (c *Catalog) ReplaySets() []string {
	var out []string
	for _, name := range c.order {
		ts := c.sets[name]
		if ts.UserScoped || ts.Name == WebSearch {
			continue
		}
		out = append(out, name)
	}
	return out
}

// HintSource supplies per-tool usage hints and long descriptions, usually
// backed by the tool registry.
type HintSource interface {
	// ToolHint returns the short usage hint and long description for a
	// tool, or ok=false when the tool is not registered.
	ToolHint(name string) (hint string, description string, ok bool)
}

// Describe renders one line per tool set for the router prompt. Each
// set's summary is derived once per call from its tools' usage hints,
// falling back to the first sentence of the long description, then to
// the set's own description.
func (c *Catalog) Describe(hints HintSource) string {
	var b strings.Builder
	for _, name := range c.order {
		ts := c.sets[name]
		summary := ts.Description
		if hints != nil && len(ts.Tools) > 0 {
			if derived := deriveSummary(ts.Tools, hints); derived != "" {
				summary = derived
			}
		}
		fmt.Fprintf(&b, "- %s: %s\n", ts.Name, summary)
	}
	return b.String()
}

// deriveSummary joins each tool's hint (or first description sentence).
func deriveSummary(tools []string, hints HintSource) string {
	var parts []string
	for _, tool := range tools {
		hint, desc, ok := hints.ToolHint(tool)
		if !ok {
			continue
		}
		if hint == "" {
			hint = firstSentence(desc)
		}
		if hint != "" {
			parts = append(parts, hint)
		}
	}
	return strings.Join(parts, " ")
}

// firstSentence returns text up to and including the first period.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, ". "); idx >= 0 {
		return text[:idx+1]
	}
	return text
}
