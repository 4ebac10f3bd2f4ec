// Package prompt resolves the system prompt that governs model behavior.
// The prompt is built from a mutable rule store and cached with a short
// TTL; when the store is empty or unavailable the resolver degrades to a
// hardcoded default without caching it, so recovery is immediate.
package prompt

import (
	"context"
	"time"
)

// Rule is an atomic, store-persisted unit of editable agent behavior.
type Rule struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleStore is the external rule-store contract.
type RuleStore interface {
	// ActiveRules returns the currently active rules.
	ActiveRules(ctx context.Context) ([]Rule, error)

	// RulesByIDs returns the rules with the given ids, active or not.
	// Unknown ids are omitted, not errors.
	RulesByIDs(ctx context.Context, ids []string) ([]Rule, error)

	// BuildSystemPrompt renders the prompt text from all active rules.
	BuildSystemPrompt(ctx context.Context) (string, error)

	// BuildSystemPromptFromRuleIDs renders prompt text from a specific
	// rule set, used by overrides.
	BuildSystemPromptFromRuleIDs(ctx context.Context, ids []string) (string, error)
}

// SystemPromptState is the resolved prompt plus the rules behind it.
// A state is superseded whole on refresh or invalidation, never patched.
type SystemPromptState struct {
	PromptText string    `json:"prompt_text"`
	RuleIDs    []string  `json:"rule_ids"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Override is a caller-supplied prompt and rule-id set that bypasses the
// shared cache for exactly one orchestration call. It must never be
// written back into the cache.
type Override struct {
	RuleIDs    []string `json:"rule_ids"`
	PromptText string   `json:"prompt_text"`
}

// DefaultSystemPrompt is the hardcoded fallback used when the rule store
// is empty or unreachable.
const DefaultSystemPrompt = `You are a helpful community assistant. Answer questions accurately and concisely using the tools available to you. If you are not sure about something, say so instead of guessing.`
