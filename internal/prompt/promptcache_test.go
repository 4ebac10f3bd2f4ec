package prompt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/logging"
)

// countingStore is a RuleStore fake that counts fetches.
type countingStore struct {
	rules      []Rule
	err        error
	fetchCount int
}

func (s *countingStore) ActiveRules(context.Context) ([]Rule, error) {
	s.fetchCount++
	return s.rules, s.err
}

func (s *countingStore) RulesByIDs(_ context.Context, ids []string) ([]Rule, error) {
	var out []Rule
	for _, rule := range s.rules {
		for _, id := range ids {
			if rule.ID == id {
				out = append(out, rule)
			}
		}
	}
	return out, nil
}

func (s *countingStore) BuildSystemPrompt(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	text := "Rules:"
	for _, rule := range s.rules {
		text += "\n- " + rule.Content
	}
	return text, nil
}

func (s *countingStore) BuildSystemPromptFromRuleIDs(_ context.Context, ids []string) (string, error) {
	return fmt.Sprintf("Rules from %d ids", len(ids)), nil
}

func twoRules() []Rule {
	return []Rule{
		{ID: "r1", Content: "Be concise.", Active: true},
		{ID: "r2", Content: "Cite sources.", Active: true},
	}
}

func TestCache_ResolveCachesWithinTTL(t *testing.T) {
	store := &countingStore{rules: twoRules()}
	c := NewCache(store, logging.Nop())
	ctx := context.Background()

	first := c.Resolve(ctx)
	second := c.Resolve(ctx)

	assert.Equal(t, 1, store.fetchCount, "second resolve within TTL must hit the cache")
	assert.Equal(t, []string{"r1", "r2"}, first.RuleIDs)
	assert.Equal(t, first.PromptText, second.PromptText)
	assert.False(t, first.ExpiresAt.IsZero())
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	store := &countingStore{rules: twoRules()}
	c := NewCache(store, logging.Nop())
	ctx := context.Background()

	c.Resolve(ctx)
	c.Invalidate()
	c.Resolve(ctx)

	assert.Equal(t, 2, store.fetchCount)
}

func TestCache_TTLExpiryForcesRefetch(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := &countingStore{rules: twoRules()}
	c := NewCache(store, logging.Nop(), WithClock(clock))
	ctx := context.Background()

	c.Resolve(ctx)
	now = now.Add(DefaultTTL + time.Second)
	c.Resolve(ctx)

	assert.Equal(t, 2, store.fetchCount)
}

func TestCache_StoreErrorFallsBackWithoutCaching(t *testing.T) {
	store := &countingStore{err: fmt.Errorf("store down")}
	c := NewCache(store, logging.Nop())
	ctx := context.Background()

	state := c.Resolve(ctx)
	assert.Equal(t, DefaultSystemPrompt, state.PromptText)
	assert.Empty(t, state.RuleIDs)

	// The fallback is not cached: every call during the outage retries.
	c.Resolve(ctx)
	assert.Equal(t, 2, store.fetchCount)

	// Store recovers; the very next resolve picks up real rules.
	store.err = nil
	store.rules = twoRules()
	recovered := c.Resolve(ctx)
	require.Equal(t, []string{"r1", "r2"}, recovered.RuleIDs)
}

func TestCache_EmptyStoreFallsBack(t *testing.T) {
	store := &countingStore{}
	c := NewCache(store, logging.Nop())

	state := c.Resolve(context.Background())
	assert.Equal(t, DefaultSystemPrompt, state.PromptText)
	assert.Empty(t, state.RuleIDs)
}
