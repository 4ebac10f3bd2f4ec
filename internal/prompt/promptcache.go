package prompt

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stewardhq/steward/internal/cache"
)

// DefaultTTL is how long a resolved system prompt is served before the
// rule store is consulted again.
const DefaultTTL = 5 * time.Minute

// slotKey addresses the single prompt state this process maintains.
const slotKey = "system_prompt"

// Cache maintains one cached SystemPromptState per process. Resolve
// serves the cached state inside the TTL; Invalidate drops it and must
// be called after any external mutation of the rule store.
type Cache struct {
	store RuleStore
	slot  *cache.Cache[SystemPromptState]
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default 5-minute TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates the prompt cache over a rule store.
func NewCache(store RuleStore, log zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.slot = cache.New(c.ttl, cache.WithClock[SystemPromptState](cache.Clock(c.now)))
	return c
}

// Resolve returns the current system prompt state. The fallback state is
// never cached: during a store outage every call retries the store, so
// recovery needs no invalidation.
func (c *Cache) Resolve(ctx context.Context) SystemPromptState {
	if state, ok := c.slot.Get(slotKey); ok {
		return state
	}

	rules, err := c.store.ActiveRules(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("rule store unavailable, using default system prompt")
		return c.fallback()
	}
	if len(rules) == 0 {
		return c.fallback()
	}

	text, err := c.store.BuildSystemPrompt(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("system prompt build failed, using default")
		return c.fallback()
	}

	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}

	state := SystemPromptState{
		PromptText: text,
		RuleIDs:    ids,
		ExpiresAt:  c.now().Add(c.ttl),
	}
	c.slot.Set(slotKey, state)
	return state
}

// Invalidate drops the cached state unconditionally. Safe to call
// concurrently with in-flight Resolve calls; last write wins.
func (c *Cache) Invalidate() {
	c.slot.Delete(slotKey)
}

func (c *Cache) fallback() SystemPromptState {
	return SystemPromptState{
		PromptText: DefaultSystemPrompt,
		RuleIDs:    []string{},
	}
}
