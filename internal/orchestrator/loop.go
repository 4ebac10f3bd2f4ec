// Package orchestrator drives the bounded model/tool conversation. One
// Loop instance owns the tool registry for one conversation; the loop
// alternates model calls and tool execution until the model produces a
// text completion or the iteration bound is hit.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/prompt"
	"github.com/stewardhq/steward/internal/tools"
	"github.com/stewardhq/steward/internal/track"
)

const (
	// DefaultMaxIterations bounds the model/tool loop. It is the sole
	// safeguard against runaway conversations.
	DefaultMaxIterations = 10

	// DefaultMaxTokens is the per-call output budget.
	DefaultMaxTokens = 1024

	// maxIterationsApology is returned when the bound is exhausted.
	maxIterationsApology = "I'm sorry, I wasn't able to finish working through that request. Please try asking again, perhaps with a narrower question."

	// FlagMaxIterations is the machine-readable reason attached to an
	// exhausted conversation.
	FlagMaxIterations = "Max tool iterations reached"
)

// PromptResolver supplies the system prompt when no override is given.
// *prompt.Cache satisfies it.
type PromptResolver interface {
	Resolve(ctx context.Context) prompt.SystemPromptState
}

// Result is the outcome of one orchestrated conversation. It is always
// fully populated; degraded outcomes are signalled through Flagged.
type Result struct {
	Text          string    `json:"text"`
	ToolsUsed     []string  `json:"tools_used"`
	Flagged       bool      `json:"flagged"`
	FlagReason    string    `json:"flag_reason,omitempty"`
	ActiveRuleIDs []string  `json:"active_rule_ids,omitempty"`
	Usage         llm.Usage `json:"usage"`
}

// Loop orchestrates one conversation at a time against a model endpoint
// and a per-conversation tool registry.
type Loop struct {
	client        llm.Client
	prompts       PromptResolver
	registry      *tools.Registry
	tracker       track.Tracker
	model         string
	maxIterations int
	maxTokens     int
	log           zerolog.Logger
}

// Config configures a Loop.
type Config struct {
	Model         string
	MaxIterations int
	MaxTokens     int
	Tracker       track.Tracker
}

// NewLoop creates an orchestrator over a model endpoint, prompt
// resolver, and tool registry.
func NewLoop(client llm.Client, prompts PromptResolver, registry *tools.Registry, cfg Config, log zerolog.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Tracker == nil {
		cfg.Tracker = track.NopTracker{}
	}
	return &Loop{
		client:        client,
		prompts:       prompts,
		registry:      registry,
		tracker:       cfg.Tracker,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
		log:           log,
	}
}

// ProcessMessage runs the bounded conversation for one user input.
// thread carries optional prior turns; override, when non-nil, supplies
// the system prompt for this call without touching the shared cache.
// The returned error covers model transport failures only; tool
// failures are contained in-band and the iteration bound is reported
// through Result.Flagged.
func (l *Loop) ProcessMessage(ctx context.Context, userInput string, thread []llm.Message, override *prompt.Override) (*Result, error) {
	systemText, ruleIDs := l.resolvePrompt(ctx, override)

	conversation := make([]llm.Message, 0, len(thread)+1)
	conversation = append(conversation, thread...)
	conversation = append(conversation, llm.TextMessage(llm.RoleUser, userInput))

	var (
		toolsUsed []string
		usage     llm.Usage
	)

	for i := 0; i < l.maxIterations; i++ {
		start := time.Now()
		resp, err := l.client.Complete(ctx, &llm.Request{
			Model:     l.model,
			System:    systemText,
			Messages:  conversation,
			Tools:     l.registry.Definitions(),
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("model call (iteration %d): %w", i+1, err)
		}

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		l.tracker.Track(track.Event{
			Purpose:      "conversation",
			Model:        resp.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Latency:      time.Since(start),
		})

		if !resp.WantsTools() {
			return &Result{
				Text:          resp.Text(),
				ToolsUsed:     toolsUsed,
				ActiveRuleIDs: ruleIDs,
				Usage:         usage,
			}, nil
		}

		uses := resp.ToolUses()
		results := l.executeTools(ctx, uses)
		for _, use := range uses {
			toolsUsed = appendUnique(toolsUsed, use.Name)
		}

		conversation = append(conversation,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.ToolResultsMessage(results),
		)
	}

	l.log.Warn().Int("iterations", l.maxIterations).Msg("tool loop exhausted without completion")
	return &Result{
		Text:          maxIterationsApology,
		ToolsUsed:     toolsUsed,
		Flagged:       true,
		FlagReason:    FlagMaxIterations,
		ActiveRuleIDs: ruleIDs,
		Usage:         usage,
	}, nil
}

// resolvePrompt picks the override when present, else the shared cache.
// Overrides never write back into the cache.
func (l *Loop) resolvePrompt(ctx context.Context, override *prompt.Override) (string, []string) {
	if override != nil {
		return override.PromptText, override.RuleIDs
	}
	state := l.prompts.Resolve(ctx)
	return state.PromptText, state.RuleIDs
}

// executeTools runs the requested calls and reassembles results in the
// order the calls were issued. Calls within one turn are independent and
// dispatched concurrently; a failing handler is converted into an
// in-band error result and never aborts the turn.
func (l *Loop) executeTools(ctx context.Context, uses []llm.ToolUse) []llm.ToolCallResult {
	results := make([]llm.ToolCallResult, len(uses))

	var g errgroup.Group
	for i, use := range uses {
		i, use := i, use
		g.Go(func() error {
			results[i] = l.executeOne(ctx, use)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are in-band

	return results
}

// executeOne runs a single tool call with panic and error containment.
func (l *Loop) executeOne(ctx context.Context, use llm.ToolUse) (result llm.ToolCallResult) {
	result = llm.ToolCallResult{ToolUseID: use.ID}

	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("tool", use.Name).Any("panic", r).Msg("tool handler panicked")
			result.Content = fmt.Sprintf("Tool %q failed: %v", use.Name, r)
			result.IsError = true
		}
	}()

	tool, ok := l.registry.Get(use.Name)
	if !ok {
		result.Content = fmt.Sprintf("Unknown tool %q", use.Name)
		result.IsError = true
		return result
	}

	input := map[string]any{}
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &input); err != nil {
			result.Content = fmt.Sprintf("Invalid input for tool %q: %v", use.Name, err)
			result.IsError = true
			return result
		}
	}

	output, err := tool.Handler(ctx, input)
	if err != nil {
		l.log.Debug().Str("tool", use.Name).Err(err).Msg("tool handler returned error")
		result.Content = err.Error()
		result.IsError = true
		return result
	}

	result.Content = output
	return result
}

// appendUnique appends name if not already present, preserving order of
// first use.
func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
