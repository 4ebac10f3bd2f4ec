package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/toolset"
)

// failingClient fails every call. Quick-match cases must never reach it.
type failingClient struct {
	calls int
}

func (f *failingClient) Complete(context.Context, *llm.Request) (*llm.Response, error) {
	f.calls++
	return nil, fmt.Errorf("network access attempted")
}

func TestPatternMatcher_Ignore(t *testing.T) {
	m := NewPatternMatcher()

	for _, msg := range []string{"ok", "ok.", "OK", " Thanks ", "sounds good", "got it."} {
		t.Run(msg, func(t *testing.T) {
			plan := m.Match(RoutingContext{Message: msg})
			require.NotNil(t, plan)
			assert.Equal(t, ActionIgnore, plan.Action)
			assert.Equal(t, "Simple acknowledgment", plan.Reason)
			assert.Equal(t, DecisionQuickMatch, plan.Metadata.Method)
		})
	}
}

func TestPatternMatcher_React(t *testing.T) {
	tests := []struct {
		message string
		emoji   string
	}{
		{"hey", "wave"},
		{"Hello everyone!", "wave"},
		{"good morning", "sunny"},
		{"congrats!!", "tada"},
	}

	m := NewPatternMatcher()
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			plan := m.Match(RoutingContext{Message: tt.message})
			require.NotNil(t, plan)
			assert.Equal(t, ActionReact, plan.Action)
			assert.Equal(t, tt.emoji, plan.Emoji)
		})
	}
}

func TestPatternMatcher_LongMessagesNeverReact(t *testing.T) {
	m := NewPatternMatcher()
	plan := m.Match(RoutingContext{Message: "hey, can you explain how billing renewals work?"})
	assert.Nil(t, plan, "substantive message must go to the classifier")
}

func TestPatternMatcher_NoMatchIsNil(t *testing.T) {
	m := NewPatternMatcher()
	assert.Nil(t, m.Match(RoutingContext{Message: "what is our refund policy?"}))
	assert.Nil(t, m.Match(RoutingContext{Message: ""}))
}

func TestPatternMatcher_Deterministic(t *testing.T) {
	m := NewPatternMatcher()
	rc := RoutingContext{Message: "hey"}

	first := m.Match(rc)
	second := m.Match(rc)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.Emoji, second.Emoji)
}

func TestRouter_QuickMatchPerformsNoNetworkAccess(t *testing.T) {
	client := &failingClient{}
	classifier := NewClassifier(client, toolset.Default(), nil, nil, "fast-model", logging.Nop())
	r := New(NewPatternMatcher(), classifier)

	plan := r.Route(context.Background(), RoutingContext{Message: "ok"})
	assert.Equal(t, ActionIgnore, plan.Action)
	assert.Equal(t, 0, client.calls, "quick-match path must not call the model")
}
