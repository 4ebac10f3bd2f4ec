// Package router turns inbound messages into execution plans. It uses
// the fast/slow pattern: a deterministic quick-match first, then an
// LLM-based classifier for everything the quick-match cannot decide.
package router

// Action is the router's decision for one inbound message.
type Action string

const (
	// ActionIgnore means no response is warranted.
	ActionIgnore Action = "ignore"

	// ActionReact means respond with an emoji reaction only.
	ActionReact Action = "react"

	// ActionClarify means ask the user a clarifying question.
	ActionClarify Action = "clarify"

	// ActionRespond means run the full tool-use conversation.
	ActionRespond Action = "respond"
)

// IsValid reports whether a is one of the four known actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionIgnore, ActionReact, ActionClarify, ActionRespond:
		return true
	}
	return false
}

// DecisionMethod records which stage produced a plan.
type DecisionMethod string

const (
	DecisionQuickMatch DecisionMethod = "quick_match"
	DecisionLLM        DecisionMethod = "llm"
)

// ChannelKind identifies the source channel of a message.
type ChannelKind string

const (
	ChannelChat  ChannelKind = "chat"
	ChannelEmail ChannelKind = "email"
)

// MemberContext is an immutable snapshot of what is known about the
// sender at routing time.
type MemberContext struct {
	MemberID string   `json:"member_id"`
	IsMember bool     `json:"is_member"`
	IsAdmin  bool     `json:"is_admin"`
	Insights []string `json:"insights,omitempty"`
}

// RoutingContext is the input to one routing call. It is not mutated.
type RoutingContext struct {
	Message  string         `json:"message"`
	Channel  ChannelKind    `json:"channel"`
	Threaded bool           `json:"threaded"`
	Member   *MemberContext `json:"member,omitempty"`
}

// Metadata describes how a plan was produced. It is attached once the
// variant is decided and never mutated afterward.
type Metadata struct {
	Method            DecisionMethod `json:"method"`
	LatencyMs         int64          `json:"latency_ms,omitempty"`
	InputTokens       int            `json:"input_tokens,omitempty"`
	OutputTokens      int            `json:"output_tokens,omitempty"`
	Model             string         `json:"model,omitempty"`
	RequiresPrecision bool           `json:"requires_precision"`
}

// ExecutionPlan is the structured routing decision. Which payload fields
// are meaningful depends on Action: Reason for ignore (and as an
// explanation on fallback plans), Emoji for react, Question for clarify,
// ToolSets for respond.
type ExecutionPlan struct {
	Action   Action   `json:"action"`
	Reason   string   `json:"reason,omitempty"`
	Emoji    string   `json:"emoji,omitempty"`
	Question string   `json:"question,omitempty"`
	ToolSets []string `json:"tool_sets,omitempty"`
	Metadata Metadata `json:"metadata"`
}
