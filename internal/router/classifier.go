package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/toolset"
	"github.com/stewardhq/steward/internal/track"
)

const (
	// messageTruncateLen bounds how much of the message the classifier
	// prompt carries.
	messageTruncateLen = 500

	// classifierMaxTokens is the output budget for the routing call. The
	// response is one small JSON object; anything larger is malformed.
	classifierMaxTokens = 256

	// maxPromptInsights caps how many member insights the prompt lists.
	maxPromptInsights = 5

	defaultReason   = "No reason provided"
	defaultEmoji    = "wave"
	defaultQuestion = "Could you say a bit more about what you need?"

	// fallbackToolSet is selected when classification fails open.
	fallbackToolSet = "knowledge"
)

// Classifier is the LLM routing stage. It builds a constrained prompt,
// calls a fast model, and parses the response into an execution plan.
// Classification failures fail open to a Respond plan: the system favors
// attempting to help over silently ignoring a user.
type Classifier struct {
	client  llm.Client
	catalog *toolset.Catalog
	hints   toolset.HintSource
	tracker track.Tracker
	model   string
	log     zerolog.Logger
}

// NewClassifier creates the LLM routing stage. hints may be nil, in
// which case tool-set summaries come from the catalog alone.
func NewClassifier(client llm.Client, catalog *toolset.Catalog, hints toolset.HintSource, tracker track.Tracker, model string, log zerolog.Logger) *Classifier {
	if tracker == nil {
		tracker = track.NopTracker{}
	}
	return &Classifier{
		client:  client,
		catalog: catalog,
		hints:   hints,
		tracker: tracker,
		model:   model,
		log:     log,
	}
}

// Classify produces an execution plan for a message the quick-match
// could not decide. It never returns an error: every failure mode maps
// to a plan.
func (c *Classifier) Classify(ctx context.Context, rc RoutingContext) ExecutionPlan {
	start := time.Now()

	req := &llm.Request{
		Model:     c.model,
		Messages:  []llm.Message{llm.TextMessage(llm.RoleUser, c.buildPrompt(rc))},
		MaxTokens: classifierMaxTokens,
	}

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		c.log.Warn().Err(err).Msg("classification call failed, failing open")
		// Transport failure: requires_precision keeps its default rather
		// than being re-derived from the fallback tool set. Kept as-is
		// deliberately; see DESIGN.md.
		plan := ExecutionPlan{
			Action:   ActionRespond,
			Reason:   fmt.Sprintf("Classifier error: %v", err),
			ToolSets: []string{fallbackToolSet},
		}
		plan.Metadata = Metadata{
			Method:    DecisionLLM,
			LatencyMs: time.Since(start).Milliseconds(),
			Model:     c.model,
		}
		return plan
	}

	c.trackCall(resp, start)

	plan, parseErr := c.parsePlan(resp.Text())
	if parseErr != nil {
		c.log.Warn().Err(parseErr).Msg("classifier output rejected, failing open")
		plan = ExecutionPlan{
			Action:   ActionRespond,
			Reason:   fmt.Sprintf("Parse failure: %v", parseErr),
			ToolSets: []string{fallbackToolSet},
		}
	}

	plan.Metadata = Metadata{
		Method:            DecisionLLM,
		LatencyMs:         time.Since(start).Milliseconds(),
		InputTokens:       resp.Usage.InputTokens,
		OutputTokens:      resp.Usage.OutputTokens,
		Model:             resp.Model,
		RequiresPrecision: plan.Action == ActionRespond && c.catalog.RequiresPrecision(plan.ToolSets),
	}
	return plan
}

// trackCall emits the fire-and-forget performance event for a routing
// call. Track never blocks or fails.
func (c *Classifier) trackCall(resp *llm.Response, start time.Time) {
	c.tracker.Track(track.Event{
		Purpose:      "router",
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Latency:      time.Since(start),
	})
}

// buildPrompt assembles the single classification prompt.
func (c *Classifier) buildPrompt(rc RoutingContext) string {
	var b strings.Builder

	b.WriteString("You route inbound messages for a community assistant. ")
	b.WriteString("Decide what to do with the message below.\n\n")

	b.WriteString("Sender context:\n")
	if rc.Member != nil {
		fmt.Fprintf(&b, "- Member: %t\n", rc.Member.IsMember)
		fmt.Fprintf(&b, "- Admin: %t\n", rc.Member.IsAdmin)
		if rc.Member.IsAdmin {
			b.WriteString("The sender is an administrator; administrative tool sets may be selected.\n")
		} else if !rc.Member.IsMember {
			b.WriteString("The sender is not a member; prefer public knowledge and avoid member-only tool sets.\n")
		}
	} else {
		b.WriteString("- Unknown sender\n")
	}
	fmt.Fprintf(&b, "- Channel: %s\n", rc.Channel)
	if rc.Threaded {
		b.WriteString("- The message is a reply inside an existing thread.\n")
	}

	if rc.Member != nil && len(rc.Member.Insights) > 0 {
		b.WriteString("\nKnown about this user:\n")
		insights := rc.Member.Insights
		if len(insights) > maxPromptInsights {
			insights = insights[:maxPromptInsights]
		}
		for _, insight := range insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	b.WriteString("\nAvailable tool sets:\n")
	b.WriteString(c.catalog.Describe(c.hints))

	b.WriteString("\nMessage:\n")
	b.WriteString(truncate(rc.Message, messageTruncateLen))

	b.WriteString("\n\nRespond with exactly one JSON object, no prose, in one of these shapes:\n")
	b.WriteString(`{"action":"ignore","reason":"<why>"}` + "\n")
	b.WriteString(`{"action":"react","emoji":"<emoji name>"}` + "\n")
	b.WriteString(`{"action":"clarify","question":"<question for the user>"}` + "\n")
	b.WriteString(`{"action":"respond","tool_sets":["<tool set name>", ...]}` + "\n")

	return b.String()
}

// parsePlan decodes the model's output into a plan. Missing sub-fields
// are coerced to safe defaults; a missing or unknown action, non-JSON
// output, or an unknown tool-set name rejects the whole output.
func (c *Classifier) parsePlan(text string) (ExecutionPlan, error) {
	raw := extractJSON(text)
	if raw == "" || !gjson.Valid(raw) {
		return ExecutionPlan{}, fmt.Errorf("no JSON object in model output")
	}

	action := Action(gjson.Get(raw, "action").String())
	if !action.IsValid() {
		return ExecutionPlan{}, fmt.Errorf("unknown action %q", gjson.Get(raw, "action").String())
	}

	plan := ExecutionPlan{Action: action}
	switch action {
	case ActionIgnore:
		plan.Reason = stringOr(raw, "reason", defaultReason)
	case ActionReact:
		plan.Emoji = stringOr(raw, "emoji", defaultEmoji)
	case ActionClarify:
		plan.Question = stringOr(raw, "question", defaultQuestion)
	case ActionRespond:
		for _, v := range gjson.Get(raw, "tool_sets").Array() {
			if name := v.String(); name != "" {
				plan.ToolSets = append(plan.ToolSets, name)
			}
		}
		if len(plan.ToolSets) == 0 {
			plan.ToolSets = []string{fallbackToolSet}
		}
		if err := c.catalog.Validate(plan.ToolSets); err != nil {
			return ExecutionPlan{}, err
		}
	}
	return plan, nil
}

// stringOr reads a string field with a default for missing/empty values.
func stringOr(raw, path, fallback string) string {
	if v := gjson.Get(raw, path).String(); v != "" {
		return v
	}
	return fallback
}

// extractJSON strips optional code fences and returns the first JSON
// object in text, or "" when none is present.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// truncate cuts s to at most n bytes, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
