// Package eval implements the replay harness: it re-executes historical
// interactions under a proposed rule set and measures behavioral drift
// before the rules are deployed.
package eval

import (
	"time"

	"github.com/stewardhq/steward/internal/prompt"
)

// RunStatus is the eval-run state machine. Transitions are
// pending → running → completed | failed; terminal states never change.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ReviewVerdict is a human judgment on one replayed result.
type ReviewVerdict string

const (
	VerdictImproved  ReviewVerdict = "improved"
	VerdictSame      ReviewVerdict = "same"
	VerdictWorse     ReviewVerdict = "worse"
	VerdictUncertain ReviewVerdict = "uncertain"
)

// IsValid reports whether v is a known verdict.
func (v ReviewVerdict) IsValid() bool {
	switch v {
	case VerdictImproved, VerdictSame, VerdictWorse, VerdictUncertain:
		return true
	}
	return false
}

// SelectionCriteria filters which historical interactions a run replays.
type SelectionCriteria struct {
	MinRating   *int       `json:"min_rating,omitempty"`
	MaxRating   *int       `json:"max_rating,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
	Until       *time.Time `json:"until,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	ToolsUsed   []string   `json:"tools_used,omitempty"` // overlap, not exact match
	FlaggedOnly bool       `json:"flagged_only"`
	SampleSize  int        `json:"sample_size,omitempty"` // capped at MaxSampleSize
	Seed        *int64     `json:"seed,omitempty"`        // reproducible ordering when set
}

// HistoricalInteraction is a read-only projection of one past turn.
type HistoricalInteraction struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Channel   string    `json:"channel"`
	UserInput string    `json:"user_input"`
	Response  string    `json:"response"`
	ToolsUsed []string  `json:"tools_used"`
	Rating    *int      `json:"rating,omitempty"`
	Flagged   bool      `json:"flagged"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates a completed run.
type Summary struct {
	ResponseChangedPct float64 `json:"response_changed_pct"`
	ToolsChangedPct    float64 `json:"tools_changed_pct"`
	RoutingChangedPct  float64 `json:"routing_changed_pct"`
	AvgNewLatencyMs    float64 `json:"avg_new_latency_ms"`
	AvgInputTokens     float64 `json:"avg_input_tokens"`
	AvgOutputTokens    float64 `json:"avg_output_tokens"`
}

// Run is one replay job. Created once, mutated only by its executor,
// terminal once completed or failed.
type Run struct {
	ID                string            `json:"id"`
	RuleIDs           []string          `json:"rule_ids"`
	RulesSnapshot     []prompt.Rule     `json:"rules_snapshot"` // content at creation time, for audit
	Criteria          SelectionCriteria `json:"criteria"`
	Status            RunStatus         `json:"status"`
	TotalInteractions int               `json:"total_interactions"`
	Evaluated         int               `json:"interactions_evaluated"`
	Affected          int               `json:"interactions_affected"`
	Metrics           *Summary          `json:"metrics,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CreatedBy         string            `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// Result is one replayed interaction. Reviewable after the fact but
// never re-computed.
type Result struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	MessageID       string    `json:"message_id"`
	OriginalInput   string    `json:"original_input"`
	OriginalOutput  string    `json:"original_response"`
	OriginalTools   []string  `json:"original_tools"`
	OriginalLatency int64     `json:"original_latency_ms"`
	NewOutput       string    `json:"new_response"`
	NewTools        []string  `json:"new_tools"`
	NewLatency      int64     `json:"new_latency_ms"`
	NewInputTokens  int       `json:"new_input_tokens"`
	NewOutputTokens int       `json:"new_output_tokens"`
	RoutingChanged  bool      `json:"routing_changed"`
	ResponseChanged bool      `json:"response_changed"`
	ToolsChanged    bool      `json:"tools_changed"`
	ReviewVerdict   string    `json:"review_verdict,omitempty"`
	ReviewNotes     string    `json:"review_notes,omitempty"`
	ReviewedBy      string    `json:"reviewed_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
