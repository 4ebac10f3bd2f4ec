package router

import (
	"strings"
	"time"
)

// reactMaxLength bounds messages eligible for an emoji reaction. Longer
// messages carry enough content to deserve classification.
const reactMaxLength = 20

// ignorePhrases are acknowledgments that never need a response. Matching
// is exact after trimming and lowercasing, with one trailing period
// tolerated.
var ignorePhrases = map[string]struct{}{
	"ok":          {},
	"okay":        {},
	"k":           {},
	"kk":          {},
	"thanks":      {},
	"thank you":   {},
	"thx":         {},
	"ty":          {},
	"got it":      {},
	"sounds good": {},
	"cool":        {},
	"nice":        {},
	"great":       {},
	"perfect":     {},
	"sure":        {},
	"yep":         {},
	"yup":         {},
	"no problem":  {},
	"np":          {},
	"will do":     {},
	"understood":  {},
	"noted":       {},
	"alright":     {},
	"good":        {},
	"done":        {},
}

// reactPattern pairs a substring with the emoji to react with.
type reactPattern struct {
	pattern string
	emoji   string
}

// reactPatterns are checked in order; the first substring hit wins.
var reactPatterns = []reactPattern{
	{"good morning", "sunny"},
	{"good night", "crescent_moon"},
	{"congratulations", "tada"},
	{"congrats", "tada"},
	{"welcome", "wave"},
	{"hello", "wave"},
	{"howdy", "wave"},
	{"hey", "wave"},
	{"hi", "wave"},
	{"lgtm", "thumbsup"},
	{"love it", "heart"},
	{"awesome", "fire"},
}

// PatternMatcher is the deterministic quick-match stage. It is pure and
// performs no I/O; absence of a match is a first-class return value.
type PatternMatcher struct{}

// NewPatternMatcher creates the quick-match stage.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match returns an execution plan for messages the quick-match can
// decide, or nil to signal that the classifier must run. It never fails.
func (m *PatternMatcher) Match(rc RoutingContext) *ExecutionPlan {
	start := time.Now()

	normalized := strings.ToLower(strings.TrimSpace(rc.Message))
	// Tolerate a single trailing period: "ok." is still "ok".
	trimmed := strings.TrimSuffix(normalized, ".")

	if _, ok := ignorePhrases[trimmed]; ok {
		return stamp(&ExecutionPlan{
			Action: ActionIgnore,
			Reason: "Simple acknowledgment",
		}, start)
	}

	if len(normalized) < reactMaxLength {
		for _, rp := range reactPatterns {
			if strings.Contains(normalized, rp.pattern) {
				return stamp(&ExecutionPlan{
					Action: ActionReact,
					Emoji:  rp.emoji,
				}, start)
			}
		}
	}

	return nil
}

// stamp attaches quick-match metadata to a decided plan.
func stamp(plan *ExecutionPlan, start time.Time) *ExecutionPlan {
	plan.Metadata = Metadata{
		Method:    DecisionQuickMatch,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	return plan
}
