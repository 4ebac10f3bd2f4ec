package router

import (
	"context"
)

// Router is the two-stage message router: deterministic quick-match
// first, LLM classification only when the quick-match abstains.
type Router struct {
	quick      *PatternMatcher
	classifier *Classifier
}

// New creates a Router from its two stages.
func New(quick *PatternMatcher, classifier *Classifier) *Router {
	return &Router{quick: quick, classifier: classifier}
}

// QuickMatch runs only the deterministic stage. A nil result means the
// classifier must decide.
func (r *Router) QuickMatch(rc RoutingContext) *ExecutionPlan {
	return r.quick.Match(rc)
}

// Route produces the execution plan for one inbound message. It never
// returns an error; classification failures fail open inside the
// classifier.
func (r *Router) Route(ctx context.Context, rc RoutingContext) ExecutionPlan {
	if plan := r.quick.Match(rc); plan != nil {
		return *plan
	}
	return r.classifier.Classify(ctx, rc)
}
