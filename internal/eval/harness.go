package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/orchestrator"
	"github.com/stewardhq/steward/internal/prompt"
)

// selectionFetchLimit bounds how many matching interactions are pulled
// from storage before sampling. The seeded ordering runs over this set,
// so it must comfortably exceed MaxSampleSize.
const selectionFetchLimit = 1000

// Store is the persistence surface the harness needs. *data.Store
// satisfies it.
type Store interface {
	SnapshotRules(ctx context.Context, ids []string) ([]prompt.Rule, error)
	BuildSystemPromptFromRuleIDs(ctx context.Context, ids []string) (string, error)

	SelectInteractions(ctx context.Context, criteria SelectionCriteria, fetchLimit int) ([]HistoricalInteraction, error)

	CreateEvalRun(ctx context.Context, run *Run) error
	MarkRunRunning(ctx context.Context, id string, startedAt time.Time) error
	CompleteRun(ctx context.Context, run *Run) error
	FailRun(ctx context.Context, id, message string) error
	GetEvalRun(ctx context.Context, id string) (*Run, error)
	ListEvalRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	InsertEvalResult(ctx context.Context, res *Result) error
	ListEvalResults(ctx context.Context, runID string, changedOnly bool, limit, offset int) ([]*Result, error)
	GetEvalResult(ctx context.Context, id string) (*Result, error)
	AttachReview(ctx context.Context, resultID string, verdict ReviewVerdict, reviewer, notes string) error
}

// Replayer re-executes one interaction. *orchestrator.Loop satisfies
// it; the replay loop must be built without user-scoped tool sets and
// without web search so historical inputs cannot act on live accounts.
type Replayer interface {
	ProcessMessage(ctx context.Context, userInput string, thread []llm.Message, override *prompt.Override) (*orchestrator.Result, error)
}

// Harness creates and executes replay runs. Runs execute in the
// background; callers poll GetRun for progress.
type Harness struct {
	store    Store
	replayer Replayer
	log      zerolog.Logger
	running  sync.WaitGroup
}

// NewHarness creates a replay harness over a store and a replay loop.
func NewHarness(store Store, replayer Replayer, log zerolog.Logger) *Harness {
	return &Harness{store: store, replayer: replayer, log: log}
}

// CreateAndStartRun snapshots the proposed rules, persists a pending
// run, and kicks off its execution in the background. The returned run
// reflects the pending state; poll GetRun for progress.
func (h *Harness) CreateAndStartRun(ctx context.Context, ruleIDs []string, criteria SelectionCriteria, createdBy string) (*Run, error) {
	if len(ruleIDs) == 0 {
		return nil, fmt.Errorf("eval run requires at least one rule id")
	}

	snapshot, err := h.store.SnapshotRules(ctx, ruleIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}

	run := &Run{
		ID:            uuid.NewString(),
		RuleIDs:       ruleIDs,
		RulesSnapshot: snapshot,
		Criteria:      criteria,
		Status:        RunPending,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now(),
	}
	if err := h.store.CreateEvalRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create eval run: %w", err)
	}

	// The run outlives the request that created it.
	h.running.Add(1)
	go func() {
		defer h.running.Done()
		h.execute(context.Background(), run)
	}()

	return run, nil
}

// Wait blocks until every run started by this harness has reached a
// terminal state. Callers must drain it before tearing down the store
// the harness writes to.
func (h *Harness) Wait() {
	h.running.Wait()
}

// execute drives one run from pending to a terminal state. Individual
// interaction failures are logged and skipped; only failures that make
// the whole run meaningless mark it failed.
func (h *Harness) execute(ctx context.Context, run *Run) {
	log := h.log.With().Str("run_id", run.ID).Logger()

	if err := h.store.MarkRunRunning(ctx, run.ID, time.Now()); err != nil {
		log.Error().Err(err).Msg("failed to mark run running")
		h.fail(ctx, run.ID, fmt.Sprintf("mark running: %v", err))
		return
	}

	promptText, err := h.store.BuildSystemPromptFromRuleIDs(ctx, run.RuleIDs)
	if err != nil {
		h.fail(ctx, run.ID, fmt.Sprintf("build system prompt: %v", err))
		return
	}

	interactions, err := h.store.SelectInteractions(ctx, run.Criteria, selectionFetchLimit)
	if err != nil {
		h.fail(ctx, run.ID, fmt.Sprintf("select interactions: %v", err))
		return
	}
	sample := sampleInteractions(interactions, run.Criteria)
	run.TotalInteractions = len(sample)

	if len(sample) == 0 {
		// An empty selection is a valid, immediately-complete run.
		run.Metrics = &Summary{}
		if err := h.store.CompleteRun(ctx, run); err != nil {
			log.Error().Err(err).Msg("failed to complete empty run")
		}
		log.Info().Msg("eval run completed with no matching interactions")
		return
	}

	override := &prompt.Override{RuleIDs: run.RuleIDs, PromptText: promptText}

	var (
		responseChanged int
		toolsChanged    int
		routingChanged  int
		sumLatency      int64
		sumInputTokens  int
		sumOutputTokens int
	)

	for _, in := range sample {
		start := time.Now()
		res, err := h.replayer.ProcessMessage(ctx, in.UserInput, nil, override)
		if err != nil {
			log.Warn().Err(err).Str("message_id", in.MessageID).Msg("replay failed, skipping interaction")
			continue
		}
		latency := time.Since(start).Milliseconds()

		result := &Result{
			ID:              uuid.NewString(),
			RunID:           run.ID,
			MessageID:       in.MessageID,
			OriginalInput:   in.UserInput,
			OriginalOutput:  in.Response,
			OriginalTools:   in.ToolsUsed,
			OriginalLatency: in.LatencyMs,
			NewOutput:       res.Text,
			NewTools:        res.ToolsUsed,
			NewLatency:      latency,
			NewInputTokens:  res.Usage.InputTokens,
			NewOutputTokens: res.Usage.OutputTokens,
			CreatedAt:       time.Now(),
		}
		result.ResponseChanged = compareResponses(in.Response, res.Text)
		result.ToolsChanged = compareTools(in.ToolsUsed, res.ToolsUsed)
		// Tool selection is the routing signal available at replay time.
		result.RoutingChanged = result.ToolsChanged

		if err := h.store.InsertEvalResult(ctx, result); err != nil {
			log.Error().Err(err).Str("message_id", in.MessageID).Msg("failed to persist result, skipping interaction")
			continue
		}

		run.Evaluated++
		if result.ResponseChanged || result.ToolsChanged || result.RoutingChanged {
			run.Affected++
		}
		if result.ResponseChanged {
			responseChanged++
		}
		if result.ToolsChanged {
			toolsChanged++
		}
		if result.RoutingChanged {
			routingChanged++
		}
		sumLatency += latency
		sumInputTokens += res.Usage.InputTokens
		sumOutputTokens += res.Usage.OutputTokens
	}

	run.Metrics = &Summary{}
	if run.Evaluated > 0 {
		n := float64(run.Evaluated)
		run.Metrics.ResponseChangedPct = 100 * float64(responseChanged) / n
		run.Metrics.ToolsChangedPct = 100 * float64(toolsChanged) / n
		run.Metrics.RoutingChangedPct = 100 * float64(routingChanged) / n
		run.Metrics.AvgNewLatencyMs = float64(sumLatency) / n
		run.Metrics.AvgInputTokens = float64(sumInputTokens) / n
		run.Metrics.AvgOutputTokens = float64(sumOutputTokens) / n
	}

	if err := h.store.CompleteRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("failed to complete run")
		h.fail(ctx, run.ID, fmt.Sprintf("complete run: %v", err))
		return
	}

	log.Info().
		Int("total", run.TotalInteractions).
		Int("evaluated", run.Evaluated).
		Int("affected", run.Affected).
		Msg("eval run completed")
}

func (h *Harness) fail(ctx context.Context, runID, message string) {
	if err := h.store.FailRun(ctx, runID, message); err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("failed to record run failure")
	}
}

// GetRun retrieves a run by id.
func (h *Harness) GetRun(ctx context.Context, id string) (*Run, error) {
	return h.store.GetEvalRun(ctx, id)
}

// ListRuns returns runs newest first.
func (h *Harness) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	return h.store.ListEvalRuns(ctx, limit, offset)
}

// Results returns a page of a run's results, optionally only those
// where behavior changed.
func (h *Harness) Results(ctx context.Context, runID string, changedOnly bool, limit, offset int) ([]*Result, error) {
	return h.store.ListEvalResults(ctx, runID, changedOnly, limit, offset)
}

// SubmitReview attaches a human verdict to one result of a completed
// run. The computed change flags and run metrics are never revised.
func (h *Harness) SubmitReview(ctx context.Context, resultID string, verdict ReviewVerdict, reviewer, notes string) error {
	if !verdict.IsValid() {
		return fmt.Errorf("invalid review verdict %q", verdict)
	}
	res, err := h.store.GetEvalResult(ctx, resultID)
	if err != nil {
		return err
	}
	run, err := h.store.GetEvalRun(ctx, res.RunID)
	if err != nil {
		return err
	}
	if run.Status != RunCompleted {
		return fmt.Errorf("run %s is %s, only completed runs accept reviews", run.ID, run.Status)
	}
	return h.store.AttachReview(ctx, resultID, verdict, reviewer, notes)
}
