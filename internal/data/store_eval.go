package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/eval"
	"github.com/stewardhq/steward/internal/prompt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVAL RUN OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreateEvalRun inserts a new run in its initial state.
func (s *Store) CreateEvalRun(ctx context.Context, run *eval.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	ruleIDs, err := json.Marshal(emptyIfNil(run.RuleIDs))
	if err != nil {
		return fmt.Errorf("marshal rule ids: %w", err)
	}
	snapshot, err := json.Marshal(run.RulesSnapshot)
	if err != nil {
		return fmt.Errorf("marshal rules snapshot: %w", err)
	}
	criteria, err := json.Marshal(run.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eval_runs (
			id, rule_ids, rules_snapshot, criteria, status,
			total_interactions, interactions_evaluated, interactions_affected,
			created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, string(ruleIDs), string(snapshot), string(criteria), string(run.Status),
		run.TotalInteractions, run.Evaluated, run.Affected,
		run.CreatedBy, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert eval run: %w", err)
	}
	return nil
}

// MarkRunRunning transitions a pending run to running.
func (s *Store) MarkRunRunning(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE eval_runs SET status = ?, started_at = ? WHERE id = ?
	`, string(eval.RunRunning), startedAt, id)
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// CompleteRun finalizes a run with its counters and aggregate metrics.
func (s *Store) CompleteRun(ctx context.Context, run *eval.Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE eval_runs SET
			status = ?, total_interactions = ?, interactions_evaluated = ?,
			interactions_affected = ?, metrics = ?, completed_at = ?
		WHERE id = ?
	`,
		string(eval.RunCompleted), run.TotalInteractions, run.Evaluated,
		run.Affected, string(metrics), time.Now(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// FailRun marks a run failed with the captured error message.
func (s *Store) FailRun(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE eval_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, string(eval.RunFailed), message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

// GetEvalRun retrieves a run by id.
func (s *Store) GetEvalRun(ctx context.Context, id string) (*eval.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_ids, rules_snapshot, criteria, status,
		       total_interactions, interactions_evaluated, interactions_affected,
		       metrics, error_message, created_by, created_at, started_at, completed_at
		FROM eval_runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("eval run not found: %s", id)
	}
	return run, err
}

// ListEvalRuns returns runs newest first.
func (s *Store) ListEvalRuns(ctx context.Context, limit, offset int) ([]*eval.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_ids, rules_snapshot, criteria, status,
		       total_interactions, interactions_evaluated, interactions_affected,
		       metrics, error_message, created_by, created_at, started_at, completed_at
		FROM eval_runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list eval runs: %w", err)
	}
	defer rows.Close()

	var runs []*eval.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*eval.Run, error) {
	var (
		run          eval.Run
		ruleIDs      string
		snapshot     string
		criteria     string
		status       string
		metrics      sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&run.ID, &ruleIDs, &snapshot, &criteria, &status,
		&run.TotalInteractions, &run.Evaluated, &run.Affected,
		&metrics, &errorMessage, &run.CreatedBy, &run.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = eval.RunStatus(status)
	run.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(ruleIDs), &run.RuleIDs); err != nil {
		return nil, fmt.Errorf("unmarshal rule ids: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &run.RulesSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal rules snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &run.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	if metrics.Valid && metrics.String != "" && metrics.String != "null" {
		run.Metrics = &eval.Summary{}
		if err := json.Unmarshal([]byte(metrics.String), run.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	return &run, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVAL RESULT OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// InsertEvalResult persists one replayed interaction.
func (s *Store) InsertEvalResult(ctx context.Context, res *eval.Result) error {
	if res.ID == "" || res.RunID == "" {
		return fmt.Errorf("result and run IDs cannot be empty")
	}

	origTools, err := json.Marshal(emptyIfNil(res.OriginalTools))
	if err != nil {
		return fmt.Errorf("marshal original tools: %w", err)
	}
	newTools, err := json.Marshal(emptyIfNil(res.NewTools))
	if err != nil {
		return fmt.Errorf("marshal new tools: %w", err)
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eval_results (
			id, run_id, message_id,
			original_input, original_response, original_tools, original_latency_ms,
			new_response, new_tools, new_latency_ms, new_input_tokens, new_output_tokens,
			routing_changed, response_changed, tools_changed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.ID, res.RunID, res.MessageID,
		res.OriginalInput, res.OriginalOutput, string(origTools), res.OriginalLatency,
		res.NewOutput, string(newTools), res.NewLatency, res.NewInputTokens, res.NewOutputTokens,
		boolToInt(res.RoutingChanged), boolToInt(res.ResponseChanged), boolToInt(res.ToolsChanged),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert eval result: %w", err)
	}
	return nil
}

// ListEvalResults returns a run's results, optionally only changed ones.
func (s *Store) ListEvalResults(ctx context.Context, runID string, changedOnly bool, limit, offset int) ([]*eval.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, run_id, message_id,
		       original_input, original_response, original_tools, original_latency_ms,
		       new_response, new_tools, new_latency_ms, new_input_tokens, new_output_tokens,
		       routing_changed, response_changed, tools_changed,
		       review_verdict, review_notes, reviewed_by, created_at
		FROM eval_results
		WHERE run_id = ?
	`
	if changedOnly {
		query += " AND (response_changed = 1 OR tools_changed = 1 OR routing_changed = 1)"
	}
	query += " ORDER BY created_at LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list eval results: %w", err)
	}
	defer rows.Close()

	var results []*eval.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetEvalResult retrieves one result by id.
func (s *Store) GetEvalResult(ctx context.Context, id string) (*eval.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, message_id,
		       original_input, original_response, original_tools, original_latency_ms,
		       new_response, new_tools, new_latency_ms, new_input_tokens, new_output_tokens,
		       routing_changed, response_changed, tools_changed,
		       review_verdict, review_notes, reviewed_by, created_at
		FROM eval_results WHERE id = ?
	`, id)

	res, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("eval result not found: %s", id)
	}
	return res, err
}

// AttachReview records a human verdict on a result. Aggregate run
// metrics are not recomputed.
func (s *Store) AttachReview(ctx context.Context, resultID string, verdict eval.ReviewVerdict, reviewer, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE eval_results SET
			review_verdict = ?, review_notes = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ?
	`, string(verdict), nullString(notes), reviewer, time.Now(), resultID)
	if err != nil {
		return fmt.Errorf("attach review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("eval result not found: %s", resultID)
	}
	return nil
}

func scanResult(row rowScanner) (*eval.Result, error) {
	var (
		res            eval.Result
		origTools      string
		newTools       string
		routingChanged int
		respChanged    int
		toolsChanged   int
		verdict        sql.NullString
		notes          sql.NullString
		reviewedBy     sql.NullString
	)
	err := row.Scan(
		&res.ID, &res.RunID, &res.MessageID,
		&res.OriginalInput, &res.OriginalOutput, &origTools, &res.OriginalLatency,
		&res.NewOutput, &newTools, &res.NewLatency, &res.NewInputTokens, &res.NewOutputTokens,
		&routingChanged, &respChanged, &toolsChanged,
		&verdict, &notes, &reviewedBy, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.RoutingChanged = routingChanged != 0
	res.ResponseChanged = respChanged != 0
	res.ToolsChanged = toolsChanged != 0
	res.ReviewVerdict = verdict.String
	res.ReviewNotes = notes.String
	res.ReviewedBy = reviewedBy.String
	if err := json.Unmarshal([]byte(origTools), &res.OriginalTools); err != nil {
		return nil, fmt.Errorf("unmarshal original tools: %w", err)
	}
	if err := json.Unmarshal([]byte(newTools), &res.NewTools); err != nil {
		return nil, fmt.Errorf("unmarshal new tools: %w", err)
	}
	return &res, nil
}

// SnapshotRules is a convenience used at run creation: it loads the
// rules by id and fails when any are missing.
func (s *Store) SnapshotRules(ctx context.Context, ids []string) ([]prompt.Rule, error) {
	rules, err := s.RulesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(rules) != len(ids) {
		found := make(map[string]struct{}, len(rules))
		for _, rule := range rules {
			found[rule.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return nil, fmt.Errorf("rule not found: %s", id)
			}
		}
	}
	return rules, nil
}
