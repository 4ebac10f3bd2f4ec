// Package data provides tests for the SQLite persistence layer.
package data

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/eval"
	"github.com/stewardhq/steward/internal/prompt"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE LIFECYCLE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestNewStore(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(filepath.Join(tmpDir, "steward.db")); os.IsNotExist(err) {
			t.Error("database file not created")
		}
		if err := store.Health(); err != nil {
			t.Errorf("health check failed: %v", err)
		}
	})

	t.Run("creates nested directory structure", func(t *testing.T) {
		nested := filepath.Join(t.TempDir(), "deep", "nested", "steward")
		store, err := NewStore(nested)
		if err != nil {
			t.Fatalf("NewStore failed for nested dir: %v", err)
		}
		defer store.Close()
	})

	t.Run("closed database fails health check", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		store.Close()
		if err := store.Health(); err == nil {
			t.Error("Health() should return error for closed database")
		}
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// RULE STORE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestRules(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mustCreateRule := func(t *testing.T, id, title, content string, active bool) {
		t.Helper()
		err := store.CreateRule(ctx, &prompt.Rule{ID: id, Title: title, Content: content, Active: active})
		if err != nil {
			t.Fatalf("CreateRule(%s) failed: %v", id, err)
		}
	}

	mustCreateRule(t, "rule-tone", "Tone", "Keep replies friendly and brief.", true)
	mustCreateRule(t, "rule-billing", "Billing", "Never guess billing amounts.", true)
	mustCreateRule(t, "rule-draft", "Draft", "Unreleased rule.", false)

	t.Run("rejects empty ID", func(t *testing.T) {
		if err := store.CreateRule(ctx, &prompt.Rule{Content: "no id"}); err == nil {
			t.Error("expected error for empty rule ID")
		}
	})

	t.Run("active rules exclude inactive", func(t *testing.T) {
		rules, err := store.ActiveRules(ctx)
		if err != nil {
			t.Fatalf("ActiveRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 active rules, got %d", len(rules))
		}
		for _, rule := range rules {
			if rule.ID == "rule-draft" {
				t.Error("inactive rule returned by ActiveRules")
			}
		}
	})

	t.Run("system prompt renders active rules", func(t *testing.T) {
		text, err := store.BuildSystemPrompt(ctx)
		if err != nil {
			t.Fatalf("BuildSystemPrompt failed: %v", err)
		}
		for _, want := range []string{"community assistant", "Tone: Keep replies friendly", "Billing: Never guess"} {
			if !strings.Contains(text, want) {
				t.Errorf("prompt missing %q:\n%s", want, text)
			}
		}
		if strings.Contains(text, "Unreleased rule") {
			t.Error("prompt includes inactive rule content")
		}
	})

	t.Run("prompt from explicit ids includes inactive", func(t *testing.T) {
		text, err := store.BuildSystemPromptFromRuleIDs(ctx, []string{"rule-draft"})
		if err != nil {
			t.Fatalf("BuildSystemPromptFromRuleIDs failed: %v", err)
		}
		if !strings.Contains(text, "Unreleased rule") {
			t.Errorf("override prompt missing proposed rule content:\n%s", text)
		}
	})

	t.Run("toggle rule active", func(t *testing.T) {
		if err := store.SetRuleActive(ctx, "rule-draft", true); err != nil {
			t.Fatalf("SetRuleActive failed: %v", err)
		}
		rules, err := store.ActiveRules(ctx)
		if err != nil {
			t.Fatalf("ActiveRules failed: %v", err)
		}
		if len(rules) != 3 {
			t.Errorf("expected 3 active rules after toggle, got %d", len(rules))
		}
		if err := store.SetRuleActive(ctx, "rule-draft", false); err != nil {
			t.Fatalf("SetRuleActive revert failed: %v", err)
		}
	})

	t.Run("toggle unknown rule errors", func(t *testing.T) {
		if err := store.SetRuleActive(ctx, "no-such-rule", true); err == nil {
			t.Error("expected error for unknown rule")
		}
	})

	t.Run("snapshot fails on missing id", func(t *testing.T) {
		if _, err := store.SnapshotRules(ctx, []string{"rule-tone", "ghost"}); err == nil {
			t.Error("expected error when snapshotting unknown rule")
		}
		rules, err := store.SnapshotRules(ctx, []string{"rule-tone", "rule-draft"})
		if err != nil {
			t.Fatalf("SnapshotRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Errorf("expected 2 snapshotted rules, got %d", len(rules))
		}
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATION HISTORY TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestConversationHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []eval.HistoricalInteraction{
		{
			MessageID: "msg-1", Channel: "chat", UserInput: "when is the meetup",
			Response: "Thursday 6pm", ToolsUsed: []string{"search_knowledge"},
			Rating: intPtr(5), LatencyMs: 800, CreatedAt: base,
		},
		{
			MessageID: "msg-2", ThreadID: "thread-9", Channel: "email", UserInput: "billing question",
			Response: "Your balance is settled", ToolsUsed: []string{"get_billing_status"},
			Rating: intPtr(2), LatencyMs: 1500, CreatedAt: base.Add(24 * time.Hour),
		},
		{
			MessageID: "msg-3", Channel: "chat", UserInput: "hi there",
			Response: "Hello!", Flagged: true, LatencyMs: 300, CreatedAt: base.Add(48 * time.Hour),
		},
	}
	for i := range seed {
		if err := store.RecordInteraction(ctx, &seed[i]); err != nil {
			t.Fatalf("RecordInteraction(%s) failed: %v", seed[i].MessageID, err)
		}
	}

	t.Run("rejects empty message ID", func(t *testing.T) {
		err := store.RecordInteraction(ctx, &eval.HistoricalInteraction{Channel: "chat"})
		if err == nil {
			t.Error("expected error for empty message ID")
		}
	})

	selectIDs := func(t *testing.T, criteria eval.SelectionCriteria) map[string]bool {
		t.Helper()
		got, err := store.SelectInteractions(ctx, criteria, 100)
		if err != nil {
			t.Fatalf("SelectInteractions failed: %v", err)
		}
		ids := make(map[string]bool, len(got))
		for _, in := range got {
			ids[in.MessageID] = true
		}
		return ids
	}

	t.Run("no criteria returns everything", func(t *testing.T) {
		ids := selectIDs(t, eval.SelectionCriteria{})
		if len(ids) != 3 {
			t.Errorf("expected 3 interactions, got %d", len(ids))
		}
	})

	t.Run("rating range", func(t *testing.T) {
		ids := selectIDs(t, eval.SelectionCriteria{MinRating: intPtr(1), MaxRating: intPtr(3)})
		if len(ids) != 1 || !ids["msg-2"] {
			t.Errorf("expected only msg-2, got %v", ids)
		}
	})

	t.Run("channel filter", func(t *testing.T) {
		ids := selectIDs(t, eval.SelectionCriteria{Channel: "email"})
		if len(ids) != 1 || !ids["msg-2"] {
			t.Errorf("expected only msg-2, got %v", ids)
		}
	})

	t.Run("time window", func(t *testing.T) {
		since := base.Add(12 * time.Hour)
		until := base.Add(36 * time.Hour)
		ids := selectIDs(t, eval.SelectionCriteria{Since: &since, Until: &until})
		if len(ids) != 1 || !ids["msg-2"] {
			t.Errorf("expected only msg-2, got %v", ids)
		}
	})

	t.Run("flagged only", func(t *testing.T) {
		ids := selectIDs(t, eval.SelectionCriteria{FlaggedOnly: true})
		if len(ids) != 1 || !ids["msg-3"] {
			t.Errorf("expected only msg-3, got %v", ids)
		}
	})

	t.Run("tools overlap", func(t *testing.T) {
		ids := selectIDs(t, eval.SelectionCriteria{ToolsUsed: []string{"get_billing_status", "flag_content"}})
		if len(ids) != 1 || !ids["msg-2"] {
			t.Errorf("expected only msg-2, got %v", ids)
		}
	})

	t.Run("round trip preserves fields", func(t *testing.T) {
		got, err := store.SelectInteractions(ctx, eval.SelectionCriteria{Channel: "email"}, 100)
		if err != nil {
			t.Fatalf("SelectInteractions failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 interaction, got %d", len(got))
		}
		in := got[0]
		if in.ThreadID != "thread-9" {
			t.Errorf("thread ID mismatch: %q", in.ThreadID)
		}
		if in.Rating == nil || *in.Rating != 2 {
			t.Errorf("rating mismatch: %v", in.Rating)
		}
		if len(in.ToolsUsed) != 1 || in.ToolsUsed[0] != "get_billing_status" {
			t.Errorf("tools mismatch: %v", in.ToolsUsed)
		}
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVAL RUN TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestEvalRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRule(ctx, &prompt.Rule{ID: "rule-1", Title: "Tone", Content: "Be brief.", Active: true}); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	snapshot, err := store.SnapshotRules(ctx, []string{"rule-1"})
	if err != nil {
		t.Fatalf("SnapshotRules failed: %v", err)
	}

	run := &eval.Run{
		ID:            "run-1",
		RuleIDs:       []string{"rule-1"},
		RulesSnapshot: snapshot,
		Criteria:      eval.SelectionCriteria{Channel: "chat", SampleSize: 50, Seed: int64Ptr(7)},
		Status:        eval.RunPending,
		CreatedBy:     "tester",
		CreatedAt:     time.Now(),
	}
	if err := store.CreateEvalRun(ctx, run); err != nil {
		t.Fatalf("CreateEvalRun failed: %v", err)
	}

	t.Run("round trip pending run", func(t *testing.T) {
		got, err := store.GetEvalRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetEvalRun failed: %v", err)
		}
		if got.Status != eval.RunPending {
			t.Errorf("expected pending, got %s", got.Status)
		}
		if len(got.RulesSnapshot) != 1 || got.RulesSnapshot[0].Content != "Be brief." {
			t.Errorf("snapshot not preserved: %+v", got.RulesSnapshot)
		}
		if got.Criteria.Seed == nil || *got.Criteria.Seed != 7 {
			t.Errorf("criteria not preserved: %+v", got.Criteria)
		}
	})

	t.Run("mark running", func(t *testing.T) {
		if err := store.MarkRunRunning(ctx, "run-1", time.Now()); err != nil {
			t.Fatalf("MarkRunRunning failed: %v", err)
		}
		got, _ := store.GetEvalRun(ctx, "run-1")
		if got.Status != eval.RunRunning {
			t.Errorf("expected running, got %s", got.Status)
		}
		if got.StartedAt == nil {
			t.Error("started_at not recorded")
		}
	})

	t.Run("results insert and list", func(t *testing.T) {
		results := []*eval.Result{
			{
				ID: "res-1", RunID: "run-1", MessageID: "msg-1",
				OriginalOutput: "same", NewOutput: "same",
				OriginalTools: []string{"search_knowledge"}, NewTools: []string{"search_knowledge"},
				CreatedAt: time.Now(),
			},
			{
				ID: "res-2", RunID: "run-1", MessageID: "msg-2",
				OriginalOutput: "old", NewOutput: "completely different now",
				ResponseChanged: true, ToolsChanged: true, RoutingChanged: true,
				CreatedAt: time.Now(),
			},
		}
		for _, res := range results {
			if err := store.InsertEvalResult(ctx, res); err != nil {
				t.Fatalf("InsertEvalResult(%s) failed: %v", res.ID, err)
			}
		}

		all, err := store.ListEvalResults(ctx, "run-1", false, 100, 0)
		if err != nil {
			t.Fatalf("ListEvalResults failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 results, got %d", len(all))
		}

		changed, err := store.ListEvalResults(ctx, "run-1", true, 100, 0)
		if err != nil {
			t.Fatalf("ListEvalResults(changedOnly) failed: %v", err)
		}
		if len(changed) != 1 || changed[0].ID != "res-2" {
			t.Errorf("expected only res-2, got %+v", changed)
		}
	})

	t.Run("complete run persists metrics", func(t *testing.T) {
		run.TotalInteractions = 2
		run.Evaluated = 2
		run.Affected = 1
		run.Metrics = &eval.Summary{ResponseChangedPct: 50, ToolsChangedPct: 50, RoutingChangedPct: 50}
		if err := store.CompleteRun(ctx, run); err != nil {
			t.Fatalf("CompleteRun failed: %v", err)
		}
		got, _ := store.GetEvalRun(ctx, "run-1")
		if got.Status != eval.RunCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.CompletedAt == nil {
			t.Error("completed_at not recorded")
		}
		if got.Metrics == nil || got.Metrics.ResponseChangedPct != 50 {
			t.Errorf("metrics not preserved: %+v", got.Metrics)
		}
	})

	t.Run("attach review", func(t *testing.T) {
		if err := store.AttachReview(ctx, "res-2", eval.VerdictImproved, "alex", "better answer"); err != nil {
			t.Fatalf("AttachReview failed: %v", err)
		}
		got, err := store.GetEvalResult(ctx, "res-2")
		if err != nil {
			t.Fatalf("GetEvalResult failed: %v", err)
		}
		if got.ReviewVerdict != string(eval.VerdictImproved) || got.ReviewedBy != "alex" {
			t.Errorf("review not preserved: %+v", got)
		}
		if err := store.AttachReview(ctx, "no-such-result", eval.VerdictSame, "alex", ""); err == nil {
			t.Error("expected error for unknown result")
		}
	})

	t.Run("fail run", func(t *testing.T) {
		other := &eval.Run{
			ID: "run-2", RuleIDs: []string{"rule-1"}, RulesSnapshot: snapshot,
			Status: eval.RunPending, CreatedBy: "tester", CreatedAt: time.Now(),
		}
		if err := store.CreateEvalRun(ctx, other); err != nil {
			t.Fatalf("CreateEvalRun failed: %v", err)
		}
		if err := store.FailRun(ctx, "run-2", "model endpoint unreachable"); err != nil {
			t.Fatalf("FailRun failed: %v", err)
		}
		got, _ := store.GetEvalRun(ctx, "run-2")
		if got.Status != eval.RunFailed {
			t.Errorf("expected failed, got %s", got.Status)
		}
		if got.ErrorMessage != "model endpoint unreachable" {
			t.Errorf("error message not preserved: %q", got.ErrorMessage)
		}
	})

	t.Run("list runs newest first", func(t *testing.T) {
		runs, err := store.ListEvalRuns(ctx, 10, 0)
		if err != nil {
			t.Fatalf("ListEvalRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
	})
}
