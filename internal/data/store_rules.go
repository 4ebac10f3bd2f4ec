package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/prompt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RULE STORE OPERATIONS
// Store implements prompt.RuleStore.
// ═══════════════════════════════════════════════════════════════════════════════

// CreateRule inserts a behavior rule.
func (s *Store) CreateRule(ctx context.Context, rule *prompt.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule ID cannot be empty")
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, title, content, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Title, rule.Content, boolToInt(rule.Active), now, now)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// SetRuleActive toggles a rule. Callers must invalidate the prompt cache
// after any mutation here.
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), time.Now(), id)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

// ActiveRules implements prompt.RuleStore.
func (s *Store) ActiveRules(ctx context.Context) ([]prompt.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, active, updated_at
		FROM rules
		WHERE active = 1
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRules returns every rule, active or not, oldest first.
func (s *Store) ListRules(ctx context.Context) ([]prompt.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, active, updated_at
		FROM rules
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// RulesByIDs implements prompt.RuleStore. Unknown ids are omitted.
func (s *Store) RulesByIDs(ctx context.Context, ids []string) ([]prompt.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, content, active, updated_at
		FROM rules
		WHERE id IN (%s)
		ORDER BY created_at
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query rules by ids: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// BuildSystemPrompt implements prompt.RuleStore: it renders the prompt
// text from all active rules.
func (s *Store) BuildSystemPrompt(ctx context.Context) (string, error) {
	rules, err := s.ActiveRules(ctx)
	if err != nil {
		return "", err
	}
	return renderRules(rules), nil
}

// BuildSystemPromptFromRuleIDs implements prompt.RuleStore for override
// construction.
func (s *Store) BuildSystemPromptFromRuleIDs(ctx context.Context, ids []string) (string, error) {
	rules, err := s.RulesByIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	return renderRules(rules), nil
}

// renderRules turns rules into the system prompt text.
func renderRules(rules []prompt.Rule) string {
	var b strings.Builder
	b.WriteString("You are a helpful community assistant. Follow these behavior rules:\n")
	for _, rule := range rules {
		b.WriteString("\n- ")
		if rule.Title != "" {
			b.WriteString(rule.Title)
			b.WriteString(": ")
		}
		b.WriteString(rule.Content)
	}
	return b.String()
}

func scanRules(rows *sql.Rows) ([]prompt.Rule, error) {
	var rules []prompt.Rule
	for rows.Next() {
		var rule prompt.Rule
		var active int
		if err := rows.Scan(&rule.ID, &rule.Title, &rule.Content, &active, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Active = active != 0
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
