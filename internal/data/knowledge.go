package data

import (
	"context"
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE LOOKUPS
// Store implements tools.KnowledgeBase over past assistant responses, so
// the local binary can answer questions without a platform backend.
// ═══════════════════════════════════════════════════════════════════════════════

// Search returns past responses whose input or output matches the query.
func (s *Store) Search(ctx context.Context, query string, limit int) (string, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_input, response FROM conversation_history
		WHERE user_input LIKE ? OR response LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return "", fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var input, response string
		if err := rows.Scan(&input, &response); err != nil {
			return "", fmt.Errorf("scan history: %w", err)
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", input, response)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "No matching past discussions found.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RecentDigest summarizes the most recent interactions.
func (s *Store) RecentDigest(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_input, response FROM conversation_history
		ORDER BY created_at DESC
		LIMIT 10
	`)
	if err != nil {
		return "", fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString("Recent community activity:\n")
	count := 0
	for rows.Next() {
		var input, response string
		if err := rows.Scan(&input, &response); err != nil {
			return "", fmt.Errorf("scan history: %w", err)
		}
		fmt.Fprintf(&b, "- %s\n", firstLine(input))
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if count == 0 {
		return "No recent activity recorded.", nil
	}
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
