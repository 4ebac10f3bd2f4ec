package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/eval"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATION HISTORY OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// RecordInteraction persists one processed conversational turn.
func (s *Store) RecordInteraction(ctx context.Context, in *eval.HistoricalInteraction) error {
	if in.MessageID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}

	toolsJSON, err := json.Marshal(emptyIfNil(in.ToolsUsed))
	if err != nil {
		return fmt.Errorf("marshal tools: %w", err)
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var rating any
	if in.Rating != nil {
		rating = *in.Rating
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_history (
			message_id, thread_id, channel, user_input, response,
			tools_used, rating, flagged, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.MessageID, nullString(in.ThreadID), in.Channel, in.UserInput, in.Response,
		string(toolsJSON), rating, boolToInt(in.Flagged), in.LatencyMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// SelectInteractions returns historical interactions matching the
// criteria, unordered. Ordering and sample capping are the harness's
// concern; the limit here is only a fetch bound.
func (s *Store) SelectInteractions(ctx context.Context, criteria eval.SelectionCriteria, fetchLimit int) ([]eval.HistoricalInteraction, error) {
	var (
		where []string
		args  []any
	)

	if criteria.MinRating != nil {
		where = append(where, "rating >= ?")
		args = append(args, *criteria.MinRating)
	}
	if criteria.MaxRating != nil {
		where = append(where, "rating <= ?")
		args = append(args, *criteria.MaxRating)
	}
	if criteria.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *criteria.Since)
	}
	if criteria.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *criteria.Until)
	}
	if criteria.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, criteria.Channel)
	}
	if criteria.FlaggedOnly {
		where = append(where, "flagged = 1")
	}

	query := `
		SELECT message_id, thread_id, channel, user_input, response,
		       tools_used, rating, flagged, latency_ms, created_at
		FROM conversation_history
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if fetchLimit > 0 {
		query += " LIMIT ?"
		args = append(args, fetchLimit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []eval.HistoricalInteraction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		// Tools-used overlap is a set predicate; easier here than in SQL
		// against a JSON column.
		if len(criteria.ToolsUsed) > 0 && !toolsOverlap(in.ToolsUsed, criteria.ToolsUsed) {
			continue
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInteraction(rows *sql.Rows) (eval.HistoricalInteraction, error) {
	var (
		in        eval.HistoricalInteraction
		threadID  sql.NullString
		toolsJSON string
		rating    sql.NullInt64
		flagged   int
	)
	if err := rows.Scan(
		&in.MessageID, &threadID, &in.Channel, &in.UserInput, &in.Response,
		&toolsJSON, &rating, &flagged, &in.LatencyMs, &in.CreatedAt,
	); err != nil {
		return in, fmt.Errorf("scan interaction: %w", err)
	}
	in.ThreadID = threadID.String
	in.Flagged = flagged != 0
	if rating.Valid {
		r := int(rating.Int64)
		in.Rating = &r
	}
	if err := json.Unmarshal([]byte(toolsJSON), &in.ToolsUsed); err != nil {
		return in, fmt.Errorf("unmarshal tools: %w", err)
	}
	return in, nil
}

// toolsOverlap reports whether the two name lists share any element.
func toolsOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, name := range a {
		set[name] = struct{}{}
	}
	for _, name := range b {
		if _, ok := set[name]; ok {
			return true
		}
	}
	return false
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
