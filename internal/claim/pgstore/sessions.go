package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/arbiter/internal/llm"
	"github.com/linnemanlabs/arbiter/internal/session"
)

// Append records one conversation turn under the session key.
func (s *Store) Append(ctx context.Context, key string, turn *session.Turn) error {
	ctx, span := startSpan(ctx, "pgstore.AppendTurn", "INSERT")
	defer span.End()

	contentJSON, err := json.Marshal(turn.Content)
	if err != nil {
		return fail(span, fmt.Errorf("marshal turn content: %w", err))
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_turns (session_key, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		key, turn.Role, contentJSON, ts,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert turn: %w", err))
	}
	return nil
}

// History replays a session's turns in append order.
func (s *Store) History(ctx context.Context, key string) ([]*session.Turn, error) {
	ctx, span := startSpan(ctx, "pgstore.SessionHistory", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT role, content, created_at FROM session_turns WHERE session_key = $1 ORDER BY id`,
		key,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query turns: %w", err))
	}
	defer rows.Close()

	var out []*session.Turn
	for rows.Next() {
		var (
			t           session.Turn
			contentJSON []byte
		)
		if err := rows.Scan(&t.Role, &contentJSON, &t.Timestamp); err != nil {
			return nil, fail(span, fmt.Errorf("scan turn: %w", err))
		}
		var content []llm.ContentBlock
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			return nil, fail(span, fmt.Errorf("unmarshal turn content: %w", err))
		}
		t.Content = content
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate turns: %w", err))
	}
	return out, nil
}

// Clear deletes a session's history.
func (s *Store) Clear(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, "pgstore.ClearSession", "DELETE")
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM session_turns WHERE session_key = $1`, key); err != nil {
		return fail(span, fmt.Errorf("delete turns: %w", err))
	}
	return nil
}
