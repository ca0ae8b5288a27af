package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linnemanlabs/arbiter/internal/interrupt"
)

// Put upserts an interrupt.
func (s *Store) Put(ctx context.Context, in *interrupt.Interrupt) error {
	ctx, span := startSpan(ctx, "pgstore.PutInterrupt", "UPSERT")
	defer span.End()

	reasonJSON, err := json.Marshal(in.Reason)
	if err != nil {
		return fail(span, fmt.Errorf("marshal reason: %w", err))
	}

	var resolvedAt *time.Time
	if !in.ResolvedAt.IsZero() {
		resolvedAt = &in.ResolvedAt
	}

	query := `INSERT INTO interrupts (id, kind, reason, state, response, created_at, resolved_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (id) DO UPDATE SET
		kind        = EXCLUDED.kind,
		reason      = EXCLUDED.reason,
		state       = EXCLUDED.state,
		response    = EXCLUDED.response,
		resolved_at = EXCLUDED.resolved_at`

	_, err = s.pool.Exec(ctx, query,
		in.ID, in.Kind, reasonJSON, string(in.State), in.Response, in.CreatedAt, resolvedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert interrupt: %w", err))
	}
	return nil
}

// Get retrieves an interrupt by id.
func (s *Store) Get(ctx context.Context, id string) (*interrupt.Interrupt, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetInterrupt", "SELECT")
	defer span.End()

	in, err := scanInterruptRow(s.pool.QueryRow(ctx,
		`SELECT id, kind, reason, state, response, created_at, resolved_at
		 FROM interrupts WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if in == nil {
		return nil, false, nil
	}
	return in, true, nil
}

// Resolve atomically transitions OPEN -> RESOLVED. The WHERE clause on
// state makes the first caller win; later callers fall through to the
// existence check.
func (s *Store) Resolve(ctx context.Context, id, response string) (*interrupt.Interrupt, error) {
	ctx, span := startSpan(ctx, "pgstore.ResolveInterrupt", "UPDATE")
	defer span.End()

	in, err := scanInterruptRow(s.pool.QueryRow(ctx,
		`UPDATE interrupts SET state = $2, response = $3, resolved_at = now()
		 WHERE id = $1 AND state = $4
		 RETURNING id, kind, reason, state, response, created_at, resolved_at`,
		id, string(interrupt.StateResolved), response, string(interrupt.StateOpen)))
	if err != nil {
		return nil, fail(span, err)
	}
	if in != nil {
		return in, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interrupts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fail(span, fmt.Errorf("check interrupt: %w", err))
	}
	if !exists {
		return nil, fail(span, interrupt.ErrNotFound)
	}
	return nil, fail(span, interrupt.ErrAlreadyResolved)
}

// Delete removes the interrupt. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "pgstore.DeleteInterrupt", "DELETE")
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM interrupts WHERE id = $1`, id); err != nil {
		return fail(span, fmt.Errorf("delete interrupt: %w", err))
	}
	return nil
}

func scanInterruptRow(row pgx.Row) (*interrupt.Interrupt, error) {
	var (
		in         interrupt.Interrupt
		reasonJSON []byte
		state      string
		resolvedAt *time.Time
	)

	err := row.Scan(&in.ID, &in.Kind, &reasonJSON, &state, &in.Response, &in.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan interrupt: %w", err)
	}

	in.State = interrupt.State(state)
	if resolvedAt != nil {
		in.ResolvedAt = *resolvedAt
	}
	if err := json.Unmarshal(reasonJSON, &in.Reason); err != nil {
		return nil, fmt.Errorf("unmarshal reason for interrupt %s: %w", in.ID, err)
	}

	return &in, nil
}
