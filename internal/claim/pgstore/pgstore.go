// Package pgstore provides PostgreSQL implementations of the claim,
// interrupt, and session stores on a shared pool and schema.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/arbiter/internal/a2ui"
	"github.com/linnemanlabs/arbiter/internal/claim"
)

var tracer = otel.Tracer("github.com/linnemanlabs/arbiter/internal/claim/pgstore")

//go:embed schema.sql
var schema string

// Store persists claims, interrupts, and conversation turns in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store on the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

const claimColumns = `id, policy_number, claim_type, claim_amount, incident_date, description,
	fraud_risk_score, documents_uploaded, status, created_by_id, assigned_approver_id,
	version, metadata, created_at, updated_at`

// CreateClaim inserts a new claim and fills in its assigned ID and version.
func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	ctx, span := startSpan(ctx, "pgstore.CreateClaim", "INSERT")
	defer span.End()

	metadataJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return fail(span, err)
	}

	query := `INSERT INTO claims (
		policy_number, claim_type, claim_amount, incident_date, description,
		fraud_risk_score, documents_uploaded, status, created_by_id, assigned_approver_id,
		version, metadata, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$12,$13)
	RETURNING id`

	err = s.pool.QueryRow(ctx, query,
		c.PolicyNumber, string(c.ClaimType), c.ClaimAmount, c.IncidentDate, c.Description,
		c.FraudRiskScore, c.DocumentsUploaded, string(c.Status), c.CreatedByID, c.AssignedApproverID,
		metadataJSON, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fail(span, fmt.Errorf("insert claim: %w", err))
	}

	c.Version = 1
	return nil
}

// GetClaim retrieves a claim by ID.
func (s *Store) GetClaim(ctx context.Context, id int64) (*claim.Claim, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetClaim", "SELECT")
	defer span.End()

	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`
	c, err := scanClaimRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if c == nil {
		return nil, false, nil
	}
	return c, true, nil
}

// PutClaim writes the claim back under optimistic versioning: the update
// only lands when the stored version still matches c.Version.
func (s *Store) PutClaim(ctx context.Context, c *claim.Claim) error {
	ctx, span := startSpan(ctx, "pgstore.PutClaim", "UPDATE")
	defer span.End()

	metadataJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return fail(span, err)
	}

	query := `UPDATE claims SET
		policy_number        = $1,
		claim_type           = $2,
		claim_amount         = $3,
		incident_date        = $4,
		description          = $5,
		fraud_risk_score     = $6,
		documents_uploaded   = $7,
		status               = $8,
		assigned_approver_id = $9,
		metadata             = $10,
		updated_at           = $11,
		version              = version + 1
	WHERE id = $12 AND version = $13`

	tag, err := s.pool.Exec(ctx, query,
		c.PolicyNumber, string(c.ClaimType), c.ClaimAmount, c.IncidentDate, c.Description,
		c.FraudRiskScore, c.DocumentsUploaded, string(c.Status), c.AssignedApproverID,
		metadataJSON, c.UpdatedAt, c.ID, c.Version,
	)
	if err != nil {
		return fail(span, fmt.Errorf("update claim: %w", err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return fail(span, fmt.Errorf("check claim: %w", err))
		}
		if !exists {
			return fail(span, fmt.Errorf("claim %d: %w", c.ID, claim.ErrNotFound))
		}
		return fail(span, fmt.Errorf("claim %d version %d superseded: %w", c.ID, c.Version, claim.ErrVersionConflict))
	}

	c.Version++
	return nil
}

// ListClaims returns claims newest-first. userID 0 means all claims.
func (s *Store) ListClaims(ctx context.Context, userID int64) ([]*claim.Claim, error) {
	ctx, span := startSpan(ctx, "pgstore.ListClaims", "SELECT")
	defer span.End()

	query := `SELECT ` + claimColumns + ` FROM claims`
	args := []any{}
	if userID != 0 {
		query += ` WHERE created_by_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query claims: %w", err))
	}
	defer rows.Close()

	var out []*claim.Claim
	for rows.Next() {
		c, err := scanClaimRow(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate claims: %w", err))
	}
	return out, nil
}

// AppendDecision inserts an immutable decision record and fills in its ID.
func (s *Store) AppendDecision(ctx context.Context, d *claim.Decision) error {
	ctx, span := startSpan(ctx, "pgstore.AppendDecision", "INSERT")
	defer span.End()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO claim_decisions (claim_id, decision, reason, decided_by, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5::timestamptz, '0001-01-01 00:00:00+00'), now()))
		 RETURNING id, created_at`,
		d.ClaimID, string(d.Kind), d.Reason, d.DecidedBy, d.CreatedAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fail(span, fmt.Errorf("insert decision: %w", err))
	}
	return nil
}

// ListDecisions returns a claim's decisions oldest-first.
func (s *Store) ListDecisions(ctx context.Context, claimID int64) ([]*claim.Decision, error) {
	ctx, span := startSpan(ctx, "pgstore.ListDecisions", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, claim_id, decision, reason, decided_by, created_at
		 FROM claim_decisions WHERE claim_id = $1 ORDER BY id`,
		claimID,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query decisions: %w", err))
	}
	defer rows.Close()

	var out []*claim.Decision
	for rows.Next() {
		var (
			d    claim.Decision
			kind string
		)
		if err := rows.Scan(&d.ID, &d.ClaimID, &kind, &d.Reason, &d.DecidedBy, &d.CreatedAt); err != nil {
			return nil, fail(span, fmt.Errorf("scan decision: %w", err))
		}
		d.Kind = claim.DecisionKind(kind)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate decisions: %w", err))
	}
	return out, nil
}

// AppendMessage inserts a conversational message and fills in its ID.
func (s *Store) AppendMessage(ctx context.Context, m *claim.Message) error {
	ctx, span := startSpan(ctx, "pgstore.AppendMessage", "INSERT")
	defer span.End()

	var componentsJSON []byte
	if len(m.Components) > 0 {
		b, err := json.Marshal(m.Components)
		if err != nil {
			return fail(span, fmt.Errorf("marshal components: %w", err))
		}
		componentsJSON = b
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO claim_messages (claim_id, sender_type, sender_id, content, components, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6::timestamptz, '0001-01-01 00:00:00+00'), now()))
		 RETURNING id, created_at`,
		m.ClaimID, string(m.Sender), m.SenderID, m.Content, componentsJSON, m.CreatedAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fail(span, fmt.Errorf("insert message: %w", err))
	}
	return nil
}

// ListClaimMessages returns a claim's messages oldest-first.
func (s *Store) ListClaimMessages(ctx context.Context, claimID int64) ([]*claim.Message, error) {
	ctx, span := startSpan(ctx, "pgstore.ListClaimMessages", "SELECT")
	defer span.End()

	return s.listMessages(ctx, span,
		`SELECT id, claim_id, sender_type, sender_id, content, components, created_at
		 FROM claim_messages WHERE claim_id = $1 ORDER BY id`,
		claimID,
	)
}

// ListUserMessages returns a user's general-chat messages oldest-first.
func (s *Store) ListUserMessages(ctx context.Context, userID int64) ([]*claim.Message, error) {
	ctx, span := startSpan(ctx, "pgstore.ListUserMessages", "SELECT")
	defer span.End()

	return s.listMessages(ctx, span,
		`SELECT id, claim_id, sender_type, sender_id, content, components, created_at
		 FROM claim_messages WHERE claim_id IS NULL AND sender_id = $1 ORDER BY id`,
		userID,
	)
}

// ClearMessages deletes a chat history: the claim's when claimID is set,
// otherwise the user's general chat.
func (s *Store) ClearMessages(ctx context.Context, claimID *int64, userID int64) error {
	ctx, span := startSpan(ctx, "pgstore.ClearMessages", "DELETE")
	defer span.End()

	var err error
	if claimID != nil {
		_, err = s.pool.Exec(ctx, `DELETE FROM claim_messages WHERE claim_id = $1`, *claimID)
	} else {
		_, err = s.pool.Exec(ctx, `DELETE FROM claim_messages WHERE claim_id IS NULL AND sender_id = $1`, userID)
	}
	if err != nil {
		return fail(span, fmt.Errorf("delete messages: %w", err))
	}
	return nil
}

func (s *Store) listMessages(ctx context.Context, span trace.Span, query string, arg any) ([]*claim.Message, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	var out []*claim.Message
	for rows.Next() {
		var (
			m              claim.Message
			sender         string
			componentsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.ClaimID, &sender, &m.SenderID, &m.Content, &componentsJSON, &m.CreatedAt); err != nil {
			return nil, fail(span, fmt.Errorf("scan message: %w", err))
		}
		m.Sender = claim.SenderKind(sender)
		if len(componentsJSON) > 0 {
			var components []a2ui.Component
			if err := json.Unmarshal(componentsJSON, &components); err != nil {
				return nil, fail(span, fmt.Errorf("unmarshal components for message %d: %w", m.ID, err))
			}
			m.Components = components
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}

// scanClaimRow scans a single row into a claim. Returns (nil, nil) when no
// row is found.
func scanClaimRow(row pgx.Row) (*claim.Claim, error) {
	var (
		c            claim.Claim
		claimType    string
		status       string
		metadataJSON []byte
	)

	err := row.Scan(
		&c.ID, &c.PolicyNumber, &claimType, &c.ClaimAmount, &c.IncidentDate, &c.Description,
		&c.FraudRiskScore, &c.DocumentsUploaded, &status, &c.CreatedByID, &c.AssignedApproverID,
		&c.Version, &metadataJSON, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}

	c.ClaimType = claim.Type(claimType)
	c.Status = claim.Status(status)

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for claim %d: %w", c.ID, err)
		}
	}

	return &c, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}
