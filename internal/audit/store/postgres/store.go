// Package postgres provides the durable audit store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veristry/internal/audit"
	id "veristry/pkg/domain"
)

// Store implements audit.Store on an append-only audit_records table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store. The caller owns the *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the table this store appends to. Shipped here so deployments and
// integration tests create the same shape.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL,
	dependency TEXT NOT NULL,
	operation TEXT NOT NULL,
	action TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT '',
	evidence_hash TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_request_idx ON audit_records (request_id, recorded_at);
`

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	query := `
		INSERT INTO audit_records
			(id, request_id, dependency, operation, action, outcome, evidence_hash, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		uuid.UUID(rec.RequestID),
		rec.Dependency,
		rec.Operation,
		string(rec.Action),
		rec.Outcome,
		rec.EvidenceHash,
		rec.Duration.Milliseconds(),
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Store) ListByRequest(ctx context.Context, requestID id.RequestID) ([]audit.Record, error) {
	query := `
		SELECT id, request_id, dependency, operation, action, outcome, evidence_hash, duration_ms, recorded_at
		FROM audit_records
		WHERE request_id = $1
		ORDER BY recorded_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec        audit.Record
			recID      uuid.UUID
			reqID      uuid.UUID
			action     string
			durationMS int64
		)
		if err := rows.Scan(&recID, &reqID, &rec.Dependency, &rec.Operation, &action, &rec.Outcome, &rec.EvidenceHash, &durationMS, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.ID = id.AuditRecordID(recID)
		rec.RequestID = id.RequestID(reqID)
		rec.Action = audit.Action(action)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
