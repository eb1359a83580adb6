package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tabchat/tabchat/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, tenant_id, filename, table_name, model, row_count, columns_json, status, created_at, replaced_at`

func scanSession(row interface{ Scan(dest ...any) error }) (catalog.Session, error) {
	var session catalog.Session
	err := row.Scan(
		&session.SessionID,
		&session.TenantID,
		&session.Filename,
		&session.TableName,
		&session.Model,
		&session.RowCount,
		&session.ColumnsJSON,
		&session.Status,
		&session.CreatedAt,
		&session.ReplacedAt,
	)
	return session, err
}

func (r *Repository) GetSession(ctx context.Context, tenantID, sessionID string) (catalog.Session, error) {
	query := `
SELECT ` + sessionColumns + `
FROM dataset_session
WHERE tenant_id = $1 AND session_id = $2`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, tenantID, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Session{}, catalog.ErrNotFound
		}
		return catalog.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetActiveSession(ctx context.Context, tenantID string) (catalog.Session, error) {
	query := `
SELECT ` + sessionColumns + `
FROM dataset_session
WHERE tenant_id = $1 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Session{}, catalog.ErrNotFound
		}
		return catalog.Session{}, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

func (r *Repository) ListSessions(ctx context.Context, tenantID string, limit int) ([]catalog.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM dataset_session
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]catalog.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (r *Repository) CloseSession(ctx context.Context, tenantID, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE dataset_session
SET status = 'closed', replaced_at = NOW()
WHERE tenant_id = $1 AND session_id = $2 AND status = 'active'`, tenantID, sessionID)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) RecordArtifact(ctx context.Context, in catalog.RecordArtifactInput) (catalog.Artifact, error) {
	query := `
INSERT INTO dataset_artifact (tenant_id, session_id, kind, path, file_size_bytes, record_count)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING artifact_id, created_at`

	artifact := catalog.Artifact{
		TenantID:      in.TenantID,
		SessionID:     in.SessionID,
		Kind:          in.Kind,
		Path:          in.Path,
		FileSizeBytes: in.FileSizeBytes,
		RecordCount:   in.RecordCount,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.TenantID, in.SessionID, in.Kind, in.Path, in.FileSizeBytes, in.RecordCount,
	).Scan(&artifact.ArtifactID, &artifact.CreatedAt); err != nil {
		return catalog.Artifact{}, fmt.Errorf("record artifact: %w", err)
	}
	return artifact, nil
}

func (r *Repository) ListArtifacts(ctx context.Context, tenantID, sessionID string) ([]catalog.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT artifact_id, tenant_id, session_id, kind, path, file_size_bytes, record_count, created_at
FROM dataset_artifact
WHERE tenant_id = $1 AND session_id = $2
ORDER BY artifact_id ASC`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	artifacts := make([]catalog.Artifact, 0)
	for rows.Next() {
		var artifact catalog.Artifact
		if err := rows.Scan(
			&artifact.ArtifactID,
			&artifact.TenantID,
			&artifact.SessionID,
			&artifact.Kind,
			&artifact.Path,
			&artifact.FileSizeBytes,
			&artifact.RecordCount,
			&artifact.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact rows: %w", err)
	}
	return artifacts, nil
}

func (r *Repository) RecordQuery(ctx context.Context, in catalog.RecordQueryInput) (catalog.QueryLogEntry, error) {
	query := `
INSERT INTO query_log (tenant_id, session_id, source, query_text, success, error_text, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING query_id, created_at`

	entry := catalog.QueryLogEntry{
		TenantID:   in.TenantID,
		SessionID:  in.SessionID,
		Source:     in.Source,
		QueryText:  in.QueryText,
		Success:    in.Success,
		ErrorText:  in.ErrorText,
		DurationMs: in.DurationMs,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.TenantID, in.SessionID, in.Source, in.QueryText, in.Success, in.ErrorText, in.DurationMs,
	).Scan(&entry.QueryID, &entry.CreatedAt); err != nil {
		return catalog.QueryLogEntry{}, fmt.Errorf("record query: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListQueries(ctx context.Context, tenantID, sessionID string, limit int) ([]catalog.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT query_id, tenant_id, session_id, source, query_text, success, error_text, duration_ms, created_at
FROM query_log
WHERE tenant_id = $1 AND session_id = $2
ORDER BY query_id DESC
LIMIT $3`, tenantID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]catalog.QueryLogEntry, 0)
	for rows.Next() {
		var entry catalog.QueryLogEntry
		if err := rows.Scan(
			&entry.QueryID,
			&entry.TenantID,
			&entry.SessionID,
			&entry.Source,
			&entry.QueryText,
			&entry.Success,
			&entry.ErrorText,
			&entry.DurationMs,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return entries, nil
}
