package postgres

import (
	"context"
	"fmt"

	"github.com/tabchat/tabchat/internal/catalog"
)

// ActivateSession replaces the tenant's active session in one transaction:
// whatever session is currently active is marked replaced, then the new one
// is inserted as active. A tenant never has two active sessions.
func (r *Repository) ActivateSession(ctx context.Context, in catalog.ActivateSessionInput) (catalog.Session, error) {
	if in.SessionID == "" {
		return catalog.Session{}, fmt.Errorf("session id is required")
	}
	if in.TenantID == "" {
		return catalog.Session{}, fmt.Errorf("tenant id is required")
	}
	columnsJSON := in.ColumnsJSON
	if len(columnsJSON) == 0 {
		columnsJSON = []byte("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Session{}, fmt.Errorf("begin activate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
UPDATE dataset_session
SET status = 'replaced', replaced_at = NOW()
WHERE tenant_id = $1 AND status = 'active'`, in.TenantID); err != nil {
		return catalog.Session{}, fmt.Errorf("replace previous session: %w", err)
	}

	session := catalog.Session{
		SessionID:   in.SessionID,
		TenantID:    in.TenantID,
		Filename:    in.Filename,
		TableName:   in.TableName,
		Model:       in.Model,
		RowCount:    in.RowCount,
		ColumnsJSON: columnsJSON,
		Status:      catalog.SessionStatusActive,
	}
	if err := tx.QueryRowContext(ctx, `
INSERT INTO dataset_session (session_id, tenant_id, filename, table_name, model, row_count, columns_json, status)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, 'active')
RETURNING created_at`,
		in.SessionID, in.TenantID, in.Filename, in.TableName, in.Model, in.RowCount, string(columnsJSON),
	).Scan(&session.CreatedAt); err != nil {
		return catalog.Session{}, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return catalog.Session{}, fmt.Errorf("commit activate tx: %w", err)
	}
	return session, nil
}
