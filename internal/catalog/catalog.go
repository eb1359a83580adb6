package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

// Repository persists dataset sessions and their audit trail. The relational
// store holding the spreadsheet itself is in-process; the catalog only tracks
// which dataset is active per tenant, where archived copies live, and which
// queries ran.
type Repository interface {
	HealthCheck(ctx context.Context) error
	ActivateSession(ctx context.Context, in ActivateSessionInput) (Session, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (Session, error)
	GetActiveSession(ctx context.Context, tenantID string) (Session, error)
	ListSessions(ctx context.Context, tenantID string, limit int) ([]Session, error)
	CloseSession(ctx context.Context, tenantID, sessionID string) (bool, error)
	RecordArtifact(ctx context.Context, in RecordArtifactInput) (Artifact, error)
	ListArtifacts(ctx context.Context, tenantID, sessionID string) ([]Artifact, error)
	RecordQuery(ctx context.Context, in RecordQueryInput) (QueryLogEntry, error)
	ListQueries(ctx context.Context, tenantID, sessionID string, limit int) ([]QueryLogEntry, error)
}

const (
	SessionStatusActive   = "active"
	SessionStatusReplaced = "replaced"
	SessionStatusClosed   = "closed"
)

const (
	ArtifactKindUpload   = "upload"
	ArtifactKindSnapshot = "snapshot"
)

// Session is one uploaded dataset's lifetime. A tenant has at most one
// active session; uploading a new file replaces the previous one.
type Session struct {
	SessionID   string
	TenantID    string
	Filename    string
	TableName   string
	Model       string
	RowCount    int64
	ColumnsJSON []byte
	Status      string
	CreatedAt   time.Time
	ReplacedAt  *time.Time
}

// Artifact is an object-store copy tied to a session: the raw upload or a
// parquet snapshot of the loaded table.
type Artifact struct {
	ArtifactID    int64
	TenantID      string
	SessionID     string
	Kind          string
	Path          string
	FileSizeBytes int64
	RecordCount   int64
	CreatedAt     time.Time
}

// QueryLogEntry is one executed query, whatever surface issued it.
type QueryLogEntry struct {
	QueryID    int64
	TenantID   string
	SessionID  string
	Source     string
	QueryText  string
	Success    bool
	ErrorText  string
	DurationMs int64
	CreatedAt  time.Time
}

type ActivateSessionInput struct {
	SessionID   string
	TenantID    string
	Filename    string
	TableName   string
	Model       string
	RowCount    int64
	ColumnsJSON []byte
}

type RecordArtifactInput struct {
	TenantID      string
	SessionID     string
	Kind          string
	Path          string
	FileSizeBytes int64
	RecordCount   int64
}

type RecordQueryInput struct {
	TenantID   string
	SessionID  string
	Source     string
	QueryText  string
	Success    bool
	ErrorText  string
	DurationMs int64
}
