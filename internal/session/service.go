package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabchat/tabchat/internal/catalog"
	"github.com/tabchat/tabchat/internal/chat"
	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/registry"
	"github.com/tabchat/tabchat/internal/storage"
	"github.com/tabchat/tabchat/internal/tabular"
	"github.com/tabchat/tabchat/internal/translator"
)

// Service owns dataset sessions: one per tenant, each with its own relational
// engine, tool set, chat orchestrator, and translator. Uploading a new file
// replaces the tenant's session wholesale; nothing is shared across sessions.
type Service struct {
	Client      inference.Client
	Catalog     catalog.Repository
	ObjectStore storage.ObjectStore
	Logger      *slog.Logger
	Config      Config

	mu     sync.Mutex
	active map[string]*Session
}

type Config struct {
	TableName     string
	Model         string
	MaxToolTurns  int
	ArchiveUpload bool
}

// Session is one uploaded dataset's live state.
type Session struct {
	ID           string
	TenantID     string
	Filename     string
	Dataset      tabular.Dataset
	Engine       *tabular.Engine
	Orchestrator *chat.Orchestrator
	Translator   *translator.Translator
	CreatedAt    time.Time
}

func NewService(client inference.Client, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		Client: client,
		Logger: logger,
		Config: cfg,
		active: map[string]*Session{},
	}
}

// Upload parses the buffer into a fresh session and swaps it in as the
// tenant's active one. The previous session is only discarded after the new
// dataset loaded successfully.
func (s *Service) Upload(ctx context.Context, tenantID, filename string, buffer []byte) (*Session, error) {
	engine := tabular.NewEngine(s.Config.TableName)
	dataset, err := engine.Initialize(ctx, buffer)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	tools := registry.New()
	for _, tool := range tabular.DatasetTools(engine) {
		if err := tools.Register(tool); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("register dataset tool: %w", err)
		}
	}
	if err := tools.Register(registry.EvaluateExpressionTool()); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("register expression tool: %w", err)
	}

	sess := &Session{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Filename:   filename,
		Dataset:    dataset,
		Engine:     engine,
		Translator: translator.New(s.Client, engine, s.Logger, s.Config.Model),
		CreatedAt:  time.Now().UTC(),
	}
	sess.Orchestrator = chat.NewOrchestrator(s.Client, tools, s.Logger, chat.Config{
		Model:         s.Config.Model,
		MaxToolTurns:  s.Config.MaxToolTurns,
		PromptBuilder: analystPromptBuilder(engine),
	})

	if s.Catalog != nil {
		columnsJSON, err := json.Marshal(dataset.Columns)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("encode columns: %w", err)
		}
		if _, err := s.Catalog.ActivateSession(ctx, catalog.ActivateSessionInput{
			SessionID:   sess.ID,
			TenantID:    tenantID,
			Filename:    filename,
			TableName:   engine.TableName(),
			Model:       s.Config.Model,
			RowCount:    int64(dataset.RowCount),
			ColumnsJSON: columnsJSON,
		}); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("activate catalog session: %w", err)
		}
	}

	s.archive(ctx, sess, buffer)

	s.mu.Lock()
	previous := s.active[tenantID]
	s.active[tenantID] = sess
	s.mu.Unlock()
	if previous != nil {
		_ = previous.Engine.Close()
	}

	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "dataset session activated",
			slog.String("tenant_id", tenantID),
			slog.String("session_id", sess.ID),
			slog.String("filename", filename),
			slog.Int("rows", dataset.RowCount),
			slog.Int("columns", len(dataset.Columns)))
	}
	return sess, nil
}

// archive copies the raw upload and a parquet snapshot of the loaded table
// into the object store. Archival is best effort; failures are logged and do
// not fail the upload.
func (s *Service) archive(ctx context.Context, sess *Session, buffer []byte) {
	if s.ObjectStore == nil {
		return
	}

	if s.Config.ArchiveUpload {
		key, err := storage.BuildUploadPath(sess.TenantID, sess.ID, sess.Filename)
		if err == nil {
			_, err = s.ObjectStore.Put(ctx, key, bytes.NewReader(buffer), int64(len(buffer)), storage.PutOptions{
				ContentType: "application/octet-stream",
			})
		}
		if err != nil {
			s.warn(ctx, "archive upload failed", sess, err)
		} else {
			s.recordArtifact(ctx, sess, catalog.ArtifactKindUpload, key, int64(len(buffer)), int64(sess.Dataset.RowCount))
		}
	}

	rows, err := sess.Engine.Snapshot(ctx)
	if err != nil {
		s.warn(ctx, "snapshot dataset failed", sess, err)
		return
	}
	encoded, err := tabular.EncodeRowsToParquet(rows)
	if err != nil {
		s.warn(ctx, "encode snapshot failed", sess, err)
		return
	}
	key, err := storage.BuildSnapshotPath(sess.TenantID, sess.ID)
	if err == nil {
		_, err = s.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
			ContentType: "application/vnd.apache.parquet",
		})
	}
	if err != nil {
		s.warn(ctx, "archive snapshot failed", sess, err)
		return
	}
	s.recordArtifact(ctx, sess, catalog.ArtifactKindSnapshot, key, int64(len(encoded.Data)), encoded.RecordCount)
}

func (s *Service) recordArtifact(ctx context.Context, sess *Session, kind, path string, size, records int64) {
	if s.Catalog == nil {
		return
	}
	if _, err := s.Catalog.RecordArtifact(ctx, catalog.RecordArtifactInput{
		TenantID:      sess.TenantID,
		SessionID:     sess.ID,
		Kind:          kind,
		Path:          path,
		FileSizeBytes: size,
		RecordCount:   records,
	}); err != nil {
		s.warn(ctx, "record artifact failed", sess, err)
	}
}

func (s *Service) warn(ctx context.Context, msg string, sess *Session, err error) {
	if s.Logger != nil {
		s.Logger.WarnContext(ctx, msg,
			slog.String("tenant_id", sess.TenantID),
			slog.String("session_id", sess.ID),
			slog.Any("error", err))
	}
}

// Current returns the tenant's active session.
func (s *Service) Current(tenantID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[tenantID]
	return sess, ok
}

// Close discards the tenant's active session, if any, and marks its catalog
// row closed. With no resident session it still closes a stale active catalog
// row, which covers sessions orphaned by a process restart.
func (s *Service) Close(ctx context.Context, tenantID string) bool {
	s.mu.Lock()
	sess := s.active[tenantID]
	delete(s.active, tenantID)
	s.mu.Unlock()
	if sess != nil {
		_ = sess.Engine.Close()
		s.closeCatalogSession(ctx, tenantID, sess.ID)
		return true
	}
	if s.Catalog == nil {
		return false
	}
	record, err := s.Catalog.GetActiveSession(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) && s.Logger != nil {
			s.Logger.WarnContext(ctx, "lookup active catalog session failed",
				slog.String("tenant_id", tenantID),
				slog.Any("error", err))
		}
		return false
	}
	s.closeCatalogSession(ctx, tenantID, record.SessionID)
	return true
}

// closeCatalogSession is best effort, like query and artifact recording.
func (s *Service) closeCatalogSession(ctx context.Context, tenantID, sessionID string) {
	if s.Catalog == nil {
		return
	}
	if _, err := s.Catalog.CloseSession(ctx, tenantID, sessionID); err != nil {
		if s.Logger != nil {
			s.Logger.WarnContext(ctx, "close catalog session failed",
				slog.String("tenant_id", tenantID),
				slog.String("session_id", sessionID),
				slog.Any("error", err))
		}
	}
}

// Query runs query text against the tenant's dataset and records it in the
// audit log when a catalog is attached.
func (s *Service) Query(ctx context.Context, tenantID, queryText string) (tabular.QueryResult, error) {
	sess, ok := s.Current(tenantID)
	if !ok {
		return tabular.QueryResult{}, ErrNoSession
	}
	start := time.Now()
	result := sess.Engine.Query(ctx, queryText)
	s.recordQuery(ctx, sess, "api", result.Query, result.Success, result.Error, time.Since(start))
	return result, nil
}

// Translate answers a natural-language question through the translator.
func (s *Service) Translate(ctx context.Context, tenantID, question string) (translator.Answer, error) {
	sess, ok := s.Current(tenantID)
	if !ok {
		return translator.Answer{}, ErrNoSession
	}
	start := time.Now()
	answer, err := sess.Translator.Ask(ctx, question)
	if err != nil {
		return translator.Answer{}, err
	}
	s.recordQuery(ctx, sess, "translator", answer.Query, answer.Success, answer.Error, time.Since(start))
	return answer, nil
}

func (s *Service) recordQuery(ctx context.Context, sess *Session, source, queryText string, success bool, errText string, elapsed time.Duration) {
	if s.Catalog == nil || strings.TrimSpace(queryText) == "" {
		return
	}
	if _, err := s.Catalog.RecordQuery(ctx, catalog.RecordQueryInput{
		TenantID:   sess.TenantID,
		SessionID:  sess.ID,
		Source:     source,
		QueryText:  queryText,
		Success:    success,
		ErrorText:  errText,
		DurationMs: elapsed.Milliseconds(),
	}); err != nil {
		s.warn(ctx, "record query failed", sess, err)
	}
}

// analystPromptBuilder grounds the chat system prompt in the live schema so
// a mode or dataset change regenerates it.
func analystPromptBuilder(engine *tabular.Engine) chat.PromptBuilder {
	return func(mode chat.Mode) string {
		var builder strings.Builder
		builder.WriteString("You are a data analyst answering questions about an uploaded spreadsheet.\n")
		fmt.Fprintf(&builder, "The data lives in a single table named '%s' with these columns: %s.\n",
			engine.TableName(), engine.Schema())
		switch mode {
		case chat.ModeToolBased:
			builder.WriteString("Use the provided tools to query the table; never guess values you could look up. ")
			builder.WriteString("Summarize tool results in plain language for the user.")
		case chat.ModeStructured:
			builder.WriteString("Answer strictly in the requested output format.")
		default:
			builder.WriteString("Answer concisely based on the dataset description above.")
		}
		return builder.String()
	}
}
