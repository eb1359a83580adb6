package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tabchat/tabchat/internal/catalog"
	"github.com/tabchat/tabchat/internal/config"
	"github.com/tabchat/tabchat/internal/session"
	"github.com/tabchat/tabchat/internal/storage"
	"github.com/tabchat/tabchat/internal/tabular"
)

type columnSummary struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	SourceHeader string `json:"source_header"`
}

type sessionSummary struct {
	SessionID string          `json:"session_id"`
	Filename  string          `json:"filename"`
	TableName string          `json:"table_name"`
	RowCount  int             `json:"row_count"`
	Columns   []columnSummary `json:"columns"`
	CreatedAt string          `json:"created_at"`
}

func summarizeSession(sess *session.Session) sessionSummary {
	columns := make([]columnSummary, 0, len(sess.Dataset.Columns))
	for _, col := range sess.Dataset.Columns {
		columns = append(columns, columnSummary{
			Name:         col.Name,
			Type:         string(col.Type),
			SourceHeader: col.SourceHeader,
		})
	}
	return sessionSummary{
		SessionID: sess.ID,
		Filename:  sess.Filename,
		TableName: sess.Engine.TableName(),
		RowCount:  sess.Dataset.RowCount,
		Columns:   columns,
		CreatedAt: sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "uploader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = strings.TrimSpace(r.Header.Get("X-Filename"))
	}
	if filename == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FILENAME_REQUIRED", "dataset filename is required via the filename query parameter or X-Filename header", false, nil)
		return
	}
	limit := deps.MaxUploadBytes
	if limit <= 0 {
		limit = int64(cfg.Dataset.MaxUploadMB) * 1024 * 1024
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "dataset exceeds the configured upload limit", false, map[string]any{"limit_bytes": maxErr.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	if len(body) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_BODY", "dataset payload is empty", false, nil)
		return
	}

	sess, err := deps.Sessions.Upload(r.Context(), tenantID, filename, body)
	if err != nil {
		if errors.Is(err, tabular.ErrEmptyDataset) {
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "EMPTY_DATASET", "uploaded file contains no data rows", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, summarizeSession(sess))
}

func handleCurrentDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	sess, ok := deps.Sessions.Current(tenantID)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, summarizeSession(sess))
}

func handleDatasetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	sess, ok := deps.Sessions.Current(tenantID)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
		return
	}
	summary := summarizeSession(sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"table_name": summary.TableName,
		"schema":     sess.Engine.Schema(),
		"columns":    summary.Columns,
		"row_count":  summary.RowCount,
	})
}

func handleCloseDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	if !deps.Sessions.Close(r.Context(), tenantID) {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

func handleSessionDetail(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "session history requires the catalog to be configured", true, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	sessionID := r.PathValue("id")
	record, err := deps.Catalog.GetSession(r.Context(), tenantID, sessionID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "no catalog session with that id", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	artifacts, err := deps.Catalog.ListArtifacts(r.Context(), tenantID, sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	queries, err := deps.Catalog.ListQueries(r.Context(), tenantID, sessionID, 50)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	artifactItems := make([]map[string]any, 0, len(artifacts))
	for _, artifact := range artifacts {
		artifactItems = append(artifactItems, map[string]any{
			"kind":            artifact.Kind,
			"path":            artifact.Path,
			"file_size_bytes": artifact.FileSizeBytes,
			"record_count":    artifact.RecordCount,
			"created_at":      artifact.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	queryItems := make([]map[string]any, 0, len(queries))
	for _, entry := range queries {
		queryItems = append(queryItems, map[string]any{
			"source":      entry.Source,
			"query":       entry.QueryText,
			"success":     entry.Success,
			"error":       entry.ErrorText,
			"duration_ms": entry.DurationMs,
			"created_at":  entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   catalogSessionItem(record),
		"artifacts": artifactItems,
		"queries":   queryItems,
	})
}

func handleDownloadArtifact(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil || deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "artifact retrieval requires the catalog and object store to be configured", true, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	kind := r.PathValue("kind")
	if kind != catalog.ArtifactKindUpload && kind != catalog.ArtifactKindSnapshot {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARTIFACT_KIND", "artifact kind must be upload or snapshot", false, nil)
		return
	}
	artifacts, err := deps.Catalog.ListArtifacts(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	var target *catalog.Artifact
	for i := range artifacts {
		if artifacts[i].Kind == kind {
			target = &artifacts[i]
			break
		}
	}
	if target == nil {
		writeError(r.Context(), w, http.StatusNotFound, "ARTIFACT_NOT_FOUND", "no archived artifact of that kind for this session", false, nil)
		return
	}
	info, err := deps.ObjectStore.Stat(r.Context(), target.Path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARTIFACT_NOT_FOUND", "archived object is missing from the store", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", err.Error(), true, nil)
		return
	}
	body, err := deps.ObjectStore.Get(r.Context(), target.Path)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", err.Error(), true, nil)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "session history requires the catalog to be configured", true, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		limit = parsed
	}
	records, err := deps.Catalog.ListSessions(r.Context(), tenantID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, catalogSessionItem(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

func catalogSessionItem(record catalog.Session) map[string]any {
	var columns []columnSummary
	if len(record.ColumnsJSON) > 0 {
		_ = json.Unmarshal(record.ColumnsJSON, &columns)
	}
	item := map[string]any{
		"session_id": record.SessionID,
		"filename":   record.Filename,
		"table_name": record.TableName,
		"model":      record.Model,
		"row_count":  record.RowCount,
		"status":     record.Status,
		"columns":    columns,
		"created_at": record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if record.ReplacedAt != nil {
		item["replaced_at"] = record.ReplacedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return item
}
