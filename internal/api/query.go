package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/session"
)

type queryRequest struct {
	Query string `json:"query"`
}

type translateRequest struct {
	Question string `json:"question"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query text is required", false, nil)
		return
	}
	result, err := deps.Sessions.Query(r.Context(), tenantID, req.Query)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question text is required", false, nil)
		return
	}
	answer, err := deps.Sessions.Translate(r.Context(), tenantID, req.Question)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
			return
		}
		var reqErr *inference.RequestError
		if errors.As(err, &reqErr) {
			writeError(r.Context(), w, http.StatusBadGateway, "INFERENCE_FAILED", reqErr.Error(), true, map[string]any{"backend_status": reqErr.Status})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "INFERENCE_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func handleTranslateReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
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
	sess.Translator.ClearContext()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}
