package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabchat/tabchat/internal/chat"
	"github.com/tabchat/tabchat/internal/inference"
)

type chatRequest struct {
	Message string          `json:"message"`
	Mode    string          `json:"mode,omitempty"`
	Format  json.RawMessage `json:"format,omitempty"`
}

type chatModeRequest struct {
	Mode string `json:"mode"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message text is required", false, nil)
		return
	}
	sess, ok := deps.Sessions.Current(tenantID)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
		return
	}
	if req.Mode != "" {
		mode, parseErr := chat.ParseMode(req.Mode)
		if parseErr != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MODE", parseErr.Error(), false, nil)
			return
		}
		if setErr := sess.Orchestrator.SetMode(mode); setErr != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_MODE", setErr.Error(), false, nil)
			return
		}
	}
	reply, err := sess.Orchestrator.Chat(r.Context(), req.Message, req.Format)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply": reply,
		"mode":  string(sess.Orchestrator.Mode()),
	})
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, chat.ErrMissingFormat) {
		writeError(r.Context(), w, http.StatusBadRequest, "FORMAT_REQUIRED", err.Error(), false, nil)
		return
	}
	var modeErr *chat.UnsupportedModeError
	if errors.As(err, &modeErr) {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_MODE", modeErr.Error(), false, nil)
		return
	}
	var turnsErr *chat.MaxTurnsExceededError
	if errors.As(err, &turnsErr) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "TOOL_TURNS_EXCEEDED", turnsErr.Error(), false, map[string]any{"limit": turnsErr.Limit})
		return
	}
	var reqErr *inference.RequestError
	if errors.As(err, &reqErr) {
		writeError(r.Context(), w, http.StatusBadGateway, "INFERENCE_FAILED", reqErr.Error(), true, map[string]any{"backend_status": reqErr.Status})
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "INFERENCE_FAILED", err.Error(), true, nil)
}

func handleChatReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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
	sess.Orchestrator.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func handleChatMode(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "analyst"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), false, nil)
		return
	}
	var req chatModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", err.Error(), false, nil)
		return
	}
	sess, ok := deps.Sessions.Current(tenantID)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_SESSION", "no dataset has been uploaded for this tenant", false, nil)
		return
	}
	mode, err := chat.ParseMode(req.Mode)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MODE", err.Error(), false, nil)
		return
	}
	if err := sess.Orchestrator.SetMode(mode); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_MODE", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": string(mode)})
}
