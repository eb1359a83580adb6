package api

import "net/http"

func handleListModels(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Inference == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "INFERENCE_UNAVAILABLE", "inference backend is not configured", true, nil)
		return
	}
	models, err := deps.Inference.ListModels(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "INFERENCE_FAILED", err.Error(), true, nil)
		return
	}
	items := make([]map[string]any, 0, len(models))
	for _, model := range models {
		items = append(items, map[string]any{
			"name": model.Name,
			"size": model.Size,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": items})
}
