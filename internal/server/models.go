package server

import "net/http"

// handleListModels returns the model names the upstream advertises.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Proxy.ListModels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modelListResponse{Models: models})
}

type modelListResponse struct {
	Models []string `json:"models"`
}
