package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	gateway "github.com/eugener/radagast/internal"
)

// maxBodyBytes caps inbound request bodies. Generation payloads are prompts
// plus options; anything larger is abuse.
const maxBodyBytes = 4 << 20

func (s *server) handleCallModel(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !json.Valid(payload) {
		writeDetail(w, http.StatusBadRequest, "invalid request body: not valid JSON")
		return
	}

	body, err := s.deps.Proxy.CallModel(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeRawJSON(w, http.StatusOK, body)
}

// writeError maps a domain error onto a status and detail body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		// Hide internals behind the generic detail string.
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", gateway.RequestIDFromContext(r.Context())),
		)
		detail = gateway.ErrInternal.Error()
	}
	writeDetail(w, status, detail)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrMissingKey):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrInvalidKey):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

// detailResponse is the error body shape; clients depend on the
// "detail" field name.
type detailResponse struct {
	Detail string `json:"detail"`
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeRawJSON forwards an upstream (or cached) body verbatim.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
