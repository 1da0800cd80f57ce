package server

import "net/http"

// Pre-allocated liveness body and header value slice, saving the
// per-request allocations Header.Set and []byte("ok") would cost.
var (
	okBody  = []byte("ok")
	plainCT = []string{"text/plain"}
)

// healthyBody matches what existing clients poll for.
var healthyBody = []byte(`{"status":"healthy","ollama":"connected"}` + "\n")

// handleHealthz is process liveness only: it never touches the upstream.
func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

// handleHealth probes the upstream's listing endpoint with a short timeout.
// No auth, no cache.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Proxy.HealthCheck(r.Context()); err != nil {
		writeDetail(w, http.StatusServiceUnavailable, "Ollama service unavailable: "+err.Error())
		return
	}
	writeRawJSON(w, http.StatusOK, healthyBody)
}
