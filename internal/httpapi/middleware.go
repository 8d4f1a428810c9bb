package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
)

// requireAPIKey guards every API route behind the shared-secret header.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(s.cfg.Server.APIKeyHeader)
		if key == "" {
			if s.bus != nil {
				s.bus.Log("warn", "no API key provided", map[string]any{"path": r.URL.Path})
			}
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "no API key provided"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			if s.bus != nil {
				s.bus.Log("warn", "invalid API key provided", map[string]any{"path": r.URL.Path})
			}
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}
