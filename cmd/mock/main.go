// Command mock serves a fake webmail API for local testing: nonce, login,
// communities, onboarding and a small canned mailbox.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	mrand "math/rand/v2"
	"net/http"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/auth/nonce", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{
			"success": true,
			"nonce":   mrand.Int64N(1_000_000),
		})
	})

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{
			"token": mockJWT(24 * time.Hour),
		})
	})

	mux.HandleFunc("GET /api/communities", func(w http.ResponseWriter, _ *http.Request) {
		communities := make([]map[string]any, 0, 12)
		for i := 0; i < 12; i++ {
			communities = append(communities, map[string]any{
				"tenant_id": "tenant_" + randString(6),
			})
		}
		writeJSON(w, communities)
	})

	mux.HandleFunc("POST /api/users/onboarding", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]any{"success": true})
	})

	mux.HandleFunc("GET /api/mailboxes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"id": "inbox-1", "name": "INBOX"},
				{"id": "sent-1", "name": "Sent"},
			},
		})
	})

	mux.HandleFunc("POST /api/messages/search", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{
					"id":      1,
					"from":    map[string]any{"address": "welcome@ethermail.io"},
					"subject": "Welcome to EtherMail",
					"date":    time.Now().UTC().Format(time.RFC3339),
				},
			},
		})
	})

	mux.HandleFunc("GET /api/mailboxes/{mailbox}/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":      1,
			"from":    map[string]any{"address": "welcome@ethermail.io"},
			"subject": "Welcome to EtherMail",
			"date":    time.Now().UTC().Format(time.RFC3339),
			"html":    []string{"<p>Welcome!</p>"},
			"text":    "Welcome!",
		})
	})

	log.Printf("mock webmail api listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// mockJWT builds an unsigned-but-well-formed token whose exp claim the
// client can decode.
func mockJWT(ttl time.Duration) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"sub":"mock","exp":%d}`, time.Now().Add(ttl).Unix())))
	return header + "." + payload + "." + base64.RawURLEncoding.EncodeToString([]byte("mock"))
}

func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
