package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/engine"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/model"
	"ethermail_farm/internal/store/sqlite"
	"ethermail_farm/internal/taskstore"
	"ethermail_farm/internal/upstream"
	"ethermail_farm/internal/ws"
)

const version = "1.0.0"

type Options struct {
	Cfg    config.Config
	Bus    *logbus.Bus
	Store  *sqlite.Store
	Tasks  *taskstore.Store
	Engine *engine.Engine
}

type Server struct {
	cfg     config.Config
	bus     *logbus.Bus
	store   *sqlite.Store
	tasks   *taskstore.Store
	engine  *engine.Engine
	ws      *ws.Handler
	started time.Time
}

func New(opts Options) *Server {
	return &Server{
		cfg:     opts.Cfg,
		bus:     opts.Bus,
		store:   opts.Store,
		tasks:   opts.Tasks,
		engine:  opts.Engine,
		ws:      ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
		started: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/accounts/batch", s.handleCreateBatch)
	api.HandleFunc("POST /api/v1/accounts/single", s.handleCreateSingle)
	api.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	api.HandleFunc("GET /api/v1/accounts", s.handleListAccounts)
	api.HandleFunc("GET /api/v1/accounts/{id}", s.handleGetAccount)
	api.HandleFunc("POST /api/v1/emails", s.handleSearchEmails)
	api.HandleFunc("POST /api/v1/proxies", s.handleUpdateProxies)
	api.HandleFunc("GET /api/v1/status", s.handleStatus)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, s.requireAPIKey(api)))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createBatchPayload struct {
	Proxies      []string `json:"proxies"`
	Count        int      `json:"count"`
	DelaySeconds float64  `json:"delaySeconds,omitempty"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var body createBatchPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	taskID, err := s.tasks.Create(trimProxies(body.Proxies), body.Count, body.DelaySeconds)
	if err != nil {
		if errors.Is(err, taskstore.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.engine.Launch(taskID)
	writeJSON(w, http.StatusOK, map[string]any{"taskId": taskID})
}

type createSinglePayload struct {
	Proxy string `json:"proxy"`
}

func (s *Server) handleCreateSingle(w http.ResponseWriter, r *http.Request) {
	var body createSinglePayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	proxy := strings.TrimSpace(body.Proxy)
	if proxy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "proxy is required"})
		return
	}

	taskID, err := s.tasks.Create([]string{proxy}, 1, 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.engine.Launch(taskID)
	writeJSON(w, http.StatusOK, map[string]any{"taskId": taskID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	snap, err := s.tasks.Get(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": acc})
}

type emailSearchPayload struct {
	Address     string     `json:"address"`
	Subject     string     `json:"subject,omitempty"`
	FromAddress string     `json:"fromAddress,omitempty"`
	DateFrom    *time.Time `json:"dateFrom,omitempty"`
	DateTo      *time.Time `json:"dateTo,omitempty"`
}

func (s *Server) handleSearchEmails(w http.ResponseWriter, r *http.Request) {
	var body emailSearchPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.Address) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "address is required"})
		return
	}

	acc, err := s.store.GetAccountByEmail(r.Context(), strings.ToLower(strings.TrimSpace(body.Address)))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "account not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	client, err := upstream.New(s.cfg.Upstream, upstream.Identity{
		Proxy:     acc.Proxy,
		UserAgent: acc.UserAgent,
	}, nil, s.bus)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if _, err := client.EnsureFreshToken(r.Context(), acc, s.store); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	messages, err := client.SearchEmails(r.Context(), model.EmailFilter{
		Subject:     body.Subject,
		FromAddress: body.FromAddress,
		DateFrom:    body.DateFrom,
		DateTo:      body.DateTo,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	_ = s.store.TouchAccount(r.Context(), acc.ID)

	if messages == nil {
		messages = []model.EmailMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(messages),
		"messages": messages,
	})
}

type updateProxiesPayload struct {
	Proxies  []string `json:"proxies"`
	Validate bool     `json:"validate,omitempty"`
}

func (s *Server) handleUpdateProxies(w http.ResponseWriter, r *http.Request) {
	var body updateProxiesPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	proxies := trimProxies(body.Proxies)
	if len(proxies) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no proxies provided"})
		return
	}

	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if len(accounts) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no accounts to update"})
		return
	}

	usable := proxies
	if body.Validate {
		usable = s.validateProxies(r.Context(), proxies)
	}
	if len(usable) < len(accounts) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "not enough valid proxies for all accounts",
			"valid": len(usable),
			"need":  len(accounts),
		})
		return
	}

	for i, acc := range accounts {
		if err := s.store.UpdateAccountProxy(r.Context(), acc.ID, usable[i]); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(accounts)})
}

// validateProxies probes all candidates concurrently and keeps the
// reachable ones in their original order.
func (s *Server) validateProxies(ctx context.Context, proxies []string) []string {
	ok := make([]bool, len(proxies))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 10)
	for i, proxy := range proxies {
		wg.Add(1)
		go func(i int, proxy string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			client, err := upstream.New(s.cfg.Upstream, upstream.Identity{Proxy: proxy}, nil, nil)
			if err != nil {
				return
			}
			if err := client.TestProxy(ctx); err != nil {
				if s.bus != nil {
					s.bus.Log("info", "proxy check failed", map[string]any{"proxy": proxy, "error": err.Error()})
				}
				return
			}
			ok[i] = true
		}(i, proxy)
	}
	wg.Wait()

	var valid []string
	for i, proxy := range proxies {
		if ok[i] {
			valid = append(valid, proxy)
		}
	}
	return valid
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	upstreamStatus := "ok"
	if err := upstream.Ping(r.Context(), s.cfg.Upstream); err != nil {
		upstreamStatus = "error"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     version,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"lastRestart": s.started,
		"stats":       stats,
		"dependencies": map[string]string{
			"ethermail_api": upstreamStatus,
		},
	})
}

func trimProxies(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
