package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ethermail_farm/internal/config"
	"ethermail_farm/internal/engine"
	"ethermail_farm/internal/httpapi"
	"ethermail_farm/internal/logbus"
	"ethermail_farm/internal/notify"
	"ethermail_farm/internal/store/sqlite"
	"ethermail_farm/internal/taskstore"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	var notifier notify.Notifier = notify.Nop{}
	var emailNotifier *notify.EmailNotifier
	if cfg.Notify.Enabled {
		emailNotifier = notify.NewEmailNotifier(cfg.Notify, bus)
		notifier = emailNotifier
	}

	tasks := taskstore.New()
	eng := engine.New(engine.Options{
		Tasks:    tasks,
		Store:    store,
		Bus:      bus,
		Limits:   cfg.Limits,
		Upstream: cfg.Upstream,
		Notifier: notifier,
	})

	api := httpapi.New(httpapi.Options{
		Cfg:    cfg,
		Bus:    bus,
		Store:  store,
		Tasks:  tasks,
		Engine: eng,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	_ = eng.Close(shutdownCtx)
	if emailNotifier != nil {
		_ = emailNotifier.Close(shutdownCtx)
	}
	bus.Log("info", "server stopped", nil)
}
