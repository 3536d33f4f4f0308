// The termsync server receives command lifecycle events from shell hooks
// over HTTP and forwards them to Ghostwriter, falling back to a local
// archive when the remote is unavailable or unconfigured.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/termsync/termsync/archive"
	"github.com/termsync/termsync/config"
	"github.com/termsync/termsync/engine"
	"github.com/termsync/termsync/entry"
	"github.com/termsync/termsync/ghostwriter"
	"github.com/termsync/termsync/index"
	"github.com/termsync/termsync/plugin"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator, store, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer cleanup()

	feed := NewActivityHub()
	go feed.Run(ctx)

	api := NewAPI(coordinator, feed, cfg.RateLimit, cfg.RateBurst)

	r := mux.NewRouter()
	r.HandleFunc("/commands/", api.handlePreExec).Methods(http.MethodPost)
	r.HandleFunc("/commands/", api.handlePostExec).Methods(http.MethodPut)
	r.HandleFunc("/feed", feed.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/healthz", api.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("termsync server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server failed: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	cancel()

	// Leave an importable artifact behind: flatten the archived JSON files
	// into a Ghostwriter CSV on the way out.
	if _, ok := store.(*archive.Dir); ok {
		path, err := archive.ExportCSV(cfg.JSONLogDir, cfg.JSONLogDir)
		if err != nil {
			log.Printf("CSV export failed: %v", err)
		} else {
			log.Printf("exported archived logs to %s", path)
		}
	}
}

// buildEngine assembles the delivery engine from configuration: remote
// client (absent in local-only mode), archive backend, pending index
// backend, and the plugin chain.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Coordinator, archive.Store, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var client engine.RemoteClient
	if cfg.RemoteEnabled() {
		gw, err := ghostwriter.New(ghostwriter.Options{
			URL:                cfg.GwURL,
			OplogID:            cfg.GwOplogID,
			GraphQLKey:         cfg.GwAPIKeyGraphQL,
			RESTKey:            cfg.GwAPIKeyREST,
			Timeout:            time.Duration(cfg.GwTimeoutSeconds) * time.Second,
			UserAgent:          "termsync/" + config.Version,
			InsecureSkipVerify: !cfg.GwSSLCheck,
		})
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("ghostwriter client: %w", err)
		}
		client = gw
		log.Printf("Ghostwriter logging enabled at %s (oplog %d)", cfg.GwURL, cfg.GwOplogID)
	}

	var store archive.Store
	switch cfg.ArchiveBackend {
	case "postgres":
		pg, err := archive.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("postgres archive: %w", err)
		}
		cleanups = append(cleanups, pg.Close)
		store = pg
		log.Printf("archiving entries to PostgreSQL")
	default:
		store = archive.NewDir(cfg.JSONLogDir)
		log.Printf("archiving entries to %s", cfg.JSONLogDir)
	}

	var idx index.Index
	switch cfg.IndexBackend {
	case "redis":
		r, err := index.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			time.Duration(cfg.PendingTTLSeconds)*time.Second)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("redis index: %w", err)
		}
		cleanups = append(cleanups, func() { r.Close() })
		idx = r
		log.Printf("sharing pending entries via Redis at %s", cfg.RedisAddr)
	default:
		idx = index.NewMemory()
	}

	chain, err := plugin.BuildChain(cfg.Plugins, cfg.DescToken, cfg.NologToken)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("plugin chain: %w", err)
	}

	coordinator := engine.New(engine.Options{
		Client:   client,
		Archive:  store,
		Index:    idx,
		Chain:    chain,
		Triggers: engine.Triggers(cfg.Keywords),
		Defaults: engine.Defaults{
			Operator:        cfg.Operator,
			OplogID:         cfg.GwOplogID,
			SourceHost:      cfg.GwSrcHost,
			DestinationHost: cfg.GwDestHost,
		},
		SaveAllLocal: cfg.SaveAllLocal,
		MergePolicy:  entry.MergePolicy{ProtectOutput: cfg.MergeProtectOutput},
	})
	return coordinator, store, cleanup, nil
}
