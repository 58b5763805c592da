package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Developer-Emre/dropspotapp-sub000/internal/api"
	"github.com/Developer-Emre/dropspotapp-sub000/internal/config"
	"github.com/Developer-Emre/dropspotapp-sub000/internal/model"
	"github.com/Developer-Emre/dropspotapp-sub000/internal/obs"
	"github.com/Developer-Emre/dropspotapp-sub000/internal/storage"
	"github.com/Developer-Emre/dropspotapp-sub000/pkg/seed"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfgPath := flag.String("config", "", "path to config.toml (defaults apply when empty)")
	flag.Parse()

	// Cancel context on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config load: %v", err)
		}
		cfg = loaded
	}

	db, err := storage.Open(ctx, storage.Config{
		Path:         cfg.DB.Path,
		BusyTimeout:  time.Duration(cfg.DB.BusyTimeoutMS) * time.Millisecond,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()

	logger := obs.NewLogger()
	metrics := obs.NewMetrics()

	// The seed is fixed per deployment: same fingerprint, same coefficients,
	// until the process restarts with a different deploy timestamp.
	deployedAt := time.Now()
	if cfg.Seed.DeployedAtMS > 0 {
		deployedAt = time.UnixMilli(cfg.Seed.DeployedAtMS)
	}
	firstActivity := time.UnixMilli(cfg.Seed.FirstActivityMS)
	seeds := seed.NewGenerator(seed.Fingerprint(cfg.Seed.ProjectID, firstActivity, deployedAt))

	svc := model.NewService(db.DB, logger, metrics, seeds, cfg.ClaimTTL())
	apiServer := api.NewServer(svc)

	// Claim expiry monitor
	mon := model.NewClaimMonitor(db.DB, logger, metrics, cfg.SweepInterval())

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	// Start claim expiry monitor
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx) // exits when ctx is cancelled
	}()

	// Start HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("dropspotd up addr=%s db=%s", cfg.Server.Addr, cfg.DB.Path)
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
			// If server fails unexpectedly, trigger shutdown.
			stop()
		}
	}()

	// Wait for signal
	<-ctx.Done()
	log.Printf("shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}

	// Wait for goroutines to finish
	wg.Wait()
	log.Printf("dropspotd stopped")
}
