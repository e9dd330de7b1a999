package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clindesk/ectdpack/internal/api"
	"github.com/clindesk/ectdpack/internal/assemble"
	"github.com/clindesk/ectdpack/internal/config"
	"github.com/clindesk/ectdpack/internal/export"
	"github.com/clindesk/ectdpack/internal/study"
	"github.com/clindesk/ectdpack/internal/validate"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rules, err := loadRules(cfg)
	if err != nil {
		log.Error("invalid validation rules", "file", cfg.RulesFile, "error", err)
		os.Exit(1)
	}

	// The fixture repository serves both study state and sponsor
	// metadata.
	repo := study.NewDirRepository(cfg.StudiesDir)

	exporter := export.New(repo, repo,
		assemble.DirResolver{Root: cfg.UploadsDir},
		rules,
		export.Config{
			ExportsRoot:    cfg.ExportsDir,
			SequenceNumber: cfg.SequenceNumber,
		},
		log,
	)

	srv := api.NewServer(exporter, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting ectdpack",
		"port", cfg.Port,
		"exports_dir", cfg.ExportsDir,
		"uploads_dir", cfg.UploadsDir,
		"studies_dir", cfg.StudiesDir,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadRules returns the embedded rule registry, or the override file's
// when one is configured.
func loadRules(cfg config.Config) (*validate.Registry, error) {
	if cfg.RulesFile == "" {
		return validate.DefaultRegistry()
	}
	data, err := os.ReadFile(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return validate.LoadRules(data)
}
