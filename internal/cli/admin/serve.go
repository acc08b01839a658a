package admin

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

	"github.com/cloo-solutions/campaignkb/internal/api/handlers"
	"github.com/cloo-solutions/campaignkb/internal/cli"
	"github.com/cloo-solutions/campaignkb/internal/config"
	"github.com/cloo-solutions/campaignkb/internal/jobs"
	"github.com/cloo-solutions/campaignkb/internal/server"
	"github.com/cloo-solutions/campaignkb/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the campaignkb API server. When SYNC_INTERVAL is set, the drive directory is re-ingested in the background.",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.HasSentry() {
		flush, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: traceSampleRate(cfg.Environment),
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("sentry disabled: %v", err)
		} else {
			defer flush()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	app, err := cli.NewApp(ctx, cfg, cli.Options{Migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer app.Close()

	if !cfg.EnablePDFQA {
		log.Println("PDF QA is disabled; knowledge base routes will answer 403")
	}

	var puller handlers.PDFPuller
	var syncPuller jobs.PDFPuller
	if app.Storage != nil {
		if err := app.Storage.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		puller, syncPuller = app.Storage, app.Storage
	}

	var syncWorker *jobs.Worker
	if cfg.EnablePDFQA && cfg.SyncInterval > 0 {
		processor := jobs.NewSyncProcessor(app.KB, syncPuller, cfg.DriveRawDir)
		syncWorker = jobs.NewWorker("sync", processor, cfg.SyncInterval)
		go syncWorker.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		KBHandler: handlers.NewKBHandler(app.KB, app.Manifests, puller, handlers.KBHandlerConfig{
			IngestDir:   cfg.IngestDir,
			DriveRawDir: cfg.DriveRawDir,
		}),
		FeatureEnabled: cfg.EnablePDFQA,
		Gatherer:       app.Registry,
		Metrics:        app.Metrics,
	})

	// sync requests ingest a whole directory, so writes get a generous bound
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s (backend %s, collection %s)", cfg.Port, cfg.VectorBackend, cfg.VectorCollection)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if syncWorker != nil {
			syncWorker.Stop()
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// traceSampleRate samples every request in development and 10% elsewhere.
func traceSampleRate(environment string) float64 {
	if environment == "development" {
		return 1.0
	}
	return 0.1
}
