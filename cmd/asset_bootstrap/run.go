package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/italolelis/asset_bootstrap/internal/acquisition"
	"github.com/italolelis/asset_bootstrap/internal/cleanup"
	"github.com/italolelis/asset_bootstrap/internal/config"
	"github.com/italolelis/asset_bootstrap/internal/fetch"
	"github.com/italolelis/asset_bootstrap/internal/http/rest"
	"github.com/italolelis/asset_bootstrap/internal/locator"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/italolelis/asset_bootstrap/internal/manifest"
	"github.com/italolelis/asset_bootstrap/internal/migrate"
	"github.com/italolelis/asset_bootstrap/internal/notifier"
	"github.com/italolelis/asset_bootstrap/internal/storage/sqlite"
	"github.com/italolelis/asset_bootstrap/internal/telemetry"
	"github.com/italolelis/asset_bootstrap/internal/watch"
	"golang.org/x/sync/errgroup"
)

// errReady stops the run group once every required asset is present and EXIT_WHEN_READY is set.
var errReady = errors.New("assets ready")

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("asset bootstrap starting...", "log_level", cfg.LogLevel, "locale", cfg.Locale)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    "asset_bootstrap",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedFetchRepository(database, tel)

	// =========================================================================
	// Start Fetch Facility
	facility, closeSources := buildFacility(repo, tel, cfg)
	defer closeSources()
	defer facility.Close()

	if err := facility.Recover(ctx); err != nil {
		return err
	}

	// =========================================================================
	// Resolve Storage
	loc := locator.New(cfg.Candidates(), cfg.DefaultDir, cfg.MarkerFile)

	dir, err := loc.Directory(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	if !dir.Writable {
		logger.Warn("authoritative directory is not writable, fetches will fail", "path", dir.Path)
	}

	migrateLegacy(ctx, tel, dir.Path, cfg)

	// =========================================================================
	// Start Acquisition
	m, err := buildManifest(cfg)
	if err != nil {
		return err
	}

	orch := acquisition.New(m, facility, directoryFunc(loc), manifest.ParseLocale(cfg.Locale), acquisition.WithTelemetry(tel))

	if _, err := orch.Evaluate(ctx, "startup"); err != nil {
		return err
	}

	if cfg.ExitWhenReady && orch.IsReady(ctx) {
		logger.Info("all required assets present", "path", dir.Path)

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		orch.Run(gctx, facility.Outcomes())

		return nil
	})

	// =========================================================================
	// Start API Service
	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewRouter(rest.NewStatusHandler(orch, repo), tel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		cleanup.Run(gctx, repo, tel, directoryFunc(loc), cfg.PartialRetention, cfg.CleanupInterval)

		return nil
	})

	// =========================================================================
	// Start Watch
	if cfg.Watch {
		w := watch.New(dir.Path, cfg.WatchRate, func(ctx context.Context) error {
			_, err := orch.Evaluate(ctx, "watch")

			return err
		})

		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				logger.Error("directory watch disabled", "err", err)
			}

			return nil
		})
	}

	// =========================================================================
	// Start Notification
	g.Go(func() error {
		notify(gctx, orch, buildNotifier(cfg))

		return nil
	})

	if cfg.ExitWhenReady {
		g.Go(func() error {
			if err := acquisition.WaitReady(gctx, orch, cfg.WatchRate); err != nil {
				return nil
			}

			logger.Info("all required assets present, exiting", "path", dir.Path)

			return errReady
		})
	}

	logger.Info("waiting for assets...",
		"path", dir.Path,
		"reason", dir.Reason,
		"max_parallel", cfg.MaxParallel,
		"partial_retention", cfg.PartialRetention.String(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, errReady) {
		return err
	}

	return nil
}

func notify(ctx context.Context, orch *acquisition.Orchestrator, notif notifier.Notifier) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-orch.OnFetchRequested:
			logger.Info("fetch requested", "asset_id", req.Asset, "path", req.Destination)
		case outcome := <-orch.OnFetchFailed:
			if err := notif.Notify(ctx, fmt.Sprintf("❌ Fetch failed for %s: %v", outcome.Asset, outcome.Err)); err != nil {
				logger.Error("failed to send notification", "asset_id", outcome.Asset, "err", err)
			}
		case status := <-orch.OnReady:
			if err := notif.Notify(ctx, "✅ All required assets are present in "+status.Directory); err != nil {
				logger.Error("failed to send notification", "err", err)
			}
		}
	}
}

func buildFacility(repo *sqlite.InstrumentedFetchRepository, tel *telemetry.Telemetry, cfg *config.Config) (*fetch.Facility, func()) {
	httpSource := fetch.NewHTTPSource(cfg.SourceToken)
	gcsSource := fetch.NewGCSSource(cfg.GCSCredentialsFile)

	f := fetch.NewFacility(repo,
		fetch.WithSource("http", httpSource),
		fetch.WithSource("https", httpSource),
		fetch.WithSource("gs", gcsSource),
		fetch.WithMaxParallel(cfg.MaxParallel),
		fetch.WithTelemetry(tel),
	)

	return f, func() { gcsSource.Close() }
}

func buildManifest(cfg *config.Config) (*manifest.Manifest, error) {
	descriptors := manifest.DefaultCatalog()

	if cfg.CatalogPath != "" {
		var err error

		descriptors, err = manifest.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load asset catalog: %w", err)
		}
	}

	m, err := manifest.New(descriptors, manifest.RequireFullArchive(cfg.RequireFullArchive))
	if err != nil {
		return nil, fmt.Errorf("invalid asset catalog: %w", err)
	}

	return m, nil
}

func buildNotifier(cfg *config.Config) notifier.Notifier {
	if cfg.DiscordWebhookURL != "" {
		return notifier.Multi{notifier.LogNotifier{}, notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)}
	}

	return notifier.LogNotifier{}
}

func directoryFunc(loc *locator.Locator) acquisition.DirectoryFunc {
	return loc.Path
}

func migrateLegacy(ctx context.Context, tel *telemetry.Telemetry, dir string, cfg *config.Config) []migrate.Record {
	if cfg.LegacyDir == "" {
		return nil
	}

	records := migrate.New(dir).MigrateAll(ctx, cfg.LegacyDir)
	for _, rec := range records {
		tel.RecordMigration(string(rec.Outcome))
	}

	return records
}
