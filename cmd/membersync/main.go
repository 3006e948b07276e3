package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/asmbly/membersync/internal/batch"
	"github.com/asmbly/membersync/internal/config"
	"github.com/asmbly/membersync/internal/daemon"
	"github.com/asmbly/membersync/internal/entitlement"
	"github.com/asmbly/membersync/internal/logger"
	"github.com/asmbly/membersync/internal/mailer"
	"github.com/asmbly/membersync/internal/monitoring"
	"github.com/asmbly/membersync/internal/neon"
	"github.com/asmbly/membersync/internal/openpath"
	"github.com/asmbly/membersync/internal/reconcile"
	"github.com/asmbly/membersync/internal/web"
)

func main() {
	memberID := pflag.Int("member", 0, "reconcile a single Neon account and exit")
	serve := pflag.Bool("serve", false, "run the sync daemon and HTTP trigger server")
	dryRun := pflag.Bool("dry-run", false, "log writes instead of executing them")
	pflag.Parse()

	if err := run(context.Background(), *memberID, *serve, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, memberID int, serve, dryRunFlag bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	cfg := config.NewConfig()
	if dryRunFlag {
		cfg.Sync.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	log := logger.New(cfg)
	if cfg.Sync.DryRun {
		log.Warn("Dry run enabled: no writes will reach Neon or OpenPath")
	}

	crm := neon.NewClient(log, cfg.Neon)
	openPath := openpath.NewClient(log, cfg.OpenPath)

	var notifier reconcile.Notifier
	if cfg.SMTP.Enabled && !cfg.Sync.DryRun {
		notifier = mailer.NewSMTP(log, cfg.SMTP)
	} else {
		notifier = mailer.NewLog(log)
	}

	reconciler := reconcile.New(log, crm, openPath, notifier, telemetry, reconcile.Options{
		Catalog:         entitlement.DefaultCatalog(),
		DryRun:          cfg.Sync.DryRun,
		ResurrectionAge: cfg.Sync.ResurrectionAge,
	})

	locks := batch.NewMemberLocks()
	runner := batch.NewRunner(log, reconciler, crm, telemetry, locks,
		cfg.Sync.Workers, cfg.Sync.PageSize)

	if memberID > 0 {
		outcome, err := reconciler.Reconcile(ctx, memberID)
		if err != nil {
			return err
		}
		log.Info("Reconciled account",
			"account_id", outcome.AccountID,
			"openpath_id", outcome.OpenPathID,
			"transition", string(outcome.Transition),
			"entitled", outcome.Entitled.IDs(),
			"wrote", outcome.Wrote,
			"provisioned", outcome.Provisioned,
			"skipped", outcome.Skipped)
		return nil
	}

	if !serve {
		result, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("batch run %s finished with %d failed accounts",
				result.RunID, len(result.Failed))
		}
		return nil
	}

	manager := daemon.NewManager(log)
	manager.Add("sync", daemon.SyncTask(runner, log, cfg.Sync.Interval))
	manager.Start(ctx)

	server := web.NewServer(log, reconciler, runner, locks, cfg.Server)
	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
	}()

	log.Info("Listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := server.Listen(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	manager.Wait()
	return nil
}
