package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/api"
	"github.com/burrowhq/burrow/pkg/config"
	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/graph"
	"github.com/burrowhq/burrow/pkg/hub"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/reconciler"
	"github.com/burrowhq/burrow/pkg/steps"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/worker"
)

// app holds the wired components shared by the commands
type app struct {
	cfg     *config.Config
	store   *storage.BoltStore
	graph   *graph.Graph
	hub     hub.Client
	runtime *steps.Runtime
	orch    *orchestrator.Orchestrator
	broker  *events.Broker
}

func buildApp(cfg *config.Config) (*app, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store in %s: %w", cfg.DataDir, err)
	}

	g := graph.MustNew(graph.Specification)
	hubClient := hub.NewHTTPClient(hub.HTTPClientConfig{
		Endpoint: cfg.Hub.Endpoint,
		Token:    cfg.Hub.Token,
		Timeout:  cfg.Hub.Timeout.Std(),
	})

	registry, err := steps.NewRegistry(g, steps.Deps{
		Store:          store,
		Hub:            hubClient,
		ParquetBaseURL: cfg.Processing.ParquetBaseURL,
		RowsMaxNumber:  cfg.Processing.RowsMaxNumber,
		RowsMinNumber:  cfg.Processing.RowsMinNumber,
		RowsMaxBytes:   cfg.Processing.RowsMaxBytes,
		CellMinBytes:   cfg.Processing.CellMinBytes,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build the step registry: %w", err)
	}

	retryable := retryableCodes(cfg)
	runtime := steps.NewRuntime(store, g, registry, steps.RuntimeConfig{
		ContentMaxBytes: cfg.Processing.ContentMaxBytes,
		RetryableCodes:  retryable,
	})
	orch := orchestrator.New(store, g, hubClient, orchestrator.Config{
		Blocklist:      cfg.Processing.Blocklist,
		RetryableCodes: retryable,
	})

	return &app{
		cfg:     cfg,
		store:   store,
		graph:   g,
		hub:     hubClient,
		runtime: runtime,
		orch:    orch,
		broker:  events.NewBroker(),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Errorf("failed to close store: %v", err)
	}
}

// retryableCodes maps the configured code names; nil keeps the default set
func retryableCodes(cfg *config.Config) []types.ErrorCode {
	if len(cfg.Processing.RetryableCodes) == 0 {
		return nil
	}
	out := make([]types.ErrorCode, 0, len(cfg.Processing.RetryableCodes))
	for _, code := range cfg.Processing.RetryableCodes {
		out = append(out, types.ErrorCode(code))
	}
	return out
}

func (a *app) newWorker() *worker.Worker {
	w := worker.New(a.store, a.graph, a.runtime, a.orch, worker.Config{
		Concurrency:         a.cfg.Worker.Concurrency,
		AllowedKinds:        a.cfg.Worker.AllowedKinds,
		MaxJobsPerNamespace: a.cfg.Worker.MaxJobsPerNamespace,
		HeartbeatInterval:   a.cfg.Worker.HeartbeatInterval.Std(),
		MaxJobDuration:      a.cfg.Worker.MaxJobDuration.Std(),
		PollMaxInterval:     a.cfg.Worker.PollMaxInterval.Std(),
	})
	w.SetBroker(a.broker)
	return w
}

func (a *app) newReconciler() *reconciler.Reconciler {
	return reconciler.New(a.store, a.graph, a.hub, a.orch, reconciler.Config{
		Interval:           a.cfg.Reconciler.Interval.Std(),
		BackfillSampleSize: a.cfg.Reconciler.BackfillSampleSize,
		ZombieMaxSilence:   a.cfg.Reconciler.ZombieMaxSilence.Std(),
		ZombieMaxDuration:  a.cfg.Reconciler.ZombieMaxDuration.Std(),
		MaxJobAttempts:     a.cfg.Reconciler.MaxJobAttempts,
		FinishedJobTTL:     a.cfg.Reconciler.FinishedJobTTL.Std(),
	})
}

func (a *app) newAPIServer() *api.Server {
	return api.New(a.orch, a.store, a.broker, api.Config{
		Addr:           a.cfg.API.Addr,
		WebhookSecret:  a.cfg.API.WebhookSecret,
		AllowedOrigins: a.cfg.API.AllowedOrigins,
		CacheTTL:       a.cfg.API.CacheTTL.Std(),
		MaxAgeLong:     a.cfg.API.MaxAgeLong,
		MaxAgeShort:    a.cfg.API.MaxAgeShort,
	})
}

// logEvents drains the broker into the log, so operators can tail the
// processing activity
func (a *app) logEvents(ctx context.Context) {
	sub := a.broker.Subscribe()
	defer a.broker.Unsubscribe(sub)
	logger := log.WithComponent("events")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			logger.Debug().
				Str("type", string(event.Type)).
				Str("dataset", event.Dataset).
				Str("kind", event.Kind).
				Msg(event.Message)
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the workers and the reconciler in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a.broker.Start()
		defer a.broker.Stop()
		go a.logEvents(ctx)

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "")
		collector := metrics.NewCollector(a.store, cfg.Metrics.CollectInterval.Std())
		collector.Start()
		defer collector.Stop()

		recon := a.newReconciler()
		recon.Start()
		defer recon.Stop()

		pool := a.newWorker()
		go func() {
			if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("worker pool stopped: %v", err)
			}
		}()

		server := a.newAPIServer()
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run only the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		a.broker.Start()
		defer a.broker.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "")
		collector := metrics.NewCollector(a.store, cfg.Metrics.CollectInterval.Std())
		collector.Start()
		defer collector.Stop()

		server := a.newAPIServer()
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the job loops and the reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a.broker.Start()
		defer a.broker.Stop()
		go a.logEvents(ctx)

		recon := a.newReconciler()
		recon.Start()
		defer recon.Stop()

		pool := a.newWorker()
		errCh := make(chan error, 1)
		go func() {
			errCh <- pool.Run(ctx)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
			cancel()
			<-errCh
			return nil
		case err := <-errCh:
			return err
		}
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill DATASET",
	Short: "Plan processing jobs for one dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		created, err := a.orch.ForceRefresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%d jobs planned for %s\n", created, args[0])
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge DATASET",
	Short: "Delete every cache entry and pending job of one dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.orch.DeleteDataset(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s purged\n", args[0])
		return nil
	},
}
