package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"axle-monitor/core/internal/auth"
	"axle-monitor/core/internal/maintenance"
	"axle-monitor/core/internal/metrics"
	"axle-monitor/core/internal/pipeline"
	"axle-monitor/core/internal/service"
	transporthttp "axle-monitor/core/internal/transport/http"
)

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the ingestion pipeline and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			st, err := openStores(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer st.Close()

			bridge, hub, closeBridge, err := newBridge(cfg, st, m, logger)
			if err != nil {
				return err
			}
			defer closeBridge()

			// Pipeline workers outlive ctx so they can drain after the
			// server stops accepting frames.
			workerCtx, stopWorkers := context.WithCancel(context.Background())
			defer stopWorkers()

			dispatcher := pipeline.NewDispatcher(
				cfg.Pipeline.FrameChannelSize,
				cfg.Pipeline.StateChannelSize,
				cfg.Pipeline.AlertChannelSize,
				m,
			)
			evaluator := pipeline.NewAlertEvaluator(dispatcher.AlertChan, st.records, bridge, m, logger)

			var wg sync.WaitGroup
			spawn := func(n int, run func(context.Context)) {
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						run(workerCtx)
					}()
				}
			}
			spawn(cfg.Pipeline.FrameWriters, pipeline.NewFrameWriter(
				dispatcher.FrameChan, st.frames, cfg.Pipeline.BatchSize, cfg.Pipeline.FlushInterval, m, logger).Run)
			spawn(cfg.Pipeline.StateWriters, pipeline.NewStateWriter(dispatcher.StateChan, st.redis, logger).Run)
			spawn(cfg.Pipeline.AlertWorkers, evaluator.Run)

			mcfg := maintenance.ConfigFrom(cfg.Maintenance)
			scheduler := maintenance.NewScheduler(st.records, bridge, mcfg, m, logger)
			if !noScheduler {
				go scheduler.Run(ctx, cfg.Maintenance.TickInterval)
			}

			deps := transporthttp.Deps{
				Auth:        auth.NewAuthenticator(cfg.Auth, st.redis, logger),
				Dispatcher:  dispatcher,
				Telemetry:   service.NewTelemetry(st.frames, st.records, m, logger),
				State:       st.redis,
				Maintenance: maintenance.NewOperations(st.records, mcfg, logger),
				Scheduler:   scheduler,
				Health: map[string]transporthttp.Pinger{
					"postgres": st.frames,
					"redis":    st.redis,
				},
				Metrics: m.Handler(),
				Logger:  logger,
			}
			if hub != nil {
				deps.WS = hub
			}

			srv := &http.Server{
				Addr:              ":" + cfg.HTTP.Port,
				Handler:           transporthttp.NewServer(deps),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
				_ = srv.Close()
			}

			// Ingest handlers still running past this point have their
			// frames counted as dropped.
			dispatcher.Close()
			wg.Wait()
			logger.Info("pipeline drained")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the maintenance scheduler loop")
	return cmd
}
