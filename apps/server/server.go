package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deepwell-rpc/api"
	"deepwell-rpc/apps/server/internal/config"
	"deepwell-rpc/apps/server/internal/gateway"
	"deepwell-rpc/apps/server/internal/logging"
	"deepwell-rpc/apps/server/internal/rpc"
	"deepwell-rpc/apps/server/internal/storage"
	"deepwell-rpc/apps/server/internal/telemetry"
	"deepwell-rpc/apps/server/internal/ws"
	"deepwell-rpc/deepwell"
)

const httpShutdownTimeout = 10 * time.Second

// run serves until ctx ends, then stops the transports and the core owner together.
func run(ctx context.Context, cfg *config.Config, base zerolog.Logger) error {
	log := logging.Component(base, "server")

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, api.ProtocolVersion)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	log.Debug().Msg("Building DEEPWELL server configuration")
	store, backend, err := storage.Open(ctx, cfg.DatabaseURL, base)
	if err != nil {
		return err
	}
	blacklist, err := deepwell.LoadPasswordBlacklist(cfg.PasswordBlacklistFile)
	if err != nil {
		_ = store.Close()
		return err
	}
	core, err := deepwell.NewServer(deepwell.Config{
		Store:      store,
		SessionTTL: cfg.SessionTTL,
		Blacklist:  blacklist,
	})
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()
	log.Info().Str("backend", backend).Int("blacklisted_passwords", len(blacklist)).Msg("DEEPWELL core ready")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	owner := gateway.Start(core, gateway.Options{
		QueueCapacity: cfg.QueueCapacity,
		Logger:        base,
		Metrics:       gateway.NewMetrics(registry),
	})
	svc := rpc.NewService(gateway.NewAPI(owner.Handle()), base, cfg.RequestTimeout)

	rpcServer, err := rpc.Listen(cfg.Address(), svc, base)
	if err != nil {
		_ = owner.Shutdown(context.Background(), gateway.ShutdownImmediate)
		return err
	}
	wsGateway := ws.New(svc, base)

	transports := []func(context.Context) error{rpcServer.Serve}
	if cfg.WebSocketAddress != "" {
		srv := &http.Server{Addr: cfg.WebSocketAddress, Handler: wsGateway, ReadHeaderTimeout: 10 * time.Second}
		transports = append(transports, func(ctx context.Context) error {
			return serveHTTP(ctx, srv, "websocket", log, wsGateway.Close)
		})
	}
	if cfg.MetricsAddress != "" {
		srv := &http.Server{Addr: cfg.MetricsAddress, Handler: adminHandler(registry, owner, base), ReadHeaderTimeout: 10 * time.Second}
		transports = append(transports, func(ctx context.Context) error {
			return serveHTTP(ctx, srv, "admin", log, nil)
		})
	}
	serveErr := serve(ctx, owner, cfg.Shutdown, cfg.ShutdownTimeout, log, transports...)
	log.Info().Msg("DEEPWELL server stopped")
	return serveErr
}

// serve runs every transport until ctx ends or one of them returns. The core
// owner is shut down in mode at the same moment the transports start stopping,
// so an immediate shutdown fails the calls those transports are still waiting on.
func serve(ctx context.Context, owner *gateway.Owner, mode gateway.ShutdownMode, drainTimeout time.Duration,
	log zerolog.Logger, transports ...func(context.Context) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, transport := range transports {
		g.Go(func() error {
			defer cancel()
			return transport(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, stop := context.WithTimeout(context.Background(), drainTimeout)
		defer stop()
		if err := owner.Shutdown(drainCtx, mode); err != nil {
			log.Warn().Err(err).Msg("core owner did not drain in time")
		}
		return nil
	})
	return g.Wait()
}

// serveHTTP runs srv until ctx ends. onStop runs before the server shuts down.
func serveHTTP(ctx context.Context, srv *http.Server, name string, log zerolog.Logger, onStop func()) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msgf("%s server listening", name)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", name, err)
	case <-ctx.Done():
	}

	if onStop != nil {
		onStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", name, err)
	}
	return nil
}

type promLogger struct {
	log zerolog.Logger
}

func (l promLogger) Println(v ...any) {
	l.log.Error().Msg(fmt.Sprint(v...))
}

// adminHandler serves /metrics and /health.
func adminHandler(registry *prometheus.Registry, owner *gateway.Owner, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{log: logging.Component(log, "metrics")},
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := owner.State()
		if state != gateway.StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write([]byte(state.String()))
	})
	return mux
}
