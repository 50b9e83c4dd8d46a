package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/skillsync/internal/adapters/http/api"
	"github.com/okian/skillsync/internal/adapters/http/swagger"
	"github.com/okian/skillsync/internal/adapters/realtime/hub"
	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/internal/config"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// HTTP server timeout constants. No write timeout: websocket connections
// are long lived.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime hub",
		Long: `Run the SkillSync server: REST API, websocket hub at /ws, OpenAPI
docs at /api-docs and Prometheus metrics at /metrics.

Example:
  skillsync serve --addr :9080
  SKILLSYNC_STORE_DRIVER=sqlite SKILLSYNC_SQLITE_PATH=./skillsync.db skillsync serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.Config
			if opts.Addr != "" {
				cfg.Addr = opts.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, &cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides addr from config)")
	return cmd
}

// server is the wired application.
type server struct {
	handler http.Handler
	svc     *service.Service
	hub     *hub.Hub
	store   repository.DocumentStore
}

func (s *server) close() {
	s.svc.Stop()
	if err := s.store.Close(); err != nil {
		logger.Get().Warn(context.Background(), "store close failed", logger.Error(err))
	}
}

// openStore returns the document store selected by cfg.
func openStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, error) {
	if cfg.StoreDriver != config.StoreSQLite {
		return repository.NewMemoryStore(), nil
	}
	store, err := repository.OpenSQLite(ctx, cfg.SQLitePath,
		repository.WithLogger(logger.Named("sqlite")))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildServer wires config -> store -> service -> hub -> API and starts the
// recompute workers.
func buildServer(ctx context.Context, cfg *config.Config) (*server, error) {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	authn := auth.New(cfg.JWTSecret, 0)
	if authn.DevMode() {
		log.Warn(ctx, "no jwt_secret configured; trusting user_id query parameters")
	}
	h := hub.New(
		hub.WithSendBuffer(cfg.SendBuffer),
		hub.WithAllowedOrigins(cfg.AllowedOrigins),
		hub.WithAuthenticator(authn),
	)

	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.RecomputeQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		service.WithEngineOptions(service.WithHistoryLimit(cfg.HistoryLimit)),
		service.WithPublisher(h),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, authn, h, api.WithHistoryLimit(cfg.HistoryLimit)).Register(ctx, mux)

	return &server{handler: mux, svc: svc, hub: h, store: store}, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	app, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, app.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater periodically records runtime metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
