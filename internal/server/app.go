// Package server builds the sizewatch service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sizewatch/internal/alert"
	"github.com/JakeFAU/sizewatch/internal/alert/sound"
	"github.com/JakeFAU/sizewatch/internal/alert/telegram"
	"github.com/JakeFAU/sizewatch/internal/api"
	"github.com/JakeFAU/sizewatch/internal/assets"
	"github.com/JakeFAU/sizewatch/internal/backoff"
	"github.com/JakeFAU/sizewatch/internal/browser"
	"github.com/JakeFAU/sizewatch/internal/config"
	"github.com/JakeFAU/sizewatch/internal/extractor"
	"github.com/JakeFAU/sizewatch/internal/logging"
	"github.com/JakeFAU/sizewatch/internal/metrics"
	"github.com/JakeFAU/sizewatch/internal/monitor"
	"github.com/JakeFAU/sizewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/sizewatch/internal/progress"
	progresssinks "github.com/JakeFAU/sizewatch/internal/progress/sinks"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	hub       *progress.Hub
	monitor   *monitor.Orchestrator
	apiServer *api.Server
	watchList []monitor.WatchedItem
}

// Option adjusts Build; tests use it to swap out side-effecting pieces.
type Option func(*buildOptions)

type buildOptions struct {
	logger   *zap.Logger
	sessions monitor.SessionManager
	player   alert.Player
}

// WithLogger replaces the configured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithSessionManager replaces headless Chrome.
func WithSessionManager(m monitor.SessionManager) Option {
	return func(o *buildOptions) { o.sessions = m }
}

// WithPlayer replaces the sound player.
func WithPlayer(p alert.Player) Option {
	return func(o *buildOptions) { o.player = p }
}

// Build creates the application's dependencies.
func Build(cfg config.Config, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	logs := logging.NewLineBuffer(cfg.Logging.BufferLines)
	logger := bo.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
			File:        cfg.Logging.File,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
			Compress:    cfg.Logging.Compress,
			Buffer:      logs,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	watchList, err := cfg.WatchList()
	if err != nil {
		return nil, fmt.Errorf("watch list: %w", err)
	}

	app := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  metrics.NewRegistry(),
		watchList: watchList,
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("items", len(watchList)),
		zap.Bool("auth", cfg.Auth.Enabled),
	)

	recent := progresssinks.NewRecentSink(0)
	if err := app.setupProgress(recent); err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		MinInterval: cfg.PolitenessInterval(),
		Burst:       cfg.Politeness.Burst,
		Registerer:  app.registry,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter init failed: %w", err)
	}

	sessions := bo.sessions
	if sessions == nil {
		sessions = browser.NewManager(browser.Config{
			UserAgent:         cfg.Browser.UserAgent,
			WindowWidth:       cfg.Browser.WindowWidth,
			WindowHeight:      cfg.Browser.WindowHeight,
			NavigationTimeout: cfg.NavTimeout(),
			SettleDelay:       cfg.Settle(),
			ExecPath:          cfg.Browser.ExecPath,
		}, logger.Named("browser"))
	}

	app.monitor, err = monitor.New(monitor.Options{
		Sessions:             sessions,
		Extractors:           extractor.Registry(),
		Notifier:             app.setupAlerts(bo.player),
		Waiter:               backoff.New(backoff.WithLogger(logger.Named("backoff"))),
		Limiter:              limiter,
		RecoveryDelaySeconds: cfg.Monitor.RecoveryDelaySeconds,
		Emitter:              app.hub,
		Logger:               logger.Named("monitor"),
	})
	if err != nil {
		return nil, fmt.Errorf("monitor init failed: %w", err)
	}

	httpMetrics, err := metrics.NewHTTP(app.registry)
	if err != nil {
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}
	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer, err = api.NewServer(api.Options{
		Controller:   app.monitor,
		Logs:         logs,
		Events:       recent,
		Defaults:     cfg.RunConfig(),
		DefaultItems: watchList,
		APIKey:       apiKey,
		Metrics:      metrics.Handler(app.registry),
		HTTPMetrics:  httpMetrics,
		Logger:       logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api init failed: %w", err)
	}

	if !cfg.Credentials().Complete() {
		app.logger.Warn("telegram credentials missing (BOT_API or CHAT_ID); alerts will not be sent remotely")
	}
	return app, nil
}

func (a *App) setupProgress(recent *progresssinks.RecentSink) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg,
		promSink,
		recent,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func (a *App) setupAlerts(player alert.Player) *alert.Dispatcher {
	if player == nil && a.cfg.Sound.Enabled {
		player = sound.NewCommandPlayer(sound.Config{
			Asset:        a.cfg.Sound.Asset,
			ResolveAsset: assets.Resolve,
			Logger:       a.logger.Named("sound"),
		})
	}
	if player == nil {
		a.logger.Info("sound alerts disabled")
	}
	messenger := telegram.New(telegram.Config{
		BaseURL: a.cfg.Telegram.BaseURL,
		Timeout: a.cfg.TelegramTimeout(),
	})
	return alert.NewDispatcher(player, messenger, a.logger.Named("alert"))
}

// Handler exposes the control API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Monitor returns the orchestrator driven by the control API.
func (a *App) Monitor() *monitor.Orchestrator {
	return a.monitor
}

// Run serves the control API, optionally auto-starts the configured
// watch-list, and blocks until ctx ends or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	if a.cfg.Monitor.AutoStart {
		a.autoStart()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	default:
		return closeErr
	}
}

func (a *App) autoStart() {
	if len(a.watchList) == 0 {
		a.logger.Warn("auto_start set but no items configured")
		return
	}
	if err := a.monitor.Start(a.watchList, a.cfg.RunConfig()); err != nil {
		a.logger.Error("auto start failed", zap.Error(err))
	}
}

// Close stops the monitor, drains progress events and flushes logs.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.monitor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("monitor shutdown: %w", err))
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
