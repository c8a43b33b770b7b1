package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/iaengine/backend/internal/config"
	"github.com/zhouzirui/iaengine/backend/internal/handler"
	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	"github.com/zhouzirui/iaengine/backend/internal/service/ai"
	"github.com/zhouzirui/iaengine/backend/internal/service/models"
	"github.com/zhouzirui/iaengine/backend/internal/service/prompt"
	"github.com/zhouzirui/iaengine/backend/internal/service/relay"
	"github.com/zhouzirui/iaengine/backend/internal/service/session"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, nil)))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, continuing with system environment variables only", logger.Err(err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", logger.Err(err))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, &logger.Options{
		Level:      logger.ParseLevel(cfg.Server.LogLevel),
		TimeFormat: time.DateTime,
		ShowSource: !cfg.Server.Production(),
		NoColor:    cfg.Server.Production(),
	})))

	if cfg.Server.DebugEnabled() {
		slog.Info("environment snapshot", "env", strings.Join(config.RedactedEnv(os.Environ()), " "))
	}

	// 会话存储与过期清理
	sessions := session.NewStore(cfg.Auth.SessionTTL)
	go sessions.RunJanitor(ctx, cfg.Auth.SweepInterval)
	if err := metrics.RegisterSessionGauge(prometheus.DefaultRegisterer, sessions.Len); err != nil {
		slog.Warn("failed to register session gauge", logger.Err(err))
	}

	overrides := cfg.AI.ModelAliases
	if _, ok := overrides[cfg.AI.DefaultModel]; !ok && cfg.AI.DefaultModel != "" && !isBuiltinAlias(cfg.AI.DefaultModel) {
		// MODEL 不在别名表中时按原样透传
		overrides[cfg.AI.DefaultModel] = cfg.AI.DefaultModel
	}
	resolver, err := models.NewResolver(cfg.AI.DefaultModel, models.WithOverrides(overrides)...)
	if err != nil {
		slog.Error("invalid model alias table", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("model aliases loaded", "default", resolver.Default().AliasUsed, "aliases", resolver.Aliases())

	fallback := prompt.LoadFallback(cfg.Prompt.FallbackFile)
	slog.Info("system prompt fallback loaded", "source", string(fallback.Source), "len", len(fallback.Text))
	prompts := prompt.NewResolver(fallback)

	upstream, err := ai.NewChatModel(ctx, cfg.AI, resolver.Default().UpstreamID)
	if err != nil {
		slog.Error("failed to initialize upstream model", logger.Err(err))
		os.Exit(1)
	}

	relaySvc, err := relay.NewService(ctx, resolver, prompts, upstream, relay.WithDiagnostics(cfg.Server.DebugEnabled()))
	if err != nil {
		slog.Error("failed to initialize chat relay", logger.Err(err))
		os.Exit(1)
	}

	router := handler.NewRouter(handler.Dependencies{
		Sessions:  sessions,
		Relay:     relaySvc,
		Server:    cfg.Server,
		Auth:      cfg.Auth,
		RateLimit: cfg.RateLimit,
	})

	startServer(ctx, cfg.Server, router)
}

func isBuiltinAlias(name string) bool {
	for _, alias := range models.DefaultAliases() {
		if alias.Alias == name {
			return true
		}
	}
	return false
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("iaengine backend listening", "addr", addr, "env", serverCfg.Env)
	if err := runServer(ctx, srv); err != nil {
		slog.Error("server error", logger.Err(err))
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
