// Command lifehelper-server serves QR code login and mini-program code
// login over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	lifehelper "github.com/sengeiou/life-helper-server"
	"github.com/sengeiou/life-helper-server/credential"
	"github.com/sengeiou/life-helper-server/httpapi"
	"github.com/sengeiou/life-helper-server/metrics/export/prometheus"
	"github.com/sengeiou/life-helper-server/qrimage"
	"github.com/sengeiou/life-helper-server/user"
	"github.com/sengeiou/life-helper-server/weixin"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "lifehelper-server: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	cfg, err := loadConfig(args, os.LookupEnv, stderr)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	engine, images, err := buildEngine(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		"signing", report.SigningAlgorithm,
		"ticketTTL", report.TicketTTL,
		"sessionTTL", report.SessionTTL,
		"issueThrottle", report.IssueThrottleActive,
		"pollThrottle", report.PollThrottleActive,
		"credentialCache", report.CredentialCache,
		"codeLogin", report.CodeLoginEnabled,
		"audit", report.AuditEnabled,
	)

	engine.Start(ctx)

	api := httpapi.NewServer(httpapi.Config{
		Engine:  engine,
		Images:  images,
		Metrics: prometheus.NewPrometheusExporter(engine).Handler(),
		Logger:  logger,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg serverConfig, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openRedis(ctx context.Context, cfg serverConfig, logger *slog.Logger) (*redis.Client, func(), error) {
	addr := cfg.Redis.Addr
	var embedded *miniredis.Miniredis
	if cfg.DevRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		embedded = mr
		addr = mr.Addr()
		logger.Warn("using embedded redis, state is lost on exit", "addr", addr)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closeFn := func() {
		_ = rdb.Close()
		if embedded != nil {
			embedded.Close()
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, closeFn, nil
}

func buildEngine(ctx context.Context, cfg serverConfig, rdb *redis.Client, logger *slog.Logger) (*lifehelper.Engine, *qrimage.Store, error) {
	engineCfg, err := cfg.engineConfig(os.ReadFile)
	if err != nil {
		return nil, nil, err
	}

	images := qrimage.NewStore(rdb, engineCfg.Ticket.ImageRedisPrefix)
	b := lifehelper.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger)
	if cfg.Audit {
		b.WithAuditSink(lifehelper.NewSlogSink(logger.With("component", "audit")))
	}

	if cfg.weixinEnabled() {
		client, err := weixin.NewClient(weixin.Config{
			AppID:     cfg.Weixin.AppID,
			AppSecret: cfg.Weixin.AppSecret,
			BaseURL:   cfg.Weixin.BaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		b.WithCredentialIssuer(client).
			WithCredentialProber(client).
			WithIdentityExchanger(client)

		resolver, err := openUsers(ctx, cfg, rdb, logger)
		if err != nil {
			return nil, nil, err
		}
		b.WithUserResolver(resolver)

		if cfg.Weixin.QRProvider == "wxacode" {
			b.WithResourceProviderFunc(func(m *credential.Manager) lifehelper.ResourceProvider {
				return qrimage.NewWxacodeProvider(images, m, client, qrimage.WxacodeConfig{
					PublicBaseURL: cfg.PublicBaseURL,
					Page:          cfg.Weixin.Page,
					EnvVersion:    cfg.Weixin.EnvVersion,
				})
			})
		}
	} else {
		logger.Warn("weixin credentials not configured, code login and credential refresh are disabled")
	}

	if cfg.Weixin.QRProvider == "local" {
		b.WithResourceProvider(qrimage.NewRenderer(images, qrimage.RendererConfig{
			PublicBaseURL: cfg.PublicBaseURL,
			LinkPrefix:    cfg.Weixin.LinkPrefix,
		}))
	}

	engine, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}
	return engine, images, nil
}

func openUsers(ctx context.Context, cfg serverConfig, rdb *redis.Client, logger *slog.Logger) (lifehelper.UserResolver, error) {
	if cfg.Users.Backend != "mysql" {
		return user.NewRedisStore(rdb, cfg.Users.Prefix), nil
	}
	db, err := user.OpenMySQL(user.MySQLConfig{
		DSN:             cfg.Users.DSN,
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		Logger:          logger.With("component", "gorm"),
	})
	if err != nil {
		return nil, err
	}
	store := user.NewSQLStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
