package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/yourusername/session-gate/internal/audit"
	"github.com/yourusername/session-gate/internal/auth"
	"github.com/yourusername/session-gate/internal/config"
	"github.com/yourusername/session-gate/internal/httpserver"
	"github.com/yourusername/session-gate/internal/logutil"
	"github.com/yourusername/session-gate/internal/password"
	"github.com/yourusername/session-gate/internal/session"
	"github.com/yourusername/session-gate/internal/users"
	"github.com/yourusername/session-gate/internal/web"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP server (default)",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logutil.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx := logutil.WithLogger(c.Context, logger)
	gin.SetMode(cfg.GinMode)

	store, closeStore, err := openUserStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var events auth.EventPublisher
	auditManager, err := setupAudit(cfg, logger)
	if err != nil {
		return err
	}
	if auditManager != nil {
		auditManager.StartWorkers()
		defer auditManager.Shutdown()
		events = auditManager
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret, err = session.RandomSecret()
		if err != nil {
			return err
		}
		logger.Warn().Msg("SESSION_SECRET is not set; using a random key, sessions will not survive restarts")
	}

	router, err := newRouter(cfg, secret, store, events, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("mode", cfg.GinMode).
		Str("user_store", cfg.UserStore).
		Str("session_store", cfg.SessionStore).
		Bool("audit", auditManager != nil).
		Msg("configuration loaded")
	return httpserver.Serve(ctx, ":"+cfg.Port, router)
}

// newRouter はミドルウェアとルートを組み立てます。
func newRouter(cfg *config.Config, secret []byte, store users.Store, events auth.EventPublisher, logger zerolog.Logger) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), logutil.RequestLogger(logger))

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	if cfg.CORSAllowedOrigins != "" {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	// セッションを作らないエンドポイント
	router.GET("/health", handleHealth)
	if cfg.StaticDir != "" {
		router.Static("/static", cfg.StaticDir)
	}

	sessionStore, err := session.NewStore(session.StoreOptions{
		Kind:        cfg.SessionStore,
		Secret:      secret,
		MaxAge:      cfg.SessionMaxAge,
		Secure:      cfg.GinMode == gin.ReleaseMode,
		IdleTimeout: cfg.SessionIdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	sessionManager := session.NewManager(cfg.SessionMaxAge, cfg.SessionIdleTimeout)

	service := auth.NewService(store, password.NewHasher(cfg.BcryptCost))
	handler := auth.NewHandler(service, sessionManager, events)

	pages := router.Group("")
	pages.Use(sessions.Sessions(session.CookieName, sessionStore), sessionManager.Establish())
	handler.RegisterRoutes(pages)

	return router, nil
}

// openUserStore は設定に応じたユーザーストアを開きます。
func openUserStore(cfg *config.Config) (users.Store, func(), error) {
	switch cfg.UserStore {
	case config.UserStoreRedis:
		opt, err := redis.ParseURL(cfg.UserRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid USER_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		return users.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	case config.UserStoreSQLite:
		store, err := users.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return users.NewMemoryStore(), func() {}, nil
	}
}

// setupAudit は AUDIT_REDIS_URL が設定されている場合に監査ログを用意します。
func setupAudit(cfg *config.Config, logger zerolog.Logger) (*audit.Manager, error) {
	if cfg.AuditRedisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.AuditRedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_REDIS_URL: %w", err)
	}
	store := audit.NewStore(redis.NewClient(opt), cfg.AuditTTL)
	return audit.NewManager(cfg.AuditRedisURL, store, logger)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "session-gate",
		"version": "0.1.0",
	})
}
