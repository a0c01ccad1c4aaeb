package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatconnect/chatconnect-server/internal/auth"
	"github.com/chatconnect/chatconnect-server/internal/config"
	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/presence"
	"github.com/chatconnect/chatconnect-server/internal/store"
	"github.com/chatconnect/chatconnect-server/internal/store/sqlite"
	transporthttp "github.com/chatconnect/chatconnect-server/internal/transport/http"
)

// App wires together store, hub and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	mirror          presence.Mirror
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	var mirror presence.Mirror = presence.Noop{}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		gatewayID, _ := os.Hostname()
		m, err := presence.NewRedis(ctx, presence.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			GatewayID: gatewayID,
			TTL:       cfg.PresenceTTL,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		mirror = m
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("presence mirror enabled")
	}

	hub := core.NewHub(st, mirror, logger, core.Options{
		ReceiptRetryAttempts: cfg.ReceiptRetryAttempts,
		ReceiptRetryBackoff:  cfg.ReceiptRetryBackoff,
		PresenceTTL:          cfg.PresenceTTL,
	})
	server := transporthttp.NewServer(hub, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		mirror:          mirror,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
