package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/config"
	"github.com/vovakirdan/teamchat-server/internal/core"
	"github.com/vovakirdan/teamchat-server/internal/ratelimit"
	"github.com/vovakirdan/teamchat-server/internal/service/chat"
	"github.com/vovakirdan/teamchat-server/internal/service/projects"
	"github.com/vovakirdan/teamchat-server/internal/service/rooms"
	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/store/postgres"
	"github.com/vovakirdan/teamchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/teamchat-server/internal/transport/http"
)

const (
	tokenIssuer      = "teamchat"
	redisPingTimeout = 3 * time.Second
	redisKeyPrefix   = "teamchat:ratelimit:"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	sessions, err := newSessionResolver(cfg, st)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init sessions: %w", err)
	}

	limiter := a.newMessageLimiter(ctx, cfg)

	hub := core.NewHub(st, logger)
	a.hub = hub
	a.server = transporthttp.NewServer(transporthttp.Services{
		Hub:            hub,
		Chat:           chat.New(st, hub, logger),
		Rooms:          rooms.New(st),
		Projects:       projects.New(st),
		Users:          st,
		Sessions:       sessions,
		MessageLimiter: limiter,
	}, cfg, logger)

	return a, nil
}

// JWTConfig returns the session token settings derived from cfg.
func JWTConfig(cfg *config.Config) (*auth.JWTConfig, error) {
	key, err := auth.DeriveKey(cfg.Auth.Secret, cfg.Auth.CookieName)
	if err != nil {
		return nil, err
	}
	return &auth.JWTConfig{
		Secret: key,
		Issuer: tokenIssuer,
		TTL:    cfg.Auth.TokenTTL,
	}, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.URL, postgres.Options{
			MaxConns:   cfg.MaxConns,
			AutoSchema: cfg.AutoSchema,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.Path, cfg.AutoSchema)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func newSessionResolver(cfg *config.Config, users store.UserStore) (auth.SessionResolver, error) {
	var chain auth.ChainResolver

	if cfg.Auth.Mode == config.AuthModeJWT || cfg.Auth.Mode == config.AuthModeBoth {
		jwtCfg, err := JWTConfig(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, auth.NewJWTResolver(jwtCfg, cfg.Auth.CookieName))
	}
	if cfg.Auth.Mode == config.AuthModeRemote || cfg.Auth.Mode == config.AuthModeBoth {
		chain = append(chain, auth.NewRemoteResolver(cfg.Auth.SessionEndpoint, cfg.Auth.ResolveTimeout))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no session resolver for auth mode %q", cfg.Auth.Mode)
	}

	return auth.NewUserSync(chain, users), nil
}

// newMessageLimiter shares limits through Redis when it is configured and
// reachable, and falls back to a per-process window otherwise.
func (a *App) newMessageLimiter(ctx context.Context, cfg *config.Config) ratelimit.Limiter {
	limit := ratelimit.PerMinute(cfg.RateLimit.MessagesPerMinute)
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryLimiter(limit)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using in-process rate limits")
		client.Close()
		return ratelimit.NewMemoryLimiter(limit)
	}

	a.redis = client
	a.log.Info().Str("addr", cfg.Redis.Addr).Msg("redis rate limiter enabled")
	return ratelimit.NewRedisLimiter(client, limit, redisKeyPrefix)
}

// Run starts the hub and HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	// The hub outlives the HTTP server so in-flight requests can still publish.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(hubCtx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		defer stopHub()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
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
