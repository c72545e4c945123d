package http

import (
	"context"
	stdhttp "net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/teamchat-server/internal/auth"
	"github.com/vovakirdan/teamchat-server/internal/config"
	"github.com/vovakirdan/teamchat-server/internal/core"
	"github.com/vovakirdan/teamchat-server/internal/ratelimit"
	"github.com/vovakirdan/teamchat-server/internal/service/chat"
	"github.com/vovakirdan/teamchat-server/internal/service/projects"
	"github.com/vovakirdan/teamchat-server/internal/service/rooms"
	"github.com/vovakirdan/teamchat-server/internal/store"
)

const (
	serviceName = "teamchat"
	wsPath      = "/ws/chat"
)

// Services holds the collaborators the HTTP layer serves.
type Services struct {
	Hub      *core.Hub
	Chat     *chat.Service
	Rooms    *rooms.Service
	Projects *projects.Service
	Users    store.UserDirectory
	Sessions auth.SessionResolver
	// MessageLimiter throttles POST /api/chat/messages per user. Nil disables it.
	MessageLimiter ratelimit.Limiter
}

// NewServer builds the HTTP server with API and websocket routes.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler serves the websocket gateway on its own mux entry and everything
// else through the gin router. The gateway needs the raw ResponseWriter:
// gin refuses to hijack a connection once the 101 status has been written.
func NewHandler(svc Services, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle(wsPath, NewWSHandler(svc.Hub, svc.Sessions, WSOptions{
		OriginPatterns: originPatterns(cfg.WebBaseURL),
		SendBuffer:     cfg.Realtime.SendBuffer,
		FrameLimit:     ratelimit.PerMinute(cfg.RateLimit.WSFramesPerMinute),
	}, logger))
	mux.Handle("/", NewRouter(svc, cfg, logger))
	return mux
}

// NewRouter registers the health and API routes on a new gin engine.
func NewRouter(svc Services, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	if cfg.WebBaseURL != "" {
		router.Use(CORSMiddleware(cfg.WebBaseURL))
	}

	router.GET("/health", healthHandler(svc.Hub, cfg.AppEnv))

	chatHandlers := NewChatHandlers(svc.Chat, logger)
	roomHandlers := NewRoomHandlers(svc.Rooms, logger)
	projectHandlers := NewProjectHandlers(svc.Projects, logger)
	userHandlers := NewUserHandlers(svc.Users, logger)

	api := router.Group("/api")
	api.Use(SessionMiddleware(svc.Sessions, logger))
	{
		chatGroup := api.Group("/chat")
		chatGroup.GET("/rooms/:roomId/messages", chatHandlers.ListMessages)
		chatGroup.POST("/messages", RateLimitMiddleware(svc.MessageLimiter, "messages", logger), chatHandlers.CreateMessage)

		roomGroup := api.Group("/rooms")
		roomGroup.POST("", roomHandlers.CreateRoom)
		roomGroup.GET("/:roomId", roomHandlers.GetRoom)
		roomGroup.DELETE("/:roomId", roomHandlers.DeleteRoom)
		roomGroup.PATCH("/:roomId/visibility", roomHandlers.SetVisibility)
		roomGroup.POST("/:roomId/members", roomHandlers.AddMember)

		projectGroup := api.Group("/projects")
		projectGroup.GET("/sidebar", projectHandlers.Sidebar)
		projectGroup.POST("/rooms", projectHandlers.CreateWorkspaceRoom)
		projectGroup.DELETE("/:projectId", projectHandlers.DeleteProject)
		projectGroup.PATCH("/:projectId/visibility", projectHandlers.SetVisibility)

		userGroup := api.Group("/users")
		userGroup.POST("", userHandlers.CreateUser)
		userGroup.GET("/me", userHandlers.Me)
		userGroup.GET("/:id", userHandlers.GetUser)
	}

	return router
}

func healthHandler(hub *core.Hub, env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":      "ok",
			"service":     serviceName,
			"environment": env,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if stats, err := hub.Stats(ctx); err == nil {
			body["connections"] = stats.Connections
			body["rooms"] = stats.Rooms
		}

		c.JSON(stdhttp.StatusOK, body)
	}
}

// originPatterns turns the web client URL into websocket origin patterns.
func originPatterns(webBaseURL string) []string {
	if webBaseURL == "" {
		return nil
	}
	u, err := url.Parse(webBaseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
