package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatconnect/chatconnect-server/internal/auth"
	"github.com/chatconnect/chatconnect-server/internal/config"
	"github.com/chatconnect/chatconnect-server/internal/core"
	"github.com/chatconnect/chatconnect-server/internal/store"
)

// NewServer builds the HTTP server: REST API, health, and the WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/health", healthHandler(hub))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, logger)

	api := engine.Group("/api")
	api.POST("/auth/signup", apiHandlers.Signup)
	api.POST("/auth/login", apiHandlers.Login)

	authorized := api.Group("", AuthMiddleware(authService, logger))
	authorized.GET("/auth/verify", apiHandlers.Verify)
	authorized.GET("/users", userHandlers.ListUsers)
	authorized.GET("/users/:id", userHandlers.GetUser)
	authorized.POST("/messages", messageHandlers.Create)
	authorized.GET("/messages/:userId", messageHandlers.GetConversation)
	authorized.PUT("/messages/:messageId/read", messageHandlers.MarkRead)

	engine.GET("/ws", NewWSHandler(hub, authService, cfg, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// HealthResponse reports server liveness and the number of live sessions.
type HealthResponse struct {
	Status         string    `json:"status"`
	ConnectedUsers int       `json:"connectedUsers"`
	Timestamp      time.Time `json:"timestamp"`
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, HealthResponse{
			Status:         "OK",
			ConnectedUsers: hub.Online(),
			Timestamp:      time.Now(),
		})
	}
}
