package web

import (
	"context"
	"net/http"
	"time"

	"multimodal-rag/config"
	"multimodal-rag/web/handlers"
	"multimodal-rag/web/middleware"
	"multimodal-rag/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the components the HTTP routes are served from.
type Dependencies struct {
	Chat      *services.ChatService
	Documents handlers.DocumentStore
	Indexer   handlers.ExportIndexer
	DB        handlers.Pinger
	Limiter   *middleware.SessionRateLimiter
}

type Server struct {
	router *gin.Engine
	deps   Dependencies
	logger *zap.Logger
	config *config.Config
}

func NewServer(deps Dependencies, logger *zap.Logger, config *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Set("logger", logger)
		c.Next()
	})

	server := &Server{
		router: router,
		deps:   deps,
		logger: logger,
		config: config,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Static("/static", "./web/static")
	s.router.GET("/healthz", handlers.Health(s.deps.DB, s.logger))

	chatHandler := handlers.NewChatHandler(s.deps.Chat, s.logger)
	documentHandler := handlers.NewDocumentHandler(s.deps.Documents, s.deps.Indexer, s.logger)

	sessions := s.router.Group("/", middleware.SessionMiddleware())
	limited := middleware.RateLimitMiddleware(s.deps.Limiter)

	sessions.GET("/", chatHandler.Index)
	sessions.POST("/chat", limited, chatHandler.SendMessage)

	api := sessions.Group("/api")
	api.POST("/chat", limited, chatHandler.APIChat)
	api.GET("/chat/history", chatHandler.GetHistory)
	api.DELETE("/chat/history", chatHandler.ClearHistory)
	api.GET("/chunks/:chunkID", chatHandler.GetChunk)

	api.GET("/documents", documentHandler.SearchDocuments)
	api.POST("/documents", documentHandler.IndexDocument)
	api.GET("/documents/:documentID", documentHandler.GetDocument)
	api.GET("/documents/:documentID/pictures/:pictureID", documentHandler.GetPicture)
	api.GET("/documents/:documentID/pictures/:pictureID/image", documentHandler.GetPictureImage)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
