// Package main runs the recorder HTTP server: video upload sessions and ticket updates, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mediasimplified/recorder/config"
	"github.com/mediasimplified/recorder/internal/middleware"
	"github.com/mediasimplified/recorder/internal/ticket"
	"github.com/mediasimplified/recorder/internal/video"
	"github.com/mediasimplified/recorder/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Vimeo.Token == "" {
		logger.Warn("VIMEO_TOKEN not set, video requests will be rejected by the provider")
	}
	if cfg.CRM.APIKey == "" {
		logger.Warn("GHL_API_KEY not set, ticket updates will be rejected by the provider")
	}

	providerHTTP := &http.Client{Timeout: 30 * time.Second}

	// Video host
	videoClient := video.NewClient(video.Config{
		APIURL:   cfg.Vimeo.APIURL,
		Token:    cfg.Vimeo.Token,
		UserID:   cfg.Vimeo.UserID,
		FolderID: cfg.Vimeo.FolderID,
	}, providerHTTP, logger)
	videoHandler := video.NewHandler(videoClient, logger)

	// Ticketing
	crmClient := ticket.NewClient(ticket.ClientConfig{
		APIURL:     cfg.CRM.APIURL,
		APIKey:     cfg.CRM.APIKey,
		APIVersion: cfg.CRM.APIVersion,
	}, providerHTTP, logger)
	routing := ticket.NewRouting(cfg.CRM.HostLocations, cfg.CRM.LocationID)
	ticketHandler := ticket.NewHandler(ticket.NewService(crmClient, routing, cfg.CRM.CustomFieldID, logger), logger)

	router := newRouter(cfg, logger, videoHandler, ticketHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newRouter(cfg *config.Config, logger *zap.Logger, videoHandler *video.Handler, ticketHandler *ticket.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	{
		api.POST("/video/start", videoHandler.Start)
		api.POST("/video/finalize", videoHandler.Finalize)
		api.POST("/ticket/post", ticketHandler.Post)

		// Legacy paths used by embedded widgets
		api.POST("/vimeo/start", videoHandler.Start)
		api.POST("/vimeo/finalize", videoHandler.Finalize)
		api.POST("/ghl/post", ticketHandler.Post)
	}
	return router
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
