package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/config"
	"github.com/DeepDiveOCR/ocr-safesign/internal/api"
	"github.com/DeepDiveOCR/ocr-safesign/internal/app"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := app.NewLogger(cfg.Server.LogLevel)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load reference coordinates before serving so the geo fallback sees them
	if cfg.Reference.Import {
		logger.Info("Importing reference complexes...")
		if _, err := a.ImportReference(ctx); err != nil {
			logger.WithError(err).Error("Reference import incomplete")
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(a.Engine, a.DB, logger)
	api.SetupRoutes(router, handler, cfg.Server.CORSOrigins, a.Registry)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
