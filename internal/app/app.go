// Package app wires configuration into a ready estimation engine. It is
// shared by the HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/config"
	"github.com/DeepDiveOCR/ocr-safesign/internal/database"
	"github.com/DeepDiveOCR/ocr-safesign/internal/estimator"
	"github.com/DeepDiveOCR/ocr-safesign/internal/geocoding"
	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/processor"
	"github.com/DeepDiveOCR/ocr-safesign/internal/regioncode"
	"github.com/DeepDiveOCR/ocr-safesign/internal/registry"
)

type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	DB       *database.Database
	Engine   *estimator.Engine
}

// NewLogger returns a JSON logger at the given level, falling back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// New opens the reference database and builds the engine. The geo fallback
// is only enabled when a Kakao API key is configured.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid estimation policy: %w", err)
	}
	if cfg.Registry.ServiceKey == "" {
		logger.Warn("DATA_GO_KR_SERVICE_KEY is not set, registry requests will be rejected")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if dir := filepath.Dir(cfg.Reference.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	logger.Infof("Using reference database at: %s", cfg.Reference.DBPath)
	db, err := database.NewDatabase(cfg.Reference.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var regionCache string
	if cfg.Cache.Dir != "" {
		regionCache = filepath.Join(cfg.Cache.Dir, "region_codes.json")
	}
	resolver := regioncode.NewResolver(regioncode.Config{
		URL:        cfg.Registry.RegionCodeURL,
		ServiceKey: cfg.Registry.ServiceKey,
		Timeout:    cfg.Registry.Timeout,
		CachePath:  regionCache,
	}, logger)

	fetcher := registry.NewFetcher(registry.Config{
		BaseURL:    cfg.Registry.BaseURL,
		ServiceKey: cfg.Registry.ServiceKey,
		PageSize:   cfg.Registry.PageSize,
		MaxPages:   cfg.Registry.MaxPages,
		Timeout:    cfg.Registry.Timeout,
	}, logger, m)

	opts := []estimator.Option{estimator.WithMetrics(m)}
	if cfg.Geocoder.KakaoAPIKey != "" {
		geocoder := geocoding.NewGeocoder(geocoding.Config{
			BaseURL:  cfg.Geocoder.BaseURL,
			APIKey:   cfg.Geocoder.KakaoAPIKey,
			Timeout:  cfg.Geocoder.Timeout,
			CacheDir: cfg.Cache.Dir,
		}, logger)
		opts = append(opts, estimator.WithGeoFallback(geocoder, db))
	} else {
		logger.Warn("KAKAO_REST_API_KEY is not set, geo fallback disabled")
	}

	engine, err := estimator.NewEngine(resolver, fetcher, policy, logger, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		DB:       db,
		Engine:   engine,
	}, nil
}

// ImportReference loads the reference coordinate tables into the database.
func (a *App) ImportReference(ctx context.Context) (processor.ImportStats, error) {
	gdb, err := a.DB.Gorm()
	if err != nil {
		return processor.ImportStats{}, fmt.Errorf("failed to open gorm session: %w", err)
	}
	bp := processor.NewBatchProcessor(gdb, a.Config, a.Logger)
	stats, err := bp.ImportTables(ctx, a.Config.Reference.Dir)
	a.Logger.WithFields(logrus.Fields{
		"rows":    stats.Rows,
		"batches": stats.Batches,
		"failed":  stats.Failed,
	}).Info("Reference import finished")
	return stats, err
}

func (a *App) Close() error {
	return a.DB.Close()
}
