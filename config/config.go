package config

import (
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/DeepDiveOCR/ocr-safesign/internal/estimator"
)

type Config struct {
	Server struct {
		Port        string   `env:"PORT" envDefault:"5250"`
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	}

	// Public data portal (data.go.kr) endpoints
	Registry struct {
		ServiceKey    string        `env:"DATA_GO_KR_SERVICE_KEY"`
		BaseURL       string        `env:"REGISTRY_BASE_URL" envDefault:"https://apis.data.go.kr/1613000"`
		RegionCodeURL string        `env:"REGION_CODE_URL" envDefault:"https://apis.data.go.kr/1741000/StanReginCd/getStanReginCdList"`
		PageSize      int           `env:"REGISTRY_PAGE_SIZE" envDefault:"1000"`
		MaxPages      int           `env:"REGISTRY_MAX_PAGES" envDefault:"50"`
		Timeout       time.Duration `env:"REGISTRY_TIMEOUT" envDefault:"10s"`
	}

	Geocoder struct {
		KakaoAPIKey string        `env:"KAKAO_REST_API_KEY"`
		BaseURL     string        `env:"KAKAO_BASE_URL" envDefault:"https://dapi.kakao.com"`
		Timeout     time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"5s"`
	}

	// Reference coordinate tables, one CSV per building family
	Reference struct {
		Dir    string `env:"REFERENCE_DIR" envDefault:"data/reference"`
		DBPath string `env:"REFERENCE_DB_PATH" envDefault:"data/reference.db"`
		Import bool   `env:"REFERENCE_IMPORT" envDefault:"true"`
	}

	// BatchProcessing configures the reference import
	BatchProcessing struct {
		// Rows per upsert transaction
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"500"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"2s"`
	}

	Cache struct {
		// Region codes and geocodes are persisted here; empty keeps them in memory only
		Dir string `env:"CACHE_DIR" envDefault:"cache"`
	}

	Estimation struct {
		MaxWindowYears        int     `env:"ESTIMATE_MAX_WINDOW_YEARS" envDefault:"5"`
		GeoFallbackAfterYears int     `env:"ESTIMATE_GEO_FALLBACK_AFTER_YEARS" envDefault:"5"`
		MinSample             int     `env:"ESTIMATE_MIN_SAMPLE" envDefault:"5"`
		MinBand               int     `env:"ESTIMATE_MIN_BAND" envDefault:"3"`
		AreaTolerance         float64 `env:"ESTIMATE_AREA_TOLERANCE" envDefault:"3"`
		TimeDecay             float64 `env:"ESTIMATE_TIME_DECAY" envDefault:"0.02"`
		Primary               string  `env:"ESTIMATE_PRIMARY" envDefault:"median"`
		Workers               int     `env:"ESTIMATE_WORKERS" envDefault:"4"`
		GeoRadiusKm           float64 `env:"GEO_RADIUS_KM" envDefault:"1.0"`
		GeoMaxComplexes       int     `env:"GEO_MAX_COMPLEXES" envDefault:"10"`
		GeoLookbackMonths     int     `env:"GEO_LOOKBACK_MONTHS" envDefault:"24"`
		GeoDistanceDecay      float64 `env:"GEO_DISTANCE_DECAY" envDefault:"3.0"`
		GeoTimeDecay          float64 `env:"GEO_TIME_DECAY" envDefault:"0.15"`
		OutlierThreshold      float64 `env:"OUTLIER_THRESHOLD" envDefault:"0.3"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Policy builds the estimation policy from the Estimation section.
func (c *Config) Policy() (estimator.Policy, error) {
	e := c.Estimation
	p := estimator.Policy{
		Version:               estimator.PolicyVersion,
		MaxWindowYears:        e.MaxWindowYears,
		GeoFallbackAfterYears: e.GeoFallbackAfterYears,
		MinSample:             e.MinSample,
		MinBand:               e.MinBand,
		AreaTolerance:         e.AreaTolerance,
		TimeDecay:             e.TimeDecay,
		Primary:               estimator.Statistic(e.Primary),
		Workers:               e.Workers,
		GeoRadiusKm:           e.GeoRadiusKm,
		GeoMaxComplexes:       e.GeoMaxComplexes,
		GeoLookbackMonths:     e.GeoLookbackMonths,
		GeoDistanceDecay:      e.GeoDistanceDecay,
		GeoTimeDecay:          e.GeoTimeDecay,
		OutlierTolerance:      e.AreaTolerance,
		OutlierThreshold:      e.OutlierThreshold,
	}
	return p, p.Validate()
}
