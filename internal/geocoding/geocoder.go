package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/internal/cache"
)

var ErrNotFound = errors.New("address could not be geocoded")

const DefaultBaseURL = "https://dapi.kakao.com"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// CacheDir enables the on-disk geocode cache when set.
	CacheDir string
}

// Geocoder turns addresses into coordinates through the Kakao local search
// API. Hits are cached for the life of the process.
type Geocoder struct {
	cfg    Config
	logger *logrus.Logger
	cache  *cache.Store[orb.Point]
	client *http.Client
}

func NewGeocoder(cfg Config, logger *logrus.Logger) *Geocoder {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var cachePath string
	if cfg.CacheDir != "" {
		cachePath = filepath.Join(cfg.CacheDir, "geocode_cache.json")
	}

	return &Geocoder{
		cfg:    cfg,
		logger: logger,
		cache:  cache.New[orb.Point](cachePath, logger),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type kakaoResponse struct {
	Documents []struct {
		AddressName string `json:"address_name"`
		X           string `json:"x"`
		Y           string `json:"y"`
	} `json:"documents"`
}

// Geocode returns the location of address as an orb.Point (lon, lat).
func (g *Geocoder) Geocode(ctx context.Context, address string) (orb.Point, error) {
	if p, ok := g.cache.Get(address); ok {
		g.logger.WithFields(logrus.Fields{
			"address":   address,
			"latitude":  p.Lat(),
			"longitude": p.Lon(),
			"source":    "cache",
		}).Debug("Found coordinates in cache")
		return p, nil
	}

	p, ok, err := g.cache.GetOrCompute(ctx, address, func(ctx context.Context) (orb.Point, bool, error) {
		return g.lookup(ctx, address)
	})
	if err != nil {
		return orb.Point{}, err
	}
	if !ok {
		g.logger.WithField("address", address).Warn("No results found")
		return orb.Point{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return p, nil
}

func (g *Geocoder) lookup(ctx context.Context, address string) (orb.Point, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := url.Values{"query": []string{address}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/v2/local/search/address.json?"+params.Encode(), nil)
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return orb.Point{}, false, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, false, fmt.Errorf("geocoding request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("failed to read response: %w", err)
	}

	var result kakaoResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Failed to parse response")
		return orb.Point{}, false, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Documents) == 0 {
		return orb.Point{}, false, nil
	}

	// x is longitude, y is latitude
	lon, err := strconv.ParseFloat(result.Documents[0].X, 64)
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("failed to parse longitude %q: %w", result.Documents[0].X, err)
	}
	lat, err := strconv.ParseFloat(result.Documents[0].Y, 64)
	if err != nil {
		return orb.Point{}, false, fmt.Errorf("failed to parse latitude %q: %w", result.Documents[0].Y, err)
	}

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  lat,
		"longitude": lon,
		"source":    "kakao",
	}).Info("Successfully geocoded address")

	return orb.Point{lon, lat}, true, nil
}
