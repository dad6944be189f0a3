// Package regioncode resolves district names to the 5-digit 법정동 code
// prefix the transaction registry expects as LAWD_CD.
package regioncode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/internal/cache"
)

var ErrNotFound = errors.New("region code not found")

const codeLength = 5

type Config struct {
	URL        string
	ServiceKey string
	Timeout    time.Duration
	// CachePath persists resolved codes across restarts when set.
	CachePath string
}

// Resolver looks up region codes once per region name and caches them for
// the life of the process.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *logrus.Logger
	cache  *cache.Store[string]
}

func NewResolver(cfg Config, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		cache:  cache.New[string](cfg.CachePath, logger),
	}
}

type standardRegionResponse struct {
	StanReginCd []struct {
		Row []struct {
			RegionCode string `json:"region_cd"`
			Name       string `json:"locatadd_nm"`
		} `json:"row"`
	} `json:"StanReginCd"`
}

// Resolve returns the district code for regionName. Lookup misses and
// upstream failures both return ErrNotFound; the underlying cause is logged.
func (r *Resolver) Resolve(ctx context.Context, regionName string) (string, error) {
	code, ok, err := r.cache.GetOrCompute(ctx, regionName, func(ctx context.Context) (string, bool, error) {
		code, err := r.lookup(ctx, regionName)
		if err != nil {
			return "", false, err
		}
		return code, code != "", nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("region", regionName).Warn("Region code lookup failed")
		return "", fmt.Errorf("%w: %s", ErrNotFound, regionName)
	}
	if !ok {
		r.logger.WithField("region", regionName).Warn("No exact region code match")
		return "", fmt.Errorf("%w: %s", ErrNotFound, regionName)
	}
	return code, nil
}

func (r *Resolver) lookup(ctx context.Context, regionName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	params := url.Values{
		"ServiceKey":  []string{r.cfg.ServiceKey},
		"type":        []string{"json"},
		"pageNo":      []string{"1"},
		"numOfRows":   []string{"1000"},
		"flag":        []string{"Y"},
		"locatadd_nm": []string{regionName},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("region code request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("region code request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result standardRegionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, block := range result.StanReginCd {
		for _, row := range block.Row {
			if row.Name == regionName && len(row.RegionCode) >= codeLength {
				code := row.RegionCode[:codeLength]
				r.logger.WithFields(logrus.Fields{
					"region": regionName,
					"code":   code,
				}).Info("Resolved region code")
				return code, nil
			}
		}
	}
	return "", nil
}
