// Package registry is the client for the national real-estate transaction
// registry (국토교통부 실거래가 공개시스템) monthly feeds.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// Config carries the registry endpoint settings and credentials.
type Config struct {
	BaseURL    string
	ServiceKey string
	PageSize   int
	MaxPages   int
	Timeout    time.Duration
}

// Query identifies one lot within a district.
type Query struct {
	RegionCode   string
	SubDistrict  string
	LotNumber    string
	BuildingType models.BuildingType
	Kind         models.DealKind
}

func (q Query) String() string {
	return fmt.Sprintf("%s %s %s", q.RegionCode, q.SubDistrict, q.LotNumber)
}

type Fetcher struct {
	cfg     Config
	client  *http.Client
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewFetcher(cfg Config, logger *logrus.Logger, m *metrics.Metrics) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
	}
}

// ServiceName returns the registry service for a building type and deal kind,
// e.g. AptTrade or RHRent.
func ServiceName(bt models.BuildingType, kind models.DealKind) (string, error) {
	var prefix string
	switch bt.Family() {
	case models.Apartment:
		prefix = "Apt"
	case models.MultiUnit:
		prefix = "RH"
	case models.Officetel:
		prefix = "Offi"
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedBuildingType, bt)
	}
	switch kind {
	case models.Trade:
		return prefix + "Trade", nil
	case models.Rent:
		return prefix + "Rent", nil
	}
	return "", fmt.Errorf("unknown deal kind %q", kind)
}

func (f *Fetcher) endpoint(service string) string {
	return fmt.Sprintf("%s/RTMSDataSvc%s/getRTMSDataSvc%s", strings.TrimRight(f.cfg.BaseURL, "/"), service, service)
}

// Fetch returns the comparable transactions of one lot for one month
// (yearMonth as YYYYMM). Pages are read until one comes back empty.
//
// A failing page ends the month early: the records gathered so far are
// returned together with an *UpstreamError the caller is expected to log
// and absorb. An unsupported building type returns ErrUnsupportedBuildingType.
func (f *Fetcher) Fetch(ctx context.Context, q Query, yearMonth string) ([]models.Transaction, error) {
	service, err := ServiceName(q.BuildingType, q.Kind)
	if err != nil {
		return nil, err
	}
	endpoint := f.endpoint(service)

	var out []models.Transaction
	for page := 1; page <= f.cfg.MaxPages; page++ {
		items, err := f.fetchPage(ctx, endpoint, q.RegionCode, yearMonth, page)
		f.metrics.IncRegistryPage(string(q.BuildingType.Family()), string(q.Kind))
		if err != nil {
			ue := &UpstreamError{
				Category:   categorize(err),
				Endpoint:   service,
				YearMonth:  yearMonth,
				Page:       page,
				Underlying: err,
			}
			f.logger.WithError(err).WithFields(logrus.Fields{
				"service":    service,
				"region":     q.RegionCode,
				"year_month": yearMonth,
				"page":       page,
				"category":   ue.Category,
			}).Warn("Registry page failed, treating month as exhausted")
			return out, ue
		}
		if len(items) == 0 {
			break
		}

		for _, it := range items {
			if !it.matches(q.SubDistrict, q.LotNumber) {
				continue
			}
			tx, ok := it.toTransaction(q.Kind)
			if !ok {
				f.logger.WithFields(logrus.Fields{
					"service":    service,
					"year_month": yearMonth,
					"lot":        q.LotNumber,
				}).Debug("Dropping registry row with missing fields")
				continue
			}
			if isComparable(tx) {
				out = append(out, tx)
			}
		}
	}

	f.logger.WithFields(logrus.Fields{
		"service":    service,
		"region":     q.RegionCode,
		"year_month": yearMonth,
		"matched":    len(out),
	}).Debug("Fetched registry month")
	return out, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, endpoint, regionCode, yearMonth string, page int) ([]feedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	params := url.Values{
		"serviceKey": []string{f.cfg.ServiceKey},
		"LAWD_CD":    []string{regionCode},
		"DEAL_YMD":   []string{yearMonth},
		"numOfRows":  []string{strconv.Itoa(f.cfg.PageSize)},
		"pageNo":     []string{strconv.Itoa(page)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed, err := decodeFeed(body)
	if err != nil {
		return nil, &decodeError{err: err}
	}
	return feed.Items, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("failed to parse response: %v", e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

func categorize(err error) Category {
	var se *statusError
	var de *decodeError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.As(err, &se):
		return CategoryStatus
	case errors.As(err, &de):
		var re *resultCodeError
		if errors.As(de.err, &re) {
			return CategoryRejected
		}
		return CategoryBadData
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return CategoryTimeout
	}
	return CategoryTransport
}
