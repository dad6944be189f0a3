package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/internal/address"
	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/registry"
)

var ErrGeoUnavailable = errors.New("geo lookup is not configured")

// Request is one estimate-by-address call.
type Request struct {
	Address      string
	BuildingType models.BuildingType
	Area         float64
	Kind         models.DealKind
	// AsOf anchors every window and age weight. Zero means now.
	AsOf time.Time
}

// Engine chains address parsing, region lookup, the tiered search and the
// geo fallback into a single call.
type Engine struct {
	resolver RegionResolver
	tiered   *TieredEstimator
	geo      *GeoFallback
	source   TransactionSource
	policy   Policy
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

// WithGeoFallback enables the nearby-complex fallback.
func WithGeoFallback(geocoder Geocoder, complexes ComplexSource) Option {
	return func(e *Engine) {
		e.geo = NewGeoFallback(geocoder, complexes, e.resolver, e.source, e.policy, e.logger, e.metrics)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(resolver RegionResolver, source TransactionSource, policy Policy, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		resolver: resolver,
		source:   source,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.tiered = NewTieredEstimator(source, policy, logger, e.metrics)
	if e.geo != nil {
		e.geo.metrics = e.metrics
	}
	return e, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) validate(req *Request) error {
	if !req.BuildingType.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedBuildingType, req.BuildingType)
	}
	if req.Area <= 0 || math.IsNaN(req.Area) || math.IsInf(req.Area, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidArea, req.Area)
	}
	if req.Kind == "" {
		req.Kind = models.Trade
	}
	if req.Kind != models.Trade && req.Kind != models.Rent {
		return fmt.Errorf("unknown deal kind %q", req.Kind)
	}
	if req.AsOf.IsZero() {
		req.AsOf = e.now()
	}
	return nil
}

// Estimate returns an error only for caller mistakes: a malformed address,
// an unsupported building type or a non-positive area. Upstream problems
// are absorbed and listed in the result's Failures; a missing price always
// comes with a basis explaining why.
func (e *Engine) Estimate(ctx context.Context, req Request) (*models.EstimationResult, error) {
	started := time.Now()

	if err := e.validate(&req); err != nil {
		return nil, err
	}
	parsed, err := address.Parse(req.Address)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"address":       req.Address,
		"building_type": req.BuildingType,
		"deal_kind":     req.Kind,
		"area":          req.Area,
	})

	var failures []models.FetchFailure
	var search *windowSearch

	code, err := e.resolver.Resolve(ctx, parsed.Region)
	if err != nil {
		log.WithError(err).Warn("Region code unavailable, skipping tiered search")
		failures = append(failures, models.FetchFailure{Stage: "region_code", Target: parsed.Region, Err: err.Error()})
		e.metrics.IncUpstreamFailure("region_code")
	} else {
		q := registry.Query{
			RegionCode:   code,
			SubDistrict:  parsed.SubDistrict,
			LotNumber:    parsed.LotNumber,
			BuildingType: req.BuildingType,
			Kind:         req.Kind,
		}
		if e.geo == nil {
			r := e.tiered.Estimate(ctx, q, req.Area, req.AsOf)
			return e.finish(log, r, r.Failures, started), nil
		}

		search = e.tiered.newSearch(q, req.Area, req.AsOf)

		if r, ok := search.advanceTo(ctx, e.policy.GeoFallbackAfterYears); ok {
			return e.finish(log, r, append(failures, search.failures...), started), nil
		}
	}

	if e.geo != nil {
		r, geoFailures, err := e.geo.Estimate(ctx, req.Address, req.BuildingType, req.Kind, req.AsOf)
		failures = append(failures, geoFailures...)
		if err == nil {
			if search != nil {
				failures = append(failures, search.failures...)
			}
			return e.finish(log, r, failures, started), nil
		}
		log.WithError(err).Info("Geo fallback produced no estimate")
	}

	var r *models.EstimationResult
	if search != nil {
		var ok bool
		if r, ok = search.advanceTo(ctx, e.policy.MaxWindowYears); !ok {
			r = search.degrade()
		}
		failures = append(failures, search.failures...)
	} else {
		r = absentResult(0)
	}
	return e.finish(log, r, failures, started), nil
}

func (e *Engine) finish(log *logrus.Entry, r *models.EstimationResult, failures []models.FetchFailure, started time.Time) *models.EstimationResult {
	r.ID = e.newID()
	r.EstimatedAt = e.now()
	r.PolicyVersion = e.policy.Version
	r.Failures = failures

	e.metrics.IncOutcome(string(r.Source))
	e.metrics.ObserveEstimate(time.Since(started))

	fields := logrus.Fields{
		"id":       r.ID,
		"source":   r.Source,
		"basis":    r.Basis,
		"samples":  r.SampleSize,
		"failures": len(failures),
	}
	if r.PricePerArea != nil {
		fields["price_per_area"] = *r.PricePerArea
	}
	log.WithFields(fields).Info("Estimate complete")
	return r
}

// UsePolicyDefault selects the policy's outlier tolerance or threshold.
const UsePolicyDefault = -1.0

// DetectOutliers estimates req and checks the records behind the estimate
// against it. A negative tolerance or threshold falls back to the policy
// values; a zero tolerance restricts the band to the exact area.
func (e *Engine) DetectOutliers(ctx context.Context, req Request, tolerance, threshold float64) (*models.EstimationResult, models.OutlierReport, error) {
	if tolerance < 0 {
		tolerance = e.policy.OutlierTolerance
	}
	if threshold < 0 {
		threshold = e.policy.OutlierThreshold
	}

	r, err := e.Estimate(ctx, req)
	if err != nil {
		return nil, models.OutlierReport{}, err
	}

	var central float64
	if r.PricePerArea != nil {
		central = *r.PricePerArea
	}
	return r, DetectOutliers(r.Transactions, central, req.Area, tolerance, threshold), nil
}

// Nearby ranks reference complexes around addr for map display.
func (e *Engine) Nearby(ctx context.Context, addr string, bt models.BuildingType, radiusKm float64) (orb.Point, []models.RankedComplex, error) {
	if e.geo == nil {
		return orb.Point{}, nil, ErrGeoUnavailable
	}
	if !bt.Valid() {
		return orb.Point{}, nil, fmt.Errorf("%w: %q", models.ErrUnsupportedBuildingType, bt)
	}
	if radiusKm <= 0 {
		radiusKm = e.policy.GeoRadiusKm
	}
	return e.geo.Nearby(ctx, addr, bt, radiusKm, 0)
}
