package estimator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/DeepDiveOCR/ocr-safesign/internal/address"
	"github.com/DeepDiveOCR/ocr-safesign/internal/geo"
	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/registry"
)

type RegionResolver interface {
	Resolve(ctx context.Context, regionName string) (string, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (orb.Point, error)
}

// ComplexSource lists reference complexes of one building family that may
// lie within radiusKm of center. Results may include points outside the
// radius; callers filter by exact distance.
type ComplexSource interface {
	ComplexesNear(ctx context.Context, center orb.Point, radiusKm float64, bt models.BuildingType) ([]models.NearbyComplex, error)
}

// GeoFallback estimates from transactions at nearby complexes, weighting
// each record by distance and age.
type GeoFallback struct {
	geocoder  Geocoder
	complexes ComplexSource
	resolver  RegionResolver
	source    TransactionSource
	policy    Policy
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func NewGeoFallback(geocoder Geocoder, complexes ComplexSource, resolver RegionResolver, source TransactionSource, policy Policy, logger *logrus.Logger, m *metrics.Metrics) *GeoFallback {
	if logger == nil {
		logger = logrus.New()
	}
	return &GeoFallback{
		geocoder:  geocoder,
		complexes: complexes,
		resolver:  resolver,
		source:    source,
		policy:    policy,
		logger:    logger,
		metrics:   m,
	}
}

type weightedSample struct {
	tx     models.Transaction
	value  float64
	weight float64
}

// Nearby geocodes addr and ranks reference complexes of the same building
// family within radiusKm, nearest first.
func (g *GeoFallback) Nearby(ctx context.Context, addr string, bt models.BuildingType, radiusKm float64, limit int) (orb.Point, []models.RankedComplex, error) {
	origin, err := g.geocoder.Geocode(ctx, addr)
	if err != nil {
		return orb.Point{}, nil, err
	}
	candidates, err := g.complexes.ComplexesNear(ctx, origin, radiusKm, bt.Family())
	if err != nil {
		return origin, nil, fmt.Errorf("failed to load reference complexes: %w", err)
	}
	return origin, geo.Rank(origin, candidates, radiusKm, limit), nil
}

// Estimate returns ErrNoComparableData when no transactions could be pooled,
// including when no complex lies within the radius. Geocoding errors are
// returned as is. Absorbed failures are returned alongside in every case.
func (g *GeoFallback) Estimate(ctx context.Context, addr string, bt models.BuildingType, kind models.DealKind, asOf time.Time) (*models.EstimationResult, []models.FetchFailure, error) {
	var failures []models.FetchFailure

	_, ranked, err := g.Nearby(ctx, addr, bt, g.policy.GeoRadiusKm, g.policy.GeoMaxComplexes)
	if err != nil {
		failures = append(failures, models.FetchFailure{Stage: "geocode", Target: addr, Err: err.Error()})
		g.metrics.IncUpstreamFailure("geocode")
		return nil, failures, err
	}
	if len(ranked) == 0 {
		g.logger.WithFields(logrus.Fields{
			"address":   addr,
			"radius_km": g.policy.GeoRadiusKm,
		}).Info("No reference complexes within radius")
		return nil, failures, ErrNoComparableData
	}

	type task struct {
		complex int
		q       registry.Query
		month   string
	}
	var tasks []task
	months := lookbackMonths(asOf, g.policy.GeoLookbackMonths)
	for i, c := range ranked {
		q, err := g.queryFor(ctx, c, kind)
		if err != nil {
			failures = append(failures, models.FetchFailure{Stage: "region_code", Target: c.FullAddress, Err: err.Error()})
			g.logger.WithError(err).WithField("complex", c.FullAddress).Warn("Skipping reference complex")
			continue
		}
		for _, ym := range months {
			tasks = append(tasks, task{complex: i, q: q, month: ym})
		}
	}

	results := make([][]models.Transaction, len(tasks))
	errs := make([]error, len(tasks))
	var eg errgroup.Group
	eg.SetLimit(g.policy.Workers)
	for i, tk := range tasks {
		eg.Go(func() error {
			results[i], errs[i] = g.source.Fetch(ctx, tk.q, tk.month)
			return nil
		})
	}
	_ = eg.Wait()

	sets := make([]*models.TransactionSet, len(ranked))
	for i, tk := range tasks {
		if sets[tk.complex] == nil {
			sets[tk.complex] = models.NewTransactionSet()
		}
		sets[tk.complex].Add(results[i]...)
		if errs[i] != nil {
			failures = append(failures, registryFailure(tk.q, 0, tk.month, errs[i]))
			g.metrics.IncUpstreamFailure("registry")
		}
	}

	var samples []weightedSample
	contributing := 0
	for i, set := range sets {
		if set == nil || set.Len() == 0 {
			continue
		}
		contributing++
		distWeight := math.Exp(-g.policy.GeoDistanceDecay * ranked[i].DistanceKm)
		for _, tx := range set.Items() {
			samples = append(samples, weightedSample{
				tx:     tx,
				value:  tx.PricePerArea(),
				weight: distWeight * math.Exp(-g.policy.GeoTimeDecay*float64(tx.MonthsSince(asOf))),
			})
		}
	}

	if len(samples) == 0 {
		return nil, failures, ErrNoComparableData
	}

	values := make([]float64, len(samples))
	weights := make([]float64, len(samples))
	pooled := make([]models.Transaction, len(samples))
	for i, s := range samples {
		values[i] = s.value
		weights[i] = s.weight
		pooled[i] = s.tx
	}
	price := math.Round(WeightedMedian(values, weights))

	g.logger.WithFields(logrus.Fields{
		"address":   addr,
		"complexes": contributing,
		"samples":   len(samples),
		"price":     price,
	}).Info("Geo fallback estimate")

	return &models.EstimationResult{
		PricePerArea: &price,
		Basis:        fmt.Sprintf("인근 %d개 단지 거리·시점 가중 중앙값 (반경 %gkm, %d건)", contributing, g.policy.GeoRadiusKm, len(samples)),
		Source:       models.SourceGeo,
		SampleSize:   len(samples),
		Transactions: pooled,
	}, failures, nil
}

func (g *GeoFallback) queryFor(ctx context.Context, c models.RankedComplex, kind models.DealKind) (registry.Query, error) {
	parsed, err := address.Parse(c.FullAddress)
	if err != nil {
		return registry.Query{}, err
	}
	code, err := g.resolver.Resolve(ctx, parsed.Region)
	if err != nil {
		return registry.Query{}, err
	}
	return registry.Query{
		RegionCode:   code,
		SubDistrict:  parsed.SubDistrict,
		LotNumber:    parsed.LotNumber,
		BuildingType: c.BuildingType,
		Kind:         kind,
	}, nil
}
