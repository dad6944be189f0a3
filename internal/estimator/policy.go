package estimator

import (
	"errors"
	"fmt"
	"math"
)

// Statistic selects which tiered aggregate is surfaced as the estimate.
type Statistic string

const (
	StatMedian       Statistic = "median"
	StatWeightedMean Statistic = "weighted_mean"
)

// PolicyVersion is stamped on every result so stored estimates can be
// traced back to the thresholds that produced them.
const PolicyVersion = "2024.1"

// Policy holds every tunable threshold of the estimation pipeline.
type Policy struct {
	Version string

	// tiered search
	MaxWindowYears        int
	GeoFallbackAfterYears int
	MinSample             int
	MinBand               int
	AreaTolerance         float64
	TimeDecay             float64
	Primary               Statistic
	Workers               int

	// geo fallback
	GeoRadiusKm       float64
	GeoMaxComplexes   int
	GeoLookbackMonths int
	GeoDistanceDecay  float64
	GeoTimeDecay      float64

	// outliers
	OutlierTolerance float64
	OutlierThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{
		Version:               PolicyVersion,
		MaxWindowYears:        5,
		GeoFallbackAfterYears: 5,
		MinSample:             5,
		MinBand:               3,
		AreaTolerance:         3,
		TimeDecay:             0.02,
		Primary:               StatMedian,
		Workers:               4,
		GeoRadiusKm:           1.0,
		GeoMaxComplexes:       10,
		GeoLookbackMonths:     24,
		GeoDistanceDecay:      3.0,
		GeoTimeDecay:          0.15,
		OutlierTolerance:      3,
		OutlierThreshold:      0.30,
	}
}

var errInvalidPolicy = errors.New("invalid estimation policy")

func (p Policy) Validate() error {
	switch {
	case p.MaxWindowYears < 1:
		return fmt.Errorf("%w: max window years must be at least 1", errInvalidPolicy)
	case p.GeoFallbackAfterYears < 1 || p.GeoFallbackAfterYears > p.MaxWindowYears:
		return fmt.Errorf("%w: geo fallback trigger must be within 1..%d years", errInvalidPolicy, p.MaxWindowYears)
	case p.MinSample < 1 || p.MinBand < 1:
		return fmt.Errorf("%w: sample thresholds must be positive", errInvalidPolicy)
	case p.AreaTolerance < 0 || p.OutlierTolerance < 0:
		return fmt.Errorf("%w: area tolerance must not be negative", errInvalidPolicy)
	case p.Primary != StatMedian && p.Primary != StatWeightedMean:
		return fmt.Errorf("%w: unknown primary statistic %q", errInvalidPolicy, p.Primary)
	case p.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", errInvalidPolicy)
	case p.GeoRadiusKm <= 0 || p.GeoMaxComplexes < 1 || p.GeoLookbackMonths < 1:
		return fmt.Errorf("%w: geo fallback bounds must be positive", errInvalidPolicy)
	case !nonNegative(p.TimeDecay) || !nonNegative(p.GeoDistanceDecay) || !nonNegative(p.GeoTimeDecay):
		return fmt.Errorf("%w: decay constants must be non-negative numbers", errInvalidPolicy)
	case p.OutlierThreshold <= 0:
		return fmt.Errorf("%w: outlier threshold must be positive", errInvalidPolicy)
	}
	return nil
}

func nonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
