package estimator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/registry"
)

const (
	basisSimilar      = "유사 평형"
	basisAll          = "전체"
	basisInsufficient = "데이터 부족"
)

// TransactionSource returns the matching registry records for one month.
// A non-nil error may accompany partial records.
type TransactionSource interface {
	Fetch(ctx context.Context, q registry.Query, yearMonth string) ([]models.Transaction, error)
}

// TieredEstimator widens the lookback one year at a time until enough
// records exist for the target lot.
type TieredEstimator struct {
	source  TransactionSource
	policy  Policy
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewTieredEstimator(source TransactionSource, policy Policy, logger *logrus.Logger, m *metrics.Metrics) *TieredEstimator {
	if logger == nil {
		logger = logrus.New()
	}
	return &TieredEstimator{
		source:  source,
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// Estimate runs every window up to the policy maximum and degrades to the
// latest single record, or to an absent price, when the sample stays small.
func (t *TieredEstimator) Estimate(ctx context.Context, q registry.Query, targetArea float64, asOf time.Time) *models.EstimationResult {
	s := t.newSearch(q, targetArea, asOf)
	if r, ok := s.advanceTo(ctx, t.policy.MaxWindowYears); ok {
		r.Failures = s.failures
		return r
	}
	r := s.degrade()
	r.Failures = s.failures
	return r
}

// windowSearch is the running state of one tiered search. The accumulated
// set only grows and each month is fetched at most once.
type windowSearch struct {
	t          *TieredEstimator
	q          registry.Query
	targetArea float64
	asOf       time.Time
	window     int
	set        *models.TransactionSet
	failures   []models.FetchFailure
}

func (t *TieredEstimator) newSearch(q registry.Query, targetArea float64, asOf time.Time) *windowSearch {
	return &windowSearch{
		t:          t,
		q:          q,
		targetArea: targetArea,
		asOf:       asOf,
		set:        models.NewTransactionSet(),
	}
}

// advanceTo widens the search window by window until it reaches years or
// the sample is large enough, whichever comes first.
func (s *windowSearch) advanceTo(ctx context.Context, years int) (*models.EstimationResult, bool) {
	for s.window < years {
		if ctx.Err() != nil {
			return nil, false
		}
		s.window++
		s.fetchWindow(ctx, s.window)

		s.t.logger.WithFields(logrus.Fields{
			"query":  s.q.String(),
			"window": s.window,
			"size":   s.set.Len(),
		}).Debug("Widened search window")

		if r, ok := s.t.compute(s.set.Items(), s.targetArea, s.window, s.asOf); ok {
			return r, true
		}
	}
	return nil, false
}

func (s *windowSearch) fetchWindow(ctx context.Context, window int) {
	months := windowMonths(s.asOf, window)
	results := make([][]models.Transaction, len(months))
	errs := make([]error, len(months))

	var g errgroup.Group
	g.SetLimit(s.t.policy.Workers)
	for i, ym := range months {
		g.Go(func() error {
			results[i], errs[i] = s.t.source.Fetch(ctx, s.q, ym)
			return nil
		})
	}
	_ = g.Wait()

	// merge in month order so the set is independent of completion order
	for i, ym := range months {
		s.set.Add(results[i]...)
		if errs[i] != nil {
			s.failures = append(s.failures, registryFailure(s.q, window, ym, errs[i]))
			s.t.metrics.IncUpstreamFailure("registry")
		}
	}
}

func (s *windowSearch) degrade() *models.EstimationResult {
	items := s.set.Items()
	latest, ok := s.set.Latest()
	if !ok {
		return absentResult(s.window)
	}

	ppa := math.Round(latest.PricePerArea())
	return &models.EstimationResult{
		PricePerArea: &ppa,
		Basis:        fmt.Sprintf("최근 거래 1건 (%s), 표본 부족", latest.DealDate.Format("2006-01-02")),
		Source:       models.SourceSingle,
		WindowYears:  s.window,
		SampleSize:   1,
		Transactions: items,
	}
}

func absentResult(window int) *models.EstimationResult {
	return &models.EstimationResult{
		Basis:       basisInsufficient,
		Source:      models.SourceNone,
		WindowYears: window,
	}
}

// compute aggregates txs when the sample is large enough. The similarity
// band replaces the full set only when it holds at least MinBand records.
func (t *TieredEstimator) compute(txs []models.Transaction, targetArea float64, window int, asOf time.Time) (*models.EstimationResult, bool) {
	if len(txs) < t.policy.MinSample {
		return nil, false
	}

	used := txs
	label := basisAll
	band := models.WithinArea(txs, targetArea, t.policy.AreaTolerance)
	if len(band) >= t.policy.MinBand {
		used = band
		label = basisSimilar
	}

	values := make([]float64, len(used))
	weights := make([]float64, len(used))
	for i, tx := range used {
		values[i] = tx.PricePerArea()
		weights[i] = math.Exp(-t.policy.TimeDecay * float64(tx.MonthsSince(asOf)))
	}

	median := math.Round(Median(values))
	mean := math.Round(WeightedMean(values, weights))
	primary := median
	if t.policy.Primary == StatWeightedMean {
		primary = mean
	}

	return &models.EstimationResult{
		PricePerArea: &primary,
		Basis:        fmt.Sprintf("%d년 기준 (%s)", window, label),
		Source:       models.SourceTiered,
		Median:       &median,
		WeightedMean: &mean,
		WindowYears:  window,
		SimilarBand:  label == basisSimilar,
		SampleSize:   len(used),
		Transactions: txs,
	}, true
}

// windowMonths lists the YYYYMM months that window k adds: offsets
// 12(k-1) through 12k-1 counted back from the month of asOf.
func windowMonths(asOf time.Time, k int) []string {
	base := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, 0, 12)
	for i := 12 * (k - 1); i < 12*k; i++ {
		months = append(months, base.AddDate(0, -i, 0).Format("200601"))
	}
	return months
}

func lookbackMonths(asOf time.Time, n int) []string {
	base := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, base.AddDate(0, -i, 0).Format("200601"))
	}
	return months
}

func registryFailure(q registry.Query, window int, yearMonth string, err error) models.FetchFailure {
	f := models.FetchFailure{
		Stage:     "registry",
		Target:    q.String(),
		Window:    window,
		YearMonth: yearMonth,
		Err:       err.Error(),
	}
	if ue, ok := registry.AsUpstream(err); ok {
		f.Page = ue.Page
	}
	return f
}
