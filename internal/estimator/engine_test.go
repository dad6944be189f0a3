package estimator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DeepDiveOCR/ocr-safesign/internal/address"
	"github.com/DeepDiveOCR/ocr-safesign/internal/metrics"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/regioncode"
)

func fixedClock() time.Time { return asOf }

func newTestEngine(t *testing.T, src TransactionSource, resolver RegionResolver, policy Policy, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	e, err := NewEngine(resolver, src, policy, logrus.New(), opts...)
	require.NoError(t, err)
	return e
}

func sufficientMonth(src *fakeSource, lot, yearMonth string) {
	for i, day := range []string{"01", "02", "03", "04", "05"} {
		src.add(lot, yearMonth, trade(int64(840_000_000+i*8_400_000), 84, yearMonth[:4]+"-"+yearMonth[4:]+"-"+day))
	}
}

func TestNewEngine_RejectsInvalidPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.GeoFallbackAfterYears = 7

	_, err := NewEngine(&mockResolver{}, newFakeSource(), p, nil)
	assert.Error(t, err)
}

func TestEngine_CallerErrors(t *testing.T) {
	e := newTestEngine(t, newFakeSource(), &mockResolver{}, DefaultPolicy())

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"malformed address", Request{Address: "서울특별시 논현동", BuildingType: models.Apartment, Area: 84}, address.ErrMalformedAddress},
		{"unsupported type", Request{Address: targetAddress, BuildingType: "단독", Area: 84}, models.ErrUnsupportedBuildingType},
		{"zero area", Request{Address: targetAddress, BuildingType: models.Apartment, Area: 0}, ErrInvalidArea},
		{"negative area", Request{Address: targetAddress, BuildingType: models.Apartment, Area: -3}, ErrInvalidArea},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.Estimate(context.Background(), tt.req)
			assert.Nil(t, r)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEngine_TieredEstimate(t *testing.T) {
	src := newFakeSource()
	sufficientMonth(src, "203-1", "202405")
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil).Once()
	m := metrics.New(prometheus.NewRegistry())

	e := newTestEngine(t, src, resolver, DefaultPolicy(), WithMetrics(m))
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84})

	require.NoError(t, err)
	require.NotNil(t, r.PricePerArea)
	assert.Equal(t, 10_200_000.0, *r.PricePerArea)
	assert.Equal(t, models.SourceTiered, r.Source)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, asOf, r.EstimatedAt)
	assert.Equal(t, PolicyVersion, r.PolicyVersion)
	assert.Empty(t, r.Failures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EstimateOutcome.WithLabelValues("tiered")))
	resolver.AssertExpectations(t)
}

func TestEngine_ExplicitAsOf(t *testing.T) {
	src := newFakeSource()
	sufficientMonth(src, "203-1", "201905")
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)

	e := newTestEngine(t, src, resolver, DefaultPolicy())
	r, err := e.Estimate(context.Background(), Request{
		Address:      targetAddress,
		BuildingType: models.Apartment,
		Area:         84,
		AsOf:         time.Date(2019, time.December, 1, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, r.WindowYears)
	assert.Equal(t, 12, src.totalCalls())
}

func TestEngine_RegionMissWithoutGeoIsAbsent(t *testing.T) {
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").
		Return("", regioncode.ErrNotFound)

	e := newTestEngine(t, newFakeSource(), resolver, DefaultPolicy())
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84})

	require.NoError(t, err)
	assert.False(t, r.HasPrice())
	assert.Equal(t, "데이터 부족", r.Basis)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "region_code", r.Failures[0].Stage)
}

func TestEngine_RegionMissGoesToGeo(t *testing.T) {
	src := newFakeSource()
	src.add("100-1", "202405", trade(840_000_000, 84, "2024-05-01"))
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("", regioncode.ErrNotFound).Once()
	resolver.On("Resolve", mock.Anything, "서울특별시 서초구").Return("11650", nil)
	geocoder := &mockGeocoder{}
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)
	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(1, "서울특별시 서초구 서초동 100-1", 0.3),
	}}

	e := newTestEngine(t, src, resolver, DefaultPolicy(), WithGeoFallback(geocoder, complexes))
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84})

	require.NoError(t, err)
	require.True(t, r.HasPrice())
	assert.Equal(t, models.SourceGeo, r.Source)
	assert.Equal(t, 10_000_000.0, *r.PricePerArea)
	require.NotEmpty(t, r.Failures)
	assert.Equal(t, "region_code", r.Failures[0].Stage)
}

func TestEngine_GeoAfterExhaustedWindows(t *testing.T) {
	src := newFakeSource()
	src.add("203-1", "202001", trade(500_000_000, 50, "2020-01-15"))
	src.add("100-1", "202404", trade(1_680_000_000, 84, "2024-04-01"))
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)
	geocoder := &mockGeocoder{}
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)
	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(1, "서울특별시 강남구 역삼동 100-1", 0.5),
	}}

	e := newTestEngine(t, src, resolver, DefaultPolicy(), WithGeoFallback(geocoder, complexes))
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84})

	require.NoError(t, err)
	require.True(t, r.HasPrice())
	assert.Equal(t, models.SourceGeo, r.Source)
	assert.Equal(t, 20_000_000.0, *r.PricePerArea)
	// five years for the target lot, then two years for the neighbour
	assert.Equal(t, 60+24, src.totalCalls())
}

func TestEngine_EarlyGeoTriggerThenWiderWindows(t *testing.T) {
	src := newFakeSource()
	sufficientMonth(src, "203-1", "202105")
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)
	geocoder := &mockGeocoder{}
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)

	p := DefaultPolicy()
	p.GeoFallbackAfterYears = 2
	e := newTestEngine(t, src, resolver, p, WithGeoFallback(geocoder, staticComplexes{}))
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84})

	require.NoError(t, err)
	require.True(t, r.HasPrice())
	assert.Equal(t, models.SourceTiered, r.Source)
	assert.Equal(t, 4, r.WindowYears)
	assert.Equal(t, "4년 기준 (유사 평형)", r.Basis)
	geocoder.AssertCalled(t, "Geocode", mock.Anything, targetAddress)
	assert.Equal(t, 1, src.maxCallsPerMonth())
}

func TestEngine_DegradesToLatestSingle(t *testing.T) {
	src := newFakeSource()
	src.add("203-1", "202001", trade(500_000_000, 50, "2020-01-15"))
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)
	geocoder := &mockGeocoder{}
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)

	e := newTestEngine(t, src, resolver, DefaultPolicy(), WithGeoFallback(geocoder, staticComplexes{}))
	r, err := e.Estimate(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 64})

	require.NoError(t, err)
	require.True(t, r.HasPrice())
	assert.Equal(t, 10_000_000.0, *r.PricePerArea)
	assert.Contains(t, r.Basis, "최근 거래 1건")
}

func TestEngine_DetectOutliers(t *testing.T) {
	src := newFakeSource()
	src.add("203-1", "202405",
		trade(840_000_000, 84, "2024-05-01"),
		trade(848_400_000, 84, "2024-05-02"),
		trade(856_800_000, 84, "2024-05-03"),
		trade(865_200_000, 84, "2024-05-04"),
		trade(1_680_000_000, 84, "2024-05-05"),
	)
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)

	e := newTestEngine(t, src, resolver, DefaultPolicy())
	r, report, err := e.DetectOutliers(context.Background(), Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84}, UsePolicyDefault, UsePolicyDefault)

	require.NoError(t, err)
	require.True(t, r.HasPrice())
	assert.Equal(t, 10_200_000.0, *r.PricePerArea)
	assert.Equal(t, 3.0, report.Tolerance)
	assert.Equal(t, 0.3, report.Threshold)
	require.Len(t, report.Outliers, 1)
	assert.Equal(t, int64(1_680_000_000), report.Outliers[0].Transaction.Amount)
}

func TestEngine_DetectOutliersExactArea(t *testing.T) {
	src := newFakeSource()
	src.add("203-1", "202405",
		trade(840_000_000, 84, "2024-05-01"),
		trade(848_400_000, 84, "2024-05-02"),
		trade(856_800_000, 84, "2024-05-03"),
		trade(865_200_000, 84, "2024-05-04"),
		trade(1_720_000_000, 86, "2024-05-05"),
	)
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)
	e := newTestEngine(t, src, resolver, DefaultPolicy())
	req := Request{Address: targetAddress, BuildingType: models.Apartment, Area: 84}

	r, report, err := e.DetectOutliers(context.Background(), req, 0, UsePolicyDefault)
	require.NoError(t, err)
	assert.Equal(t, 10_200_000.0, *r.PricePerArea)
	assert.Equal(t, 0.0, report.Tolerance)
	assert.Equal(t, 4, report.BandSize)
	assert.Empty(t, report.Outliers)

	_, report, err = e.DetectOutliers(context.Background(), req, UsePolicyDefault, UsePolicyDefault)
	require.NoError(t, err)
	assert.Equal(t, 5, report.BandSize)
	require.Len(t, report.Outliers, 1)
	assert.Equal(t, 86.0, report.Outliers[0].Transaction.ExclusiveArea)
}

func TestEngine_NearbyRequiresGeo(t *testing.T) {
	e := newTestEngine(t, newFakeSource(), &mockResolver{}, DefaultPolicy())

	_, _, err := e.Nearby(context.Background(), targetAddress, models.Apartment, 1)
	assert.True(t, errors.Is(err, ErrGeoUnavailable))
}
