package estimator

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DeepDiveOCR/ocr-safesign/internal/geocoding"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

const (
	targetAddress = "서울특별시 강남구 논현동 203-1"
	// about one kilometre of latitude
	kmLat = 0.008993
)

var origin = orb.Point{127.0, 37.5}

func complexNorth(id int64, addr string, km float64) models.NearbyComplex {
	return models.NearbyComplex{
		ID:           id,
		FullAddress:  addr,
		BuildingType: models.Apartment,
		Latitude:     origin.Lat() + km*kmLat,
		Longitude:    origin.Lon(),
	}
}

func newFallback(t *testing.T, src TransactionSource, complexes ComplexSource) (*GeoFallback, *mockGeocoder, *mockResolver) {
	t.Helper()
	geocoder := &mockGeocoder{}
	resolver := &mockResolver{}
	return NewGeoFallback(geocoder, complexes, resolver, src, DefaultPolicy(), logrus.New(), nil), geocoder, resolver
}

func TestGeoFallback_NoComplexWithinRadius(t *testing.T) {
	src := newFakeSource()
	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(1, "서울특별시 강남구 역삼동 100-1", 1.5),
		complexNorth(2, "서울특별시 강남구 역삼동 200-2", 3.0),
	}}
	fb, geocoder, resolver := newFallback(t, src, complexes)
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)

	r, _, err := fb.Estimate(context.Background(), targetAddress, models.Apartment, models.Trade, asOf)

	assert.Nil(t, r)
	assert.True(t, errors.Is(err, ErrNoComparableData))
	assert.Zero(t, src.totalCalls())
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestGeoFallback_GeocodeMiss(t *testing.T) {
	fb, geocoder, _ := newFallback(t, newFakeSource(), staticComplexes{})
	geocoder.On("Geocode", mock.Anything, targetAddress).
		Return(orb.Point{}, geocoding.ErrNotFound)

	r, failures, err := fb.Estimate(context.Background(), targetAddress, models.Apartment, models.Trade, asOf)

	assert.Nil(t, r)
	assert.True(t, errors.Is(err, geocoding.ErrNotFound))
	require.Len(t, failures, 1)
	assert.Equal(t, "geocode", failures[0].Stage)
}

func TestGeoFallback_NearComplexDominates(t *testing.T) {
	src := newFakeSource()
	src.add("100-1", "202405", trade(840_000_000, 84, "2024-05-01"), trade(840_000_000, 84, "2024-05-02"))
	src.add("200-2", "202405", trade(1_680_000_000, 84, "2024-05-01"), trade(1_680_000_000, 84, "2024-05-02"))
	src.add("300-3", "202405", trade(5_000_000_000, 84, "2024-05-01"))

	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(2, "서울특별시 강남구 역삼동 200-2", 0.8),
		complexNorth(1, "서울특별시 강남구 역삼동 100-1", 0.2),
		complexNorth(3, "서울특별시 강남구 역삼동 300-3", 1.5),
	}}
	fb, geocoder, resolver := newFallback(t, src, complexes)
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)

	r, failures, err := fb.Estimate(context.Background(), targetAddress, models.Apartment, models.Trade, asOf)

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.NotNil(t, r.PricePerArea)
	assert.Equal(t, 10_000_000.0, *r.PricePerArea)
	assert.Equal(t, models.SourceGeo, r.Source)
	assert.Equal(t, 4, r.SampleSize)
	assert.Equal(t, "인근 2개 단지 거리·시점 가중 중앙값 (반경 1km, 4건)", r.Basis)
	// two complexes inside the radius, 24 months each
	assert.Equal(t, 48, src.totalCalls())
}

func TestGeoFallback_SkipsUnresolvableComplex(t *testing.T) {
	src := newFakeSource()
	src.add("100-1", "202312", trade(840_000_000, 84, "2023-12-01"))

	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(1, "서울특별시 강남구 역삼동 100-1", 0.2),
		complexNorth(2, "경기도 가평군 청평면 55", 0.3),
		complexNorth(3, "주소없음", 0.4),
	}}
	fb, geocoder, resolver := newFallback(t, src, complexes)
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)
	resolver.On("Resolve", mock.Anything, "경기도 가평군").Return("", errors.New("region code not found"))

	r, failures, err := fb.Estimate(context.Background(), targetAddress, models.Apartment, models.Trade, asOf)

	require.NoError(t, err)
	require.NotNil(t, r.PricePerArea)
	assert.Equal(t, 10_000_000.0, *r.PricePerArea)
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "region_code", f.Stage)
	}
}

func TestGeoFallback_EmptyPool(t *testing.T) {
	src := newFakeSource()
	complexes := staticComplexes{complexes: []models.NearbyComplex{
		complexNorth(1, "서울특별시 강남구 역삼동 100-1", 0.2),
	}}
	fb, geocoder, resolver := newFallback(t, src, complexes)
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)
	resolver.On("Resolve", mock.Anything, "서울특별시 강남구").Return("11680", nil)

	_, _, err := fb.Estimate(context.Background(), targetAddress, models.Apartment, models.Trade, asOf)

	assert.True(t, errors.Is(err, ErrNoComparableData))
	assert.Equal(t, 24, src.totalCalls())
}

func TestGeoFallback_OnlySameFamily(t *testing.T) {
	complexes := staticComplexes{complexes: []models.NearbyComplex{
		{ID: 1, FullAddress: "서울특별시 관악구 봉천동 148-149", BuildingType: models.MultiUnit, Latitude: origin.Lat(), Longitude: origin.Lon()},
		{ID: 2, FullAddress: "서울특별시 관악구 봉천동 1", BuildingType: models.Apartment, Latitude: origin.Lat(), Longitude: origin.Lon()},
	}}
	fb, geocoder, _ := newFallback(t, newFakeSource(), complexes)
	geocoder.On("Geocode", mock.Anything, targetAddress).Return(origin, nil)

	_, ranked, err := fb.Nearby(context.Background(), targetAddress, models.RowHouse, 1.0, 0)

	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(1), ranked[0].ID)
}
