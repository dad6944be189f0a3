package estimator

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/mock"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
	"github.com/DeepDiveOCR/ocr-safesign/internal/registry"
)

var asOf = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

// fakeSource serves canned months keyed by "lot|YYYYMM" and counts calls.
type fakeSource struct {
	mu    sync.Mutex
	data  map[string][]models.Transaction
	errs  map[string]error
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		data:  make(map[string][]models.Transaction),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) add(lot, yearMonth string, txs ...models.Transaction) {
	key := lot + "|" + yearMonth
	f.data[key] = append(f.data[key], txs...)
}

func (f *fakeSource) fail(lot, yearMonth string, err error) {
	f.errs[lot+"|"+yearMonth] = err
}

func (f *fakeSource) Fetch(ctx context.Context, q registry.Query, yearMonth string) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := q.LotNumber + "|" + yearMonth
	f.calls[key]++
	return append([]models.Transaction(nil), f.data[key]...), f.errs[key]
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeSource) maxCallsPerMonth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, c := range f.calls {
		if c > max {
			max = c
		}
	}
	return max
}

func trade(amount int64, area float64, date string) models.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return models.Transaction{Kind: models.Trade, Amount: amount, ExclusiveArea: area, DealDate: d}
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, regionName string) (string, error) {
	args := m.Called(ctx, regionName)
	return args.String(0), args.Error(1)
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (orb.Point, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(orb.Point), args.Error(1)
}

type staticComplexes struct {
	complexes []models.NearbyComplex
	err       error
}

func (s staticComplexes) ComplexesNear(ctx context.Context, center orb.Point, radiusKm float64, bt models.BuildingType) ([]models.NearbyComplex, error) {
	var out []models.NearbyComplex
	for _, c := range s.complexes {
		if c.BuildingType == bt {
			out = append(out, c)
		}
	}
	return out, s.err
}

var targetQuery = registry.Query{
	RegionCode:   "11680",
	SubDistrict:  "논현동",
	LotNumber:    "203-1",
	BuildingType: models.Apartment,
	Kind:         models.Trade,
}
