package models

import "time"

// EstimateSource names the stage that produced an estimate.
type EstimateSource string

const (
	SourceTiered EstimateSource = "tiered"
	SourceSingle EstimateSource = "latest_single"
	SourceGeo    EstimateSource = "geo_fallback"
	SourceNone   EstimateSource = "none"
)

// EstimationResult is what collaborators consume. A nil PricePerArea means
// no estimate could be made; Basis then explains why.
type EstimationResult struct {
	ID            string         `json:"id"`
	PricePerArea  *float64       `json:"price_per_area"`
	Basis         string         `json:"basis"`
	Source        EstimateSource `json:"source"`
	Median        *float64       `json:"median,omitempty"`
	WeightedMean  *float64       `json:"weighted_mean,omitempty"`
	WindowYears   int            `json:"window_years,omitempty"`
	SimilarBand   bool           `json:"similar_band"`
	SampleSize    int            `json:"sample_size"`
	PolicyVersion string         `json:"policy_version"`
	EstimatedAt   time.Time      `json:"estimated_at"`
	Failures      []FetchFailure `json:"failures,omitempty"`

	// Transactions is the accumulated set the estimate was drawn from.
	Transactions []Transaction `json:"transactions,omitempty"`
}

// HasPrice reports whether an estimate is present.
func (r *EstimationResult) HasPrice() bool {
	return r != nil && r.PricePerArea != nil
}

// FetchFailure records an upstream failure that was absorbed instead of
// aborting the estimation.
type FetchFailure struct {
	Stage     string `json:"stage"`
	Target    string `json:"target,omitempty"`
	Window    int    `json:"window,omitempty"`
	YearMonth string `json:"year_month,omitempty"`
	Page      int    `json:"page,omitempty"`
	Err       string `json:"error"`
}

// OutlierEntry is one transaction flagged against a central price.
type OutlierEntry struct {
	Transaction  Transaction `json:"transaction"`
	PricePerArea float64     `json:"price_per_area"`
	Deviation    float64     `json:"deviation"`
}

type OutlierReport struct {
	Central   float64        `json:"central"`
	Tolerance float64        `json:"tolerance"`
	Threshold float64        `json:"threshold"`
	BandSize  int            `json:"band_size"`
	Outliers  []OutlierEntry `json:"outliers"`
	Summary   string         `json:"summary"`
}
