package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/config"
	"github.com/DeepDiveOCR/ocr-safesign/internal/address"
	"github.com/DeepDiveOCR/ocr-safesign/internal/estimator"
	"github.com/DeepDiveOCR/ocr-safesign/internal/geo"
	"github.com/DeepDiveOCR/ocr-safesign/internal/geocoding"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// Estimator is the engine surface the handlers call
type Estimator interface {
	Estimate(ctx context.Context, req estimator.Request) (*models.EstimationResult, error)
	DetectOutliers(ctx context.Context, req estimator.Request, tolerance, threshold float64) (*models.EstimationResult, models.OutlierReport, error)
	Nearby(ctx context.Context, addr string, bt models.BuildingType, radiusKm float64) (orb.Point, []models.RankedComplex, error)
	Policy() estimator.Policy
}

// ComplexCounter reports how much reference data is loaded
type ComplexCounter interface {
	ComplexCounts(ctx context.Context) (map[models.BuildingType]int, error)
}

type Handler struct {
	engine Estimator
	db     ComplexCounter
	logger *logrus.Logger
}

type EstimateRequest struct {
	Address      string  `json:"address" binding:"required"`
	BuildingType string  `json:"building_type" binding:"required"`
	Area         float64 `json:"area" binding:"required"`
	DealKind     string  `json:"deal_kind"`
	// YYYY-MM-DD; defaults to today
	AsOf string `json:"as_of"`
}

// OutlierRequest adds the outlier band and threshold. Omitted values use the
// policy defaults; a tolerance of 0 restricts the band to the exact area.
type OutlierRequest struct {
	EstimateRequest
	Tolerance *float64 `json:"tolerance"`
	Threshold *float64 `json:"threshold"`
}

func valueOrDefault(v *float64) float64 {
	if v == nil {
		return estimator.UsePolicyDefault
	}
	return *v
}

type OutlierResponse struct {
	Estimate *models.EstimationResult `json:"estimate"`
	Report   models.OutlierReport     `json:"report"`
}

var errBadRequest = errors.New("bad request")

func NewHandler(engine Estimator, db ComplexCounter, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		engine: engine,
		db:     db,
		logger: logger,
	}
}

// ToEngine validates the request fields and converts them to an engine request.
func (r EstimateRequest) ToEngine() (estimator.Request, error) {
	bt, err := models.ParseBuildingType(r.BuildingType)
	if err != nil {
		return estimator.Request{}, err
	}
	kind, err := models.ParseDealKind(r.DealKind)
	if err != nil {
		return estimator.Request{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	req := estimator.Request{
		Address:      r.Address,
		BuildingType: bt,
		Area:         r.Area,
		Kind:         kind,
	}
	if r.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", r.AsOf)
		if err != nil {
			return estimator.Request{}, fmt.Errorf("%w: as_of must be YYYY-MM-DD", errBadRequest)
		}
		req.AsOf = asOf
	}
	return req, nil
}

func isCallerError(err error) bool {
	return errors.Is(err, address.ErrMalformedAddress) ||
		errors.Is(err, models.ErrUnsupportedBuildingType) ||
		errors.Is(err, estimator.ErrInvalidArea) ||
		errors.Is(err, errBadRequest)
}

func (h *Handler) Estimate(c *gin.Context) {
	var body EstimateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.WithError(err).Error("Failed to parse estimate request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	req, err := body.ToEngine()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Estimate(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Failed to estimate price")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) DetectOutliers(c *gin.Context) {
	var body OutlierRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.WithError(err).Error("Failed to parse outlier request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}
	tolerance, threshold := valueOrDefault(body.Tolerance), valueOrDefault(body.Threshold)
	if (body.Tolerance != nil && tolerance < 0) || (body.Threshold != nil && threshold < 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tolerance and threshold must not be negative"})
		return
	}

	req, err := body.ToEngine()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, report, err := h.engine.DetectOutliers(c.Request.Context(), req, tolerance, threshold)
	if err != nil {
		h.respondError(c, err, "Failed to detect outliers")
		return
	}

	c.JSON(http.StatusOK, OutlierResponse{Estimate: result, Report: report})
}

// Nearby returns the reference complexes around an address as GeoJSON
func (h *Handler) Nearby(c *gin.Context) {
	addr := c.Query("address")
	if addr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}
	bt, err := models.ParseBuildingType(c.DefaultQuery("building_type", string(models.Apartment)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var radiusKm float64
	if raw := c.Query("radius_km"); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil || radiusKm <= 0 || radiusKm > 20 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be between 0 and 20"})
			return
		}
	}

	origin, ranked, err := h.engine.Nearby(c.Request.Context(), addr, bt, radiusKm)
	switch {
	case errors.Is(err, estimator.ErrGeoUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geo lookup is not configured"})
		return
	case errors.Is(err, geocoding.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Address could not be geocoded"})
		return
	case err != nil:
		h.logger.WithError(err).WithField("address", addr).Error("Failed to find nearby complexes")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to find nearby complexes"})
		return
	}

	c.JSON(http.StatusOK, geo.FeatureCollection(origin, ranked))
}

func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"status":         "ok",
		"policy_version": h.engine.Policy().Version,
		"building_types": config.GetBuildingTypeNames(),
	}
	if h.db != nil {
		counts, err := h.db.ComplexCounts(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).Error("Failed to count reference complexes")
			resp["status"] = "degraded"
		} else {
			resp["reference_complexes"] = counts
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	if isCallerError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
