package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

var ErrMissingColumn = errors.New("reference table is missing a required column")

var (
	addressColumns   = []string{"full_address", "address", "주소", "전체주소", "지번주소"}
	latitudeColumns  = []string{"latitude", "lat", "위도", "y"}
	longitudeColumns = []string{"longitude", "lon", "lng", "경도", "x"}
)

// LoadReferenceTable reads a reference coordinate table. Rows without an
// address or with unusable coordinates are skipped; repeated addresses keep
// the first row. Rows are tagged with the family serving bt.
func LoadReferenceTable(path string, bt models.BuildingType, logger *logrus.Logger) ([]models.NearbyComplex, error) {
	if logger == nil {
		logger = logrus.New()
	}
	entry := GetBuildingType(bt)
	if entry == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedBuildingType, bt)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	addrIdx := columnIndex(header, addressColumns)
	latIdx := columnIndex(header, latitudeColumns)
	lonIdx := columnIndex(header, longitudeColumns)
	if addrIdx < 0 || latIdx < 0 || lonIdx < 0 {
		return nil, fmt.Errorf("%w: %s has columns %v", ErrMissingColumn, path, header)
	}

	family := entry.Type
	seen := make(map[string]struct{})
	var complexes []models.NearbyComplex
	skipped := 0
	line := 1

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read reference row %d: %w", line, err)
		}

		c, ok := parseReferenceRow(record, addrIdx, latIdx, lonIdx)
		if !ok {
			skipped++
			logger.WithFields(logrus.Fields{"path": path, "line": line}).Debug("Skipping reference row")
			continue
		}
		if _, dup := seen[c.FullAddress]; dup {
			continue
		}
		seen[c.FullAddress] = struct{}{}
		c.BuildingType = family
		complexes = append(complexes, c)
	}

	logger.WithFields(logrus.Fields{
		"path":          path,
		"building_type": family,
		"rows":          len(complexes),
		"skipped":       skipped,
	}).Info("Loaded reference table")

	return complexes, nil
}

func columnIndex(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func parseReferenceRow(record []string, addrIdx, latIdx, lonIdx int) (models.NearbyComplex, bool) {
	if addrIdx >= len(record) || latIdx >= len(record) || lonIdx >= len(record) {
		return models.NearbyComplex{}, false
	}
	addr := strings.Join(strings.Fields(record[addrIdx]), " ")
	if addr == "" {
		return models.NearbyComplex{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return models.NearbyComplex{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[lonIdx]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return models.NearbyComplex{}, false
	}
	return models.NearbyComplex{FullAddress: addr, Latitude: lat, Longitude: lon}, true
}
