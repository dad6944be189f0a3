package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	_ "github.com/mattn/go-sqlite3"

	"github.com/DeepDiveOCR/ocr-safesign/internal/geo"
	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// Database stores the reference complexes used by the geo fallback. It is
// written by the importer at startup and only read afterwards.
type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Gorm wraps the same connection for batched writes.
func (d *Database) Gorm() (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{Conn: d.db}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// ComplexesNear returns complexes of bt's family inside the bounding box of
// the radius around center. Corners of the box lie outside the radius, so
// callers still filter by distance.
func (d *Database) ComplexesNear(ctx context.Context, center orb.Point, radiusKm float64, bt models.BuildingType) ([]models.NearbyComplex, error) {
	b := geo.SearchBound(center, radiusKm)

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, full_address, building_type, latitude, longitude
		FROM complexes
		WHERE building_type = ?
		  AND latitude BETWEEN ? AND ?
		  AND longitude BETWEEN ? AND ?
		ORDER BY id
	`, string(bt.Family()), b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	if err != nil {
		return nil, fmt.Errorf("failed to query complexes: %w", err)
	}
	defer rows.Close()

	var complexes []models.NearbyComplex
	for rows.Next() {
		var c models.NearbyComplex
		var buildingType string
		if err := rows.Scan(&c.ID, &c.FullAddress, &buildingType, &c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan complex: %w", err)
		}
		c.BuildingType = models.BuildingType(buildingType)
		complexes = append(complexes, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complexes: %w", err)
	}

	return complexes, nil
}

// ComplexCounts returns the number of stored complexes per building family.
func (d *Database) ComplexCounts(ctx context.Context) (map[models.BuildingType]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT building_type, COUNT(*)
		FROM complexes
		GROUP BY building_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count complexes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.BuildingType]int)
	for rows.Next() {
		var bt string
		var n int
		if err := rows.Scan(&bt, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.BuildingType(bt)] = n
	}
	return counts, rows.Err()
}

// UpsertComplexes writes a batch inside tx. An existing address of the same
// family gets its coordinates replaced.
func UpsertComplexes(tx *gorm.DB, batch []models.NearbyComplex) error {
	if len(batch) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "full_address"}, {Name: "building_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude"}),
	}).Create(&batch).Error
}
