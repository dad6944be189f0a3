package database

import "fmt"

func (d *Database) RunMigrations() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS complexes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_address TEXT NOT NULL,
			building_type TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create complexes table: %w", err)
	}

	_, err = d.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_complex_addr_type
		ON complexes(full_address, building_type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create address index: %w", err)
	}

	// Create spatial index on coordinates
	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_complex_coords
		ON complexes(building_type, latitude, longitude);
	`)
	if err != nil {
		return fmt.Errorf("failed to create coordinate index: %w", err)
	}

	return nil
}
