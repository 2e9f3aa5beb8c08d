package database

import "fmt"

func (d *Database) RunMigrations() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_key TEXT UNIQUE NOT NULL,
			city TEXT NOT NULL,
			district TEXT NOT NULL,
			price_rub REAL NOT NULL,
			area_sqm REAL NOT NULL,
			latitude REAL,
			longitude REAL,
			raw_address TEXT,
			url TEXT,
			source_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create listings table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_city_status
		ON listings(city, status);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_source
		ON listings(source_id, status);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_coordinates
		ON listings(latitude, longitude);
	`)
	if err != nil {
		return err
	}

	return nil
}
