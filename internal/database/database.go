package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"kvartometr/server/internal/models"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Source workers write concurrently; let the single writer queue
	// instead of failing fast.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// ActiveListings returns every ACTIVE listing of a city. STALE rows are
// retained for audit but never partake in aggregation.
func (d *Database) ActiveListings(city models.City) ([]models.Listing, error) {
	rows, err := d.db.Query(`
        SELECT id, identity_key, city, district, price_rub, area_sqm,
               latitude, longitude, raw_address, url, source_id, status,
               first_seen_at, last_seen_at
        FROM listings
        WHERE city = ? AND status = ?
        ORDER BY id
    `, string(city), models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

func scanListings(rows *sql.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var latitude, longitude sql.NullFloat64
		var rawAddress, url sql.NullString

		err := rows.Scan(
			&l.ID,
			&l.IdentityKey,
			&l.City,
			&l.District,
			&l.PriceRub,
			&l.AreaSqm,
			&latitude,
			&longitude,
			&rawAddress,
			&url,
			&l.SourceID,
			&l.Status,
			&l.FirstSeenAt,
			&l.LastSeenAt,
		)
		if err != nil {
			return nil, err
		}

		if latitude.Valid && longitude.Valid {
			lat := latitude.Float64
			lon := longitude.Float64
			l.Latitude = &lat
			l.Longitude = &lon
		}
		if rawAddress.Valid {
			l.RawAddress = rawAddress.String
		}
		if url.Valid {
			l.URL = url.String
		}

		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// StatusCounts returns the number of listings per status for a city.
func (d *Database) StatusCounts(city models.City) (map[string]int, error) {
	rows, err := d.db.Query(`
        SELECT status, COUNT(*)
        FROM listings
        WHERE city = ?
        GROUP BY status
    `, string(city))
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// MarkStale transitions every ACTIVE listing of the source in the city
// that was not observed in the current pass to STALE, and returns how
// many rows changed. The seen set is staged in a temp table so the
// statement stays valid for arbitrarily large passes.
func (d *Database) MarkStale(city models.City, sourceID string, seenKeys []string) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS seen_keys (key TEXT PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM seen_keys`); err != nil {
		return 0, fmt.Errorf("failed to reset temp table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO seen_keys (key) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	for _, key := range seenKeys {
		if _, err := stmt.Exec(key); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to stage seen key: %w", err)
		}
	}
	stmt.Close()

	result, err := tx.Exec(`
        UPDATE listings
        SET status = ?
        WHERE city = ? AND source_id = ? AND status = ?
        AND identity_key NOT IN (SELECT key FROM seen_keys)
    `, models.StatusStale, string(city), sourceID, models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale listings: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

func (d *Database) Close() error {
	return d.db.Close()
}
