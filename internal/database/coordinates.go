package database

import (
	"context"
	"fmt"

	"kvartometr/server/internal/models"
)

// AddressGeocoder resolves a free-form address inside a city.
type AddressGeocoder interface {
	GeocodeAddress(ctx context.Context, address string, city models.City) (float64, float64, error)
}

// FillMissingCoordinates geocodes ACTIVE listings that carry an address
// but no coordinates and writes the result back. Lookup failures are
// skipped; the next invocation retries them.
func (d *Database) FillMissingCoordinates(ctx context.Context, g AddressGeocoder, city models.City) (int, error) {
	rows, err := d.db.Query(`
        SELECT id, raw_address
        FROM listings
        WHERE city = ? AND status = ?
          AND latitude IS NULL AND raw_address != ''
    `, string(city), models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to query listings without coordinates: %w", err)
	}

	type pending struct {
		id      int64
		address string
	}
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.address); err != nil {
			rows.Close()
			return 0, err
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	updated := 0
	for _, p := range todo {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		lat, lon, err := g.GeocodeAddress(ctx, p.address, city)
		if err != nil {
			continue
		}

		if _, err := d.db.Exec(`
            UPDATE listings SET latitude = ?, longitude = ? WHERE id = ?
        `, lat, lon, p.id); err != nil {
			return updated, fmt.Errorf("failed to store coordinates: %w", err)
		}
		updated++
	}
	return updated, nil
}
