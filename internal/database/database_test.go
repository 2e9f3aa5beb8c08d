package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvartometr/server/internal/models"
)

func setupDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *Database, key, city, sourceID, status string, lat, lon *float64) {
	t.Helper()
	_, err := db.GetDB().Exec(`
		INSERT INTO listings (identity_key, city, district, price_rub, area_sqm,
			latitude, longitude, raw_address, url, source_id, status,
			first_seen_at, last_seen_at)
		VALUES (?, ?, 'Центральный', 5000000, 50, ?, ?, 'Невский проспект, 1', '',
			?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, key, city, lat, lon, sourceID, status)
	require.NoError(t, err)
}

func TestMarkStale_UnseenRowsBecomeStale(t *testing.T) {
	db := setupDatabase(t)
	seed(t, db, "domofond:1", "spb", "domofond", models.StatusActive, nil, nil)
	seed(t, db, "domofond:2", "spb", "domofond", models.StatusActive, nil, nil)
	seed(t, db, "cian:9", "spb", "cian", models.StatusActive, nil, nil)
	seed(t, db, "domofond:7", "msk", "domofond", models.StatusActive, nil, nil)

	affected, err := db.MarkStale(models.CitySPB, "domofond", []string{"domofond:1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	// The unseen row left the ACTIVE set; other sources and cities
	// are untouched.
	active, err := db.ActiveListings(models.CitySPB)
	require.NoError(t, err)
	keys := make([]string, 0, len(active))
	for _, l := range active {
		keys = append(keys, l.IdentityKey)
	}
	assert.ElementsMatch(t, []string{"domofond:1", "cian:9"}, keys)

	counts, err := db.StatusCounts(models.CitySPB)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.StatusActive: 2, models.StatusStale: 1}, counts)

	mskActive, err := db.ActiveListings(models.CityMSK)
	require.NoError(t, err)
	require.Len(t, mskActive, 1)
	assert.Equal(t, "domofond:7", mskActive[0].IdentityKey)
}

func TestMarkStale_EmptySeenSetDemotesWholeSource(t *testing.T) {
	db := setupDatabase(t)
	seed(t, db, "domofond:1", "spb", "domofond", models.StatusActive, nil, nil)
	seed(t, db, "domofond:2", "spb", "domofond", models.StatusActive, nil, nil)

	affected, err := db.MarkStale(models.CitySPB, "domofond", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	active, err := db.ActiveListings(models.CitySPB)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMarkStale_AlreadyStaleNotCountedAgain(t *testing.T) {
	db := setupDatabase(t)
	seed(t, db, "domofond:1", "spb", "domofond", models.StatusActive, nil, nil)

	affected, err := db.MarkStale(models.CitySPB, "domofond", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	// A second pass with the same empty seen set has nothing left to
	// demote.
	affected, err = db.MarkStale(models.CitySPB, "domofond", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected)
}

func TestActiveListings_ScansFields(t *testing.T) {
	db := setupDatabase(t)
	lat, lon := 59.93, 30.31
	seed(t, db, "domofond:1", "spb", "domofond", models.StatusActive, &lat, &lon)
	seed(t, db, "domofond:2", "spb", "domofond", models.StatusStale, nil, nil)

	active, err := db.ActiveListings(models.CitySPB)
	require.NoError(t, err)
	require.Len(t, active, 1)

	l := active[0]
	assert.Equal(t, "domofond:1", l.IdentityKey)
	assert.Equal(t, "Центральный", l.District)
	assert.Equal(t, 5000000.0, l.PriceRub)
	require.True(t, l.HasCoordinates())
	assert.Equal(t, lat, *l.Latitude)
	assert.False(t, l.FirstSeenAt.IsZero())
	assert.False(t, l.LastSeenAt.IsZero())
}

type stubGeocoder struct {
	coords map[string][2]float64
	calls  int
}

func (g *stubGeocoder) GeocodeAddress(ctx context.Context, address string, city models.City) (float64, float64, error) {
	g.calls++
	c, ok := g.coords[address]
	if !ok {
		return 0, 0, errors.New("no results")
	}
	return c[0], c[1], nil
}

func TestFillMissingCoordinates(t *testing.T) {
	db := setupDatabase(t)
	lat, lon := 59.93, 30.31
	// Already located: must not be re-geocoded.
	seed(t, db, "domofond:1", "spb", "domofond", models.StatusActive, &lat, &lon)
	seed(t, db, "domofond:2", "spb", "domofond", models.StatusActive, nil, nil)
	seed(t, db, "avito:3", "spb", "avito", models.StatusActive, nil, nil)

	geocoder := &stubGeocoder{coords: map[string][2]float64{}}
	_, err := db.GetDB().Exec(`UPDATE listings SET raw_address = 'Лиговский проспект, 10' WHERE identity_key = 'avito:3'`)
	require.NoError(t, err)
	geocoder.coords["Лиговский проспект, 10"] = [2]float64{59.92, 30.35}

	updated, err := db.FillMissingCoordinates(context.Background(), geocoder, models.CitySPB)
	require.NoError(t, err)
	// The lookup failure for domofond:2 is skipped, not fatal.
	assert.Equal(t, 1, updated)
	assert.Equal(t, 2, geocoder.calls)

	active, err := db.ActiveListings(models.CitySPB)
	require.NoError(t, err)
	located := map[string]bool{}
	for _, l := range active {
		located[l.IdentityKey] = l.HasCoordinates()
	}
	assert.True(t, located["avito:3"])
	assert.False(t, located["domofond:2"])
}
