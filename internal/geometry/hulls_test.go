package geometry

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvartometr/server/internal/database"
	"kvartometr/server/internal/models"
)

func TestConvexHull(t *testing.T) {
	// A square with one interior point: the hull has the four corners.
	points := []orb.Point{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {0.5, 0.5},
	}

	hull := convexHull(points)
	require.NotNil(t, hull)
	// Four corners plus the closing point.
	assert.Len(t, hull, 5)
	assert.Equal(t, hull[0], hull[len(hull)-1])
	for _, p := range hull {
		assert.NotEqual(t, orb.Point{0.5, 0.5}, p)
	}
}

func TestConvexHull_TooFewPoints(t *testing.T) {
	assert.Nil(t, convexHull([]orb.Point{{0, 0}, {1, 1}}))
}

func TestDistrictHulls(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "hulls.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	defer db.Close()

	insert := func(key, district string, lat, lon *float64) {
		_, err := db.GetDB().Exec(`
			INSERT INTO listings (identity_key, city, district, price_rub, area_sqm,
				latitude, longitude, source_id, status, first_seen_at, last_seen_at)
			VALUES (?, 'spb', ?, 5000000, 50, ?, ?, 'domofond', 'active',
				CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`, key, district, lat, lon)
		require.NoError(t, err)
	}
	coord := func(v float64) *float64 { return &v }

	insert("domofond:1", "Центральный", coord(59.93), coord(30.30))
	insert("domofond:2", "Центральный", coord(59.94), coord(30.32))
	insert("domofond:3", "Центральный", coord(59.92), coord(30.34))
	insert("domofond:4", "Центральный", coord(59.95), coord(30.31))
	// Too few located listings for a hull.
	insert("domofond:5", "Невский", coord(59.88), coord(30.42))
	// No coordinates at all.
	insert("domofond:6", "Невский", nil, nil)
	// Unresolved listings never shape a district.
	insert("domofond:7", models.DistrictUnresolved, coord(59.90), coord(30.40))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	collection, err := NewHullBuilder(db.GetDB(), logger).DistrictHulls(models.CitySPB)
	require.NoError(t, err)
	require.Len(t, collection.Features, 1)

	feature := collection.Features[0]
	assert.Equal(t, "Центральный", feature.Properties["district"])
	assert.Equal(t, 4, feature.Properties["point_count"])
}
