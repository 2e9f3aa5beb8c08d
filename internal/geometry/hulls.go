// Package geometry derives approximate district shapes from observed
// listing coordinates. The hulls are a map overlay for cities where no
// official boundary file is configured; they never feed district
// resolution.
package geometry

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

// minHullPoints is the smallest sample that yields a polygon.
const minHullPoints = 3

type HullBuilder struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewHullBuilder(db *sql.DB, logger *logrus.Logger) *HullBuilder {
	return &HullBuilder{
		db:     db,
		logger: logger,
	}
}

// DistrictHulls computes one convex hull per resolved district from the
// coordinates of the city's ACTIVE listings. Districts with fewer than
// three located listings are skipped.
func (b *HullBuilder) DistrictHulls(city models.City) (*geojson.FeatureCollection, error) {
	rows, err := b.db.Query(`
        SELECT district, latitude, longitude
        FROM listings
        WHERE city = ? AND status = ? AND district != ?
          AND latitude IS NOT NULL AND longitude IS NOT NULL
    `, string(city), models.StatusActive, models.DistrictUnresolved)
	if err != nil {
		return nil, fmt.Errorf("failed to query located listings: %w", err)
	}
	defer rows.Close()

	points := make(map[string][]orb.Point)
	for rows.Next() {
		var district string
		var lat, lon float64
		if err := rows.Scan(&district, &lat, &lon); err != nil {
			return nil, err
		}
		points[district] = append(points[district], orb.Point{lon, lat})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	collection := geojson.NewFeatureCollection()
	for _, district := range sortedKeys(points) {
		sample := points[district]
		if len(sample) < minHullPoints {
			b.logger.WithFields(logrus.Fields{
				"district": district,
				"points":   len(sample),
			}).Debug("Not enough located listings for a hull")
			continue
		}

		hull := convexHull(sample)
		if hull == nil {
			continue
		}

		feature := geojson.NewFeature(orb.Polygon{hull})
		feature.Properties = geojson.Properties{
			"district":    district,
			"city":        string(city),
			"point_count": len(sample),
			"hull_type":   "convex",
		}
		collection.Append(feature)
	}

	return collection, nil
}

func sortedKeys(m map[string][]orb.Point) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// convexHull runs the monotone chain algorithm and returns a closed
// ring, counter-clockwise. Collinear inputs yield nil.
func convexHull(points []orb.Point) orb.Ring {
	if len(points) < minHullPoints {
		return nil
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	var lower []orb.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []orb.Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < minHullPoints {
		return nil
	}

	// Close the ring.
	hull = append(hull, hull[0])
	return orb.Ring(hull)
}
