// Package aggregate derives per-district statistics from stored
// listings. Nothing here is cached or materialized: every call reads
// the current ACTIVE set, so a finished crawl is immediately visible.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

// SortOrder selects how district rows are ordered in the response.
type SortOrder string

const (
	// SortByCount orders by listing count, largest district first.
	SortByCount SortOrder = "count"
	// SortByDistrict orders alphabetically by district name.
	SortByDistrict SortOrder = "district"
	// SortByPrice orders by average price per square meter, descending.
	SortByPrice SortOrder = "price"
)

// ParseSortOrder validates a sort parameter from the API; empty input
// falls back to count ordering.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case SortByCount, SortByDistrict, SortByPrice:
		return SortOrder(s), nil
	case "":
		return SortByCount, nil
	}
	return "", fmt.Errorf("unknown sort order: %q", s)
}

// Store is the read slice of the database layer the aggregator needs.
type Store interface {
	ActiveListings(city models.City) ([]models.Listing, error)
}

// Aggregator computes district and map statistics.
type Aggregator struct {
	store  Store
	logger *logrus.Logger
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Districts returns one row per district that currently has at least
// one ACTIVE listing. Districts without listings are omitted rather
// than reported as zero rows. Listings whose district never resolved
// are kept: they form a row under the sentinel name ("unresolved"),
// not a canonical district, so chart consumers keying on the official
// district set should filter or relabel that row.
func (a *Aggregator) Districts(city models.City, order SortOrder) ([]models.DistrictAggregate, error) {
	listings, err := a.store.ActiveListings(city)
	if err != nil {
		return nil, fmt.Errorf("failed to load active listings: %w", err)
	}

	type acc struct {
		count     int
		sumPerSqm float64
		sumArea   float64
	}
	byDistrict := make(map[string]*acc)
	for i := range listings {
		l := &listings[i]
		bucket, ok := byDistrict[l.District]
		if !ok {
			bucket = &acc{}
			byDistrict[l.District] = bucket
		}
		bucket.count++
		bucket.sumPerSqm += l.PricePerSqm()
		bucket.sumArea += l.AreaSqm
	}

	rows := make([]models.DistrictAggregate, 0, len(byDistrict))
	for district, bucket := range byDistrict {
		rows = append(rows, models.DistrictAggregate{
			City:           string(city),
			District:       district,
			ListingCount:   bucket.count,
			AvgPricePerSqm: bucket.sumPerSqm / float64(bucket.count),
			AvgAreaSqm:     bucket.sumArea / float64(bucket.count),
		})
	}

	sortRows(rows, order)
	return rows, nil
}

// sortRows orders deterministically: ties always break on the district
// name so repeated calls over the same data return the same order.
func sortRows(rows []models.DistrictAggregate, order SortOrder) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		switch order {
		case SortByPrice:
			if a.AvgPricePerSqm != b.AvgPricePerSqm {
				return a.AvgPricePerSqm > b.AvgPricePerSqm
			}
		case SortByDistrict:
		default:
			if a.ListingCount != b.ListingCount {
				return a.ListingCount > b.ListingCount
			}
		}
		return a.District < b.District
	})
}

// GeoExtract returns one point per unique coordinate pair among ACTIVE
// listings with coordinates, carrying the mean price per square meter
// observed there. Listings without coordinates are skipped.
func (a *Aggregator) GeoExtract(city models.City) ([]models.GeoPoint, error) {
	listings, err := a.store.ActiveListings(city)
	if err != nil {
		return nil, fmt.Errorf("failed to load active listings: %w", err)
	}

	type coord struct{ lat, lon float64 }
	type acc struct {
		count int
		sum   float64
	}
	byCoord := make(map[coord]*acc)
	order := make([]coord, 0)
	for i := range listings {
		l := &listings[i]
		if !l.HasCoordinates() {
			continue
		}
		c := coord{lat: *l.Latitude, lon: *l.Longitude}
		bucket, ok := byCoord[c]
		if !ok {
			bucket = &acc{}
			byCoord[c] = bucket
			order = append(order, c)
		}
		bucket.count++
		bucket.sum += l.PricePerSqm()
	}

	points := make([]models.GeoPoint, 0, len(order))
	for _, c := range order {
		bucket := byCoord[c]
		points = append(points, models.GeoPoint{
			Latitude:    c.lat,
			Longitude:   c.lon,
			PricePerSqm: bucket.sum / float64(bucket.count),
		})
	}
	return points, nil
}
