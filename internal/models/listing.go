package models

import (
	"fmt"
	"time"
)

// City identifies one of the supported cities.
type City string

const (
	CitySPB City = "spb"
	CityMSK City = "msk"
	CityEKB City = "ekb"
)

// ParseCity validates a city code coming from the API or scheduler.
func ParseCity(code string) (City, error) {
	switch City(code) {
	case CitySPB, CityMSK, CityEKB:
		return City(code), nil
	}
	return "", fmt.Errorf("unknown city code: %q", code)
}

const (
	StatusActive = "active"
	StatusStale  = "stale"
)

// DistrictUnresolved is stored when no resolution strategy succeeded.
// It is never a valid district name in any city's registry.
const DistrictUnresolved = "unresolved"

// Listing is the canonical, durable record of one apartment offer.
type Listing struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IdentityKey string    `gorm:"column:identity_key;uniqueIndex" json:"identity_key"`
	City        string    `gorm:"column:city;index" json:"city"`
	District    string    `gorm:"column:district" json:"district"`
	PriceRub    float64   `gorm:"column:price_rub" json:"price_rub"`
	AreaSqm     float64   `gorm:"column:area_sqm" json:"area_sqm"`
	Latitude    *float64  `gorm:"column:latitude" json:"latitude"`
	Longitude   *float64  `gorm:"column:longitude" json:"longitude"`
	RawAddress  string    `gorm:"column:raw_address" json:"raw_address"`
	URL         string    `gorm:"column:url" json:"url"`
	SourceID    string    `gorm:"column:source_id;index" json:"source_id"`
	Status      string    `gorm:"column:status;index" json:"status"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
}

func (Listing) TableName() string {
	return "listings"
}

// PricePerSqm is always derived so it can never go stale relative to
// price and area.
func (l *Listing) PricePerSqm() float64 {
	if l.AreaSqm <= 0 {
		return 0
	}
	return l.PriceRub / l.AreaSqm
}

// HasCoordinates reports whether both coordinates are present.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// RawRecord is the loosely-typed output of an adapter's parse step.
// It lives only between parsing and normalization within one run.
// Sources that expose numeric JSON fill Price/Area; HTML sources fill
// the text variants and leave the numeric pointers nil.
type RawRecord struct {
	SourceID     string
	NativeID     string
	URL          string
	DistrictText string
	Address      string
	Price        *float64
	PriceText    string
	Area         *float64
	AreaText     string
	Latitude     *float64
	Longitude    *float64
}

// DistrictAggregate is one row of the per-district statistics, derived
// fresh from ACTIVE listings on every aggregation request. District is
// either a canonical district name or the DistrictUnresolved sentinel
// collecting the city's unlocated listings.
type DistrictAggregate struct {
	City           string  `json:"city"`
	District       string  `json:"district"`
	ListingCount   int     `json:"listing_count"`
	AvgPricePerSqm float64 `json:"avg_price_per_sqm"`
	AvgAreaSqm     float64 `json:"avg_area_sqm"`
}

// GeoPoint is one row of the map extract: a unique coordinate pair and
// the mean price per square meter observed there.
type GeoPoint struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PricePerSqm float64 `json:"price_per_sqm"`
}
