// Package districts resolves a listing's municipal district from the
// information a source provides, in decreasing order of trust:
// structured district text, free address, coordinates.
package districts

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"kvartometr/server/internal/models"
)

// noise words stripped from structured district text before matching.
var noiseWords = map[string]struct{}{
	"район":            {},
	"округ":            {},
	"административный": {},
	"ао":               {},
	"р-н":              {},
}

type boundary struct {
	district string
	geometry orb.Geometry
}

// Resolver holds the immutable per-city name tables and optional
// boundary geometry. It is built once per process and shared read-only
// across source workers.
type Resolver struct {
	logger     *logrus.Logger
	lower      cases.Caser
	variants   map[models.City][]entry
	boundaries map[models.City][]boundary
}

func NewResolver(logger *logrus.Logger, geometries map[models.City]*geojson.FeatureCollection) *Resolver {
	r := &Resolver{
		logger:     logger,
		lower:      cases.Lower(language.Russian),
		variants:   make(map[models.City][]entry),
		boundaries: make(map[models.City][]boundary),
	}

	for city, entries := range registry {
		folded := make([]entry, len(entries))
		for i, e := range entries {
			fe := entry{Name: e.Name, Variants: []string{r.fold(e.Name)}}
			for _, v := range e.Variants {
				fe.Variants = append(fe.Variants, r.fold(v))
			}
			folded[i] = fe
		}
		r.variants[city] = folded
	}

	for city, fc := range geometries {
		known := make(map[string]struct{})
		for _, name := range KnownDistricts(city) {
			known[name] = struct{}{}
		}
		for _, feature := range fc.Features {
			name, ok := feature.Properties["district"].(string)
			if !ok {
				logger.WithField("city", city).Warn("Boundary feature without district property, skipping")
				continue
			}
			if _, ok := known[name]; !ok {
				logger.WithFields(logrus.Fields{
					"city":     city,
					"district": name,
				}).Warn("Boundary feature for unknown district, skipping")
				continue
			}
			r.boundaries[city] = append(r.boundaries[city], boundary{
				district: name,
				geometry: feature.Geometry,
			})
		}
	}

	return r
}

// Resolve returns the canonical district name for a listing, or the
// unresolved sentinel when every strategy misses. Strategies run in
// fixed preference order; structured district text always wins over
// contradicting coordinates.
func (r *Resolver) Resolve(city models.City, districtText, address string, lat, lon *float64) string {
	if name, ok := r.matchDistrictText(city, districtText); ok {
		return name
	}
	if name, ok := r.matchAddress(city, address); ok {
		return name
	}
	if name, ok := r.matchPoint(city, lat, lon); ok {
		return name
	}
	return models.DistrictUnresolved
}

func (r *Resolver) matchDistrictText(city models.City, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	var kept []string
	for _, word := range strings.Fields(r.fold(text)) {
		if _, noise := noiseWords[word]; !noise {
			kept = append(kept, word)
		}
	}
	folded := strings.Join(kept, " ")
	if folded == "" {
		return "", false
	}

	for _, e := range r.variants[city] {
		for _, v := range e.Variants {
			if folded == v {
				return e.Name, true
			}
		}
	}
	return "", false
}

func (r *Resolver) matchAddress(city models.City, address string) (string, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", false
	}
	folded := r.fold(address)

	for _, e := range r.variants[city] {
		for _, v := range e.Variants {
			if strings.Contains(folded, v) {
				return e.Name, true
			}
		}
	}
	return "", false
}

func (r *Resolver) matchPoint(city models.City, lat, lon *float64) (string, bool) {
	if lat == nil || lon == nil {
		return "", false
	}
	point := orb.Point{*lon, *lat}

	for _, b := range r.boundaries[city] {
		switch g := b.geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, point) {
				return b.district, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, point) {
				return b.district, true
			}
		}
	}
	return "", false
}

// fold lowercases with Russian rules and collapses ё into е, which the
// sources use interchangeably.
func (r *Resolver) fold(s string) string {
	return strings.ReplaceAll(r.lower.String(s), "ё", "е")
}
