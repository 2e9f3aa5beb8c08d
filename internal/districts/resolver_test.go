package districts

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"kvartometr/server/internal/models"
)

func newResolver(geometries map[models.City]*geojson.FeatureCollection) *Resolver {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewResolver(logger, geometries)
}

func spbTestBoundaries() map[models.City]*geojson.FeatureCollection {
	// A crude square around the city centre, tagged as Центральный.
	ring := orb.Ring{
		{30.25, 59.90}, {30.40, 59.90}, {30.40, 59.97}, {30.25, 59.97}, {30.25, 59.90},
	}
	feature := geojson.NewFeature(orb.Polygon{ring})
	feature.Properties = geojson.Properties{"district": "Центральный"}

	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	return map[models.City]*geojson.FeatureCollection{models.CitySPB: fc}
}

func TestResolve_StructuredTextVariants(t *testing.T) {
	r := newResolver(nil)

	tests := []struct {
		city models.City
		text string
		want string
	}{
		{models.CitySPB, "Центральный", "Центральный"},
		{models.CitySPB, "центральный район", "Центральный"},
		{models.CitySPB, "ЦЕНТРАЛЬНЫЙ", "Центральный"},
		{models.CityMSK, "Центральный административный округ", "Центральный"},
		{models.CityMSK, "СВАО", "Северо-Восточный"},
		{models.CityEKB, "Чкаловский", "Чкаловский"},
		{models.CityEKB, "Орджоникидзевский р-н", "Орджоникидзевский"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Resolve(tt.city, tt.text, "", nil, nil), tt.text)
	}
}

func TestResolve_TextBeatsContradictingCoordinates(t *testing.T) {
	r := newResolver(spbTestBoundaries())

	// Coordinates are far outside the Центральный square, but the
	// structured text wins by preference order.
	lat, lon := 60.05, 30.7
	got := r.Resolve(models.CitySPB, "Центральный", "какой-то адрес", &lat, &lon)
	assert.Equal(t, "Центральный", got)
}

func TestResolve_AddressSubstring(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(models.CitySPB, "", "Санкт-Петербург, Невский район, Искровский проспект", nil, nil)
	assert.Equal(t, "Невский", got)

	got = r.Resolve(models.CityMSK, "", "Москва, ЮЗАО, улица Вавилова", nil, nil)
	assert.Equal(t, "Юго-Западный", got)
}

func TestResolve_PointInPolygonFallback(t *testing.T) {
	r := newResolver(spbTestBoundaries())

	lat, lon := 59.93, 30.31
	got := r.Resolve(models.CitySPB, "", "адрес без района", &lat, &lon)
	assert.Equal(t, "Центральный", got)

	// Outside every boundary.
	lat, lon = 59.80, 30.10
	got = r.Resolve(models.CitySPB, "", "", &lat, &lon)
	assert.Equal(t, models.DistrictUnresolved, got)
}

func TestResolve_UnresolvedSentinel(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(models.CitySPB, "Новая Голландия", "территория без названия района", nil, nil)
	assert.Equal(t, models.DistrictUnresolved, got)

	// Unknown city has no table at all.
	got = r.Resolve(models.City("nsk"), "Центральный", "", nil, nil)
	assert.Equal(t, models.DistrictUnresolved, got)
}

func TestResolve_YoFolding(t *testing.T) {
	r := newResolver(nil)
	// ё in the source text matches е in the canonical name.
	got := r.Resolve(models.CitySPB, "АдмиралтЁйский", "", nil, nil)
	assert.Equal(t, "Адмиралтейский", got)
}

func TestKnownDistricts(t *testing.T) {
	assert.Len(t, KnownDistricts(models.CitySPB), 18)
	assert.Len(t, KnownDistricts(models.CityMSK), 12)
	assert.Len(t, KnownDistricts(models.CityEKB), 7)
	assert.Empty(t, KnownDistricts(models.City("nsk")))
}
