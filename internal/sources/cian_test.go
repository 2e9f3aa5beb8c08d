package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvartometr/server/internal/models"
)

const cianFeedPage = `{"offersSerialized": [
	{
		"cianId": 9911,
		"totalArea": "45.6",
		"bargainTerms": {"priceRur": 8200000},
		"geo": {
			"coordinates": {"lat": 59.93, "lng": 30.31},
			"address": [
				{"fullName": "Санкт-Петербург", "geoType": "location"},
				{"fullName": "Невский район", "geoType": "district"},
				{"fullName": "Искровский проспект", "geoType": "street"}
			]
		},
		"fullUrl": "https://www.cian.ru/sale/flat/9911/"
	},
	{
		"cianId": 0,
		"totalArea": "38",
		"bargainTerms": {"priceRur": 0},
		"geo": {"address": []}
	}
]}`

func TestCian_ParseFeedPage(t *testing.T) {
	c := NewCian(&fakeFetcher{}, testLogger(), 0)

	records, err := c.Parse(&Document{URL: "u", Body: []byte(cianFeedPage)})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "cian", first.SourceID)
	assert.Equal(t, "9911", first.NativeID)
	assert.Equal(t, "45.6", first.AreaText)
	require.NotNil(t, first.Price)
	assert.Equal(t, 8200000.0, *first.Price)
	assert.Equal(t, "Санкт-Петербург, Невский район, Искровский проспект", first.Address)
	require.NotNil(t, first.Latitude)
	assert.Equal(t, 59.93, *first.Latitude)

	// Offer without a native id or price: passed through for the
	// normalizer to reject or key by content hash.
	second := records[1]
	assert.Empty(t, second.NativeID)
	assert.Nil(t, second.Price)
	assert.Empty(t, second.Address)
}

func TestCian_ParseMalformed(t *testing.T) {
	c := NewCian(&fakeFetcher{}, testLogger(), 0)
	records, err := c.Parse(&Document{URL: "u", Body: []byte("<html>blocked</html>")})
	assert.Error(t, err)
	assert.Empty(t, records)
}

func TestCian_CursorStopsOnEmptyPage(t *testing.T) {
	base := "https://api.cian.ru/search-offers-index/v1/offers"
	fetcher := &fakeFetcher{pages: map[string]string{
		base + "?deal_type=sale&offer_type=flat&region=2&page=1": cianFeedPage,
		base + "?deal_type=sale&offer_type=flat&region=2&page=2": `{"offersSerialized": []}`,
	}}

	c := NewCian(fetcher, testLogger(), 0)
	cursor, err := c.Fetch(context.Background(), models.CitySPB)
	require.NoError(t, err)

	doc, err := cursor.Next(context.Background())
	require.NoError(t, err)
	assert.Contains(t, doc.URL, "page=1")

	_, err = cursor.Next(context.Background())
	assert.Equal(t, ErrEndOfStream, err)
	_, err = cursor.Next(context.Background())
	assert.Equal(t, ErrEndOfStream, err)
}

func TestCian_NoFeedForEkaterinburg(t *testing.T) {
	c := NewCian(&fakeFetcher{}, testLogger(), 0)
	_, err := c.Fetch(context.Background(), models.CityEKB)
	assert.ErrorIs(t, err, ErrCityNotSupported)
}
