package normalize

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvartometr/server/internal/models"
)

func newNormalizer() *Normalizer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger)
}

func floatPtr(v float64) *float64 { return &v }

func TestNormalize_NumericFields(t *testing.T) {
	n := newNormalizer()
	now := time.Now()

	rec := models.RawRecord{
		SourceID: "domofond",
		Price:    floatPtr(12500000),
		Area:     floatPtr(54.3),
		Address:  "Тверская ул., 6",
		Latitude: floatPtr(55.76),
	}

	listing, err := n.Normalize(rec, models.CityMSK, now)
	require.NoError(t, err)
	assert.Equal(t, "msk", listing.City)
	assert.Equal(t, 12500000.0, listing.PriceRub)
	assert.Equal(t, 54.3, listing.AreaSqm)
	assert.Equal(t, "Тверская улица, 6", listing.RawAddress)
	assert.Equal(t, models.StatusActive, listing.Status)
	assert.Equal(t, now, listing.FirstSeenAt)
	assert.Equal(t, now, listing.LastSeenAt)
	assert.InDelta(t, 230202.57, listing.PricePerSqm(), 0.01)
}

func TestNormalize_TextFields(t *testing.T) {
	n := newNormalizer()

	rec := models.RawRecord{
		SourceID:  "avito",
		PriceText: "5 400 000 ₽",
		AreaText:  "45,6",
	}

	listing, err := n.Normalize(rec, models.CitySPB, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5400000.0, listing.PriceRub)
	assert.Equal(t, 45.6, listing.AreaSqm)
}

func TestNormalize_Rejections(t *testing.T) {
	n := newNormalizer()
	now := time.Now()

	tests := []struct {
		name   string
		rec    models.RawRecord
		reason models.RejectReason
	}{
		{"missing price", models.RawRecord{AreaText: "40"}, models.RejectMissingPrice},
		{"missing area", models.RawRecord{PriceText: "1 000 000"}, models.RejectMissingArea},
		{"non-numeric price", models.RawRecord{PriceText: "цена договорная", AreaText: "40"}, models.RejectNonNumericPrice},
		{"non-numeric area", models.RawRecord{PriceText: "1 000 000", AreaText: "сорок"}, models.RejectNonNumericArea},
		{"zero price", models.RawRecord{Price: floatPtr(0), AreaText: "40"}, models.RejectNonPositivePrice},
		{"negative price stays rejected", models.RawRecord{Price: floatPtr(-5000000), AreaText: "40"}, models.RejectNonPositivePrice},
		{"negative area text", models.RawRecord{PriceText: "1 000 000", AreaText: "-12"}, models.RejectNonPositiveArea},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := n.Normalize(tt.rec, models.CitySPB, now)
			assert.Nil(t, listing)
			var reject *RejectError
			require.ErrorAs(t, err, &reject)
			assert.Equal(t, tt.reason, reject.Reason)
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5 400 000 ₽", 5400000},
		{"5 400 000", 5400000},
		{"45,6 м²", 45.6},
		{"45.6", 45.6},
		{"8200000", 8200000},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "руб", "от ста", "--"} {
		_, err := ParseNumber(bad)
		assert.Error(t, err, bad)
	}
}

func TestCleanAddress(t *testing.T) {
	assert.Equal(t, "Невский проспект, 120", CleanAddress("Невский  пр-т, 120"))
	assert.Equal(t, "набережная реки Фонтанки", CleanAddress("наб. реки Фонтанки"))
	assert.Equal(t, "улица, 1", CleanAddress(" ул., 1 "))
	assert.Equal(t, "", CleanAddress("   "))
}
