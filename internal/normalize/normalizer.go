// Package normalize maps per-source raw records into canonical listing
// candidates, rejecting anything that cannot yield a valid positive
// price and area.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

// RejectError classifies why a raw record was not normalizable.
type RejectError struct {
	Reason models.RejectReason
	Field  string
	Raw    string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("record rejected (%s): field %s, raw %q", e.Reason, e.Field, e.Raw)
}

// abbreviations expanded in cleaned addresses, longest form first so
// "пр-т." is not half-matched by "пр.".
var abbreviations = []struct{ short, full string }{
	{"ул.", "улица"},
	{"пр-т", "проспект"},
	{"пр-кт", "проспект"},
	{"просп.", "проспект"},
	{"пер.", "переулок"},
	{"наб.", "набережная"},
	{"б-р", "бульвар"},
	{"ш.", "шоссе"},
	{"пл.", "площадь"},
}

type Normalizer struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts a raw record into a listing candidate. District
// and identity key are assigned by later stages; status and seen
// timestamps are initialized here and reconciled by the deduplicator.
func (n *Normalizer) Normalize(rec models.RawRecord, city models.City, now time.Time) (*models.Listing, error) {
	price, err := n.numeric(rec.Price, rec.PriceText, "price",
		models.RejectMissingPrice, models.RejectNonNumericPrice, models.RejectNonPositivePrice)
	if err != nil {
		return nil, err
	}
	area, err := n.numeric(rec.Area, rec.AreaText, "area",
		models.RejectMissingArea, models.RejectNonNumericArea, models.RejectNonPositiveArea)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		City:        string(city),
		PriceRub:    price,
		AreaSqm:     area,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		RawAddress:  CleanAddress(rec.Address),
		URL:         rec.URL,
		SourceID:    rec.SourceID,
		Status:      models.StatusActive,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return listing, nil
}

// numeric resolves a value that sources deliver either as JSON numbers
// or as locale-formatted text. Invalid values are rejected, never
// coerced: a negative price stays a rejection, not an abs().
func (n *Normalizer) numeric(value *float64, text, field string,
	missing, nonNumeric, nonPositive models.RejectReason) (float64, error) {

	var v float64
	switch {
	case value != nil:
		v = *value
	case strings.TrimSpace(text) != "":
		parsed, err := ParseNumber(text)
		if err != nil {
			return 0, &RejectError{Reason: nonNumeric, Field: field, Raw: text}
		}
		v = parsed
	default:
		return 0, &RejectError{Reason: missing, Field: field}
	}

	if v <= 0 {
		raw := text
		if value != nil {
			raw = strconv.FormatFloat(*value, 'f', -1, 64)
		}
		return 0, &RejectError{Reason: nonPositive, Field: field, Raw: raw}
	}
	return v, nil
}

// ParseNumber reads a locale-formatted numeric string: regular, narrow
// and non-breaking spaces as group separators, comma or dot decimals,
// currency and unit suffixes ignored.
func ParseNumber(text string) (float64, error) {
	var b strings.Builder
	seenDigit := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune('.')
		case r == ' ' || r == ' ' || r == ' ':
			// group separator
		case r == '-' && !seenDigit && b.Len() == 0:
			b.WriteRune(r)
		default:
			if seenDigit {
				// trailing unit or currency marker: stop here
				return parseCleaned(b.String())
			}
			return 0, fmt.Errorf("unparseable numeric text: %q", text)
		}
	}
	return parseCleaned(b.String())
}

func parseCleaned(s string) (float64, error) {
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty numeric text")
	}
	return strconv.ParseFloat(s, 64)
}

// CleanAddress collapses whitespace and expands street-type
// abbreviations so district matching sees consistent input.
func CleanAddress(address string) string {
	fields := strings.Fields(address)
	for i, f := range fields {
		lower := strings.ToLower(f)
		trailing := strings.HasSuffix(f, ",")
		lookup := strings.TrimSuffix(lower, ",")
		for _, abbr := range abbreviations {
			if lookup == abbr.short {
				if trailing {
					fields[i] = abbr.full + ","
				} else {
					fields[i] = abbr.full
				}
				break
			}
		}
	}
	return strings.Join(fields, " ")
}
