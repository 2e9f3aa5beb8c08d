package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

const cianID = "cian"

// cian region ids for the supported cities. Ekaterinburg has no
// configured feed, which the city registry reflects.
var cianRegions = map[models.City]int{
	models.CitySPB: 2,
	models.CityMSK: 1,
}

// Cian consumes the JSON offers feed. Offers carry the price in RUB,
// the total area as a decimal string and a free-text address chain;
// coordinates are present on most offers. No structured district field
// exists, so resolution goes through the address.
type Cian struct {
	fetcher  Fetcher
	logger   *logrus.Logger
	baseURL  string
	maxPages int
}

func NewCian(fetcher Fetcher, logger *logrus.Logger, maxPages int) *Cian {
	return &Cian{
		fetcher:  fetcher,
		logger:   logger,
		baseURL:  "https://api.cian.ru/search-offers-index/v1/offers",
		maxPages: maxPages,
	}
}

func (c *Cian) ID() string { return cianID }

func (c *Cian) Fields() []string {
	return []string{"price", "area", "address", "latitude", "longitude"}
}

func (c *Cian) DistrictPriority() int { return 2 }

func (c *Cian) Fetch(ctx context.Context, city models.City) (Cursor, error) {
	region, ok := cianRegions[city]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrCityNotSupported, cianID, city)
	}
	return &cianCursor{adapter: c, region: region, page: 1}, nil
}

// cianCursor yields one feed page per Next call; an empty page ends the
// stream.
type cianCursor struct {
	adapter *Cian
	region  int
	page    int
	done    bool
}

func (c *cianCursor) Next(ctx context.Context) (*Document, error) {
	if c.done {
		return nil, ErrEndOfStream
	}
	if c.adapter.maxPages > 0 && c.page > c.adapter.maxPages {
		return nil, ErrEndOfStream
	}

	url := fmt.Sprintf("%s?deal_type=sale&offer_type=flat&region=%d&page=%d",
		c.adapter.baseURL, c.region, c.page)
	body, err := c.adapter.fetcher.Get(ctx, cianID, url)
	if err != nil {
		return nil, err
	}
	c.page++

	// Peek at the offer count so an empty trailing page terminates the
	// stream without being handed to the parser.
	var probe cianResponse
	if err := json.Unmarshal(body, &probe); err == nil && len(probe.OffersSerialized) == 0 {
		c.done = true
		return nil, ErrEndOfStream
	}

	return &Document{URL: url, Body: body}, nil
}

type cianResponse struct {
	OffersSerialized []cianOffer `json:"offersSerialized"`
}

type cianOffer struct {
	CianID       int64  `json:"cianId"`
	TotalArea    string `json:"totalArea"`
	BargainTerms struct {
		PriceRur float64 `json:"priceRur"`
	} `json:"bargainTerms"`
	Geo struct {
		Coordinates *struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"coordinates"`
		Address []struct {
			FullName string `json:"fullName"`
			GeoType  string `json:"geoType"`
		} `json:"address"`
	} `json:"geo"`
	FullURL string `json:"fullUrl"`
}

func (c *Cian) Parse(doc *Document) ([]models.RawRecord, error) {
	var resp cianResponse
	if err := json.Unmarshal(doc.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode offers feed (%s): %w", snippet(doc.Body), err)
	}

	records := make([]models.RawRecord, 0, len(resp.OffersSerialized))
	for _, offer := range resp.OffersSerialized {
		rec := models.RawRecord{
			SourceID: cianID,
			NativeID: strconv.FormatInt(offer.CianID, 10),
			URL:      offer.FullURL,
			AreaText: offer.TotalArea,
		}
		if offer.CianID == 0 {
			rec.NativeID = ""
		}
		if offer.BargainTerms.PriceRur > 0 {
			price := offer.BargainTerms.PriceRur
			rec.Price = &price
		}
		if offer.Geo.Coordinates != nil {
			lat, lon := offer.Geo.Coordinates.Lat, offer.Geo.Coordinates.Lng
			rec.Latitude, rec.Longitude = &lat, &lon
		}
		rec.Address = joinAddress(offer)
		records = append(records, rec)
	}
	return records, nil
}

func joinAddress(offer cianOffer) string {
	var parts []string
	for _, a := range offer.Geo.Address {
		if a.FullName != "" {
			parts = append(parts, a.FullName)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	addr := parts[0]
	for _, p := range parts[1:] {
		addr += ", " + p
	}
	return addr
}

var _ Adapter = (*Cian)(nil)
