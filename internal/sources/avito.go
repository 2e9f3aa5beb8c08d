package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

const avitoID = "avito"

var avitoSearch = map[models.City]string{
	models.CitySPB: "https://www.avito.ru/sankt-peterburg/kvartiry/prodam",
	models.CityMSK: "https://www.avito.ru/moskva/kvartiry/prodam",
	models.CityEKB: "https://www.avito.ru/ekaterinburg/kvartiry/prodam",
}

// areaInTitle matches the area fragment of card titles like
// "2-к. квартира, 45,6 м², 3/9 эт.".
var areaInTitle = regexp.MustCompile(`([\d]+(?:[.,]\d+)?)\s*м²`)

// Avito parses server-rendered search result cards. Cards carry a
// price, an area inside the title and a free address line; there are no
// coordinates and no structured district, so this source ranks lowest
// for district resolution and relies on geocoding for the map extract.
type Avito struct {
	fetcher  Fetcher
	logger   *logrus.Logger
	maxPages int
}

func NewAvito(fetcher Fetcher, logger *logrus.Logger, maxPages int) *Avito {
	return &Avito{fetcher: fetcher, logger: logger, maxPages: maxPages}
}

func (a *Avito) ID() string { return avitoID }

func (a *Avito) Fields() []string {
	return []string{"price", "area", "address"}
}

func (a *Avito) DistrictPriority() int { return 1 }

func (a *Avito) Fetch(ctx context.Context, city models.City) (Cursor, error) {
	searchURL, ok := avitoSearch[city]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrCityNotSupported, avitoID, city)
	}
	return &avitoCursor{adapter: a, searchURL: searchURL, page: 1}, nil
}

// avitoCursor yields one search page per Next call; a page without
// cards ends the stream.
type avitoCursor struct {
	adapter   *Avito
	searchURL string
	page      int
	done      bool
}

func (c *avitoCursor) Next(ctx context.Context) (*Document, error) {
	if c.done {
		return nil, ErrEndOfStream
	}
	if c.adapter.maxPages > 0 && c.page > c.adapter.maxPages {
		return nil, ErrEndOfStream
	}

	url := fmt.Sprintf("%s?p=%d", c.searchURL, c.page)
	body, err := c.adapter.fetcher.Get(ctx, avitoID, url)
	if err != nil {
		return nil, err
	}
	c.page++

	if !strings.Contains(string(body), `data-marker="item"`) {
		c.done = true
		return nil, ErrEndOfStream
	}
	return &Document{URL: url, Body: body}, nil
}

func (a *Avito) Parse(doc *Document) ([]models.RawRecord, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(string(doc.Body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page html: %w", err)
	}

	var records []models.RawRecord
	page.Find(`div[data-marker="item"]`).Each(func(_ int, card *goquery.Selection) {
		rec := models.RawRecord{SourceID: avitoID}

		rec.NativeID, _ = card.Attr("data-item-id")

		title := card.Find(`a[data-marker="item-title"]`)
		if href, ok := title.Attr("href"); ok {
			if strings.HasPrefix(href, "/") {
				href = "https://www.avito.ru" + href
			}
			rec.URL = href
		}
		if m := areaInTitle.FindStringSubmatch(title.Text()); m != nil {
			rec.AreaText = m[1]
		}

		rec.PriceText = strings.TrimSpace(card.Find(`span[data-marker="item-price"]`).First().Text())
		rec.Address = strings.TrimSpace(card.Find(`div[data-marker="item-address"]`).First().Text())

		if rec.NativeID == "" && rec.URL == "" && rec.PriceText == "" {
			// Not a listing card (promo blocks reuse the marker).
			a.logger.WithFields(logrus.Fields{
				"source":  avitoID,
				"url":     doc.URL,
				"snippet": snippet([]byte(card.Text())),
			}).Debug("Skipping non-listing card")
			return
		}
		records = append(records, rec)
	})

	if len(records) == 0 {
		return nil, fmt.Errorf("no listing cards found in %s", doc.URL)
	}
	return records, nil
}

var _ Adapter = (*Avito)(nil)
