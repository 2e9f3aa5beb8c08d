package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"kvartometr/server/internal/models"
)

const domofondID = "domofond"

// initialDataPrefix precedes the JSON payload embedded in every
// domofond listing page.
const initialDataPrefix = "window.__INITIAL_DATA__ = "

var domofondSearch = map[models.City]string{
	models.CitySPB: "https://www.domofond.ru/prodazha-kvartiry-sankt_peterburg-c3414",
	models.CityMSK: "https://www.domofond.ru/prodazha-kvartiry-moskva-c3584",
	models.CityEKB: "https://www.domofond.ru/prodazha-kvartiry-ekaterinburg-c2653",
}

// Domofond crawls domofond.ru: paginated search pages link to listing
// pages, each of which embeds a window.__INITIAL_DATA__ JSON payload
// with a structured administrative district, coordinates, area and
// price. That makes it the preferred district source.
type Domofond struct {
	fetcher  Fetcher
	logger   *logrus.Logger
	homepage string
	maxPages int
}

func NewDomofond(fetcher Fetcher, logger *logrus.Logger, maxPages int) *Domofond {
	return &Domofond{
		fetcher:  fetcher,
		logger:   logger,
		homepage: "https://www.domofond.ru",
		maxPages: maxPages,
	}
}

func (d *Domofond) ID() string { return domofondID }

func (d *Domofond) Fields() []string {
	return []string{"district", "price", "area", "latitude", "longitude"}
}

func (d *Domofond) DistrictPriority() int { return 3 }

func (d *Domofond) Fetch(ctx context.Context, city models.City) (Cursor, error) {
	searchURL, ok := domofondSearch[city]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrCityNotSupported, domofondID, city)
	}
	return &domofondCursor{adapter: d, city: city, searchURL: searchURL, page: 1}, nil
}

// domofondCursor walks search pages in order, queues the listing URLs
// found on each, and yields one listing page per Next call.
type domofondCursor struct {
	adapter   *Domofond
	city      models.City
	searchURL string
	page      int
	pending   []string
	done      bool
}

func (c *domofondCursor) Next(ctx context.Context) (*Document, error) {
	for len(c.pending) == 0 {
		if c.done {
			return nil, ErrEndOfStream
		}
		if c.adapter.maxPages > 0 && c.page > c.adapter.maxPages {
			return nil, ErrEndOfStream
		}

		pageURL := fmt.Sprintf("%s?Page=%d", c.searchURL, c.page)
		body, err := c.adapter.fetcher.Get(ctx, domofondID, pageURL)
		if err != nil {
			return nil, err
		}
		c.page++

		urls, err := c.adapter.listingURLs(body)
		if err != nil {
			c.adapter.logger.WithError(err).WithFields(logrus.Fields{
				"source": domofondID,
				"url":    pageURL,
			}).Warn("Failed to extract listing links from search page")
			continue
		}
		if len(urls) == 0 {
			c.done = true
			continue
		}
		c.pending = urls
	}

	url := c.pending[0]
	c.pending = c.pending[1:]

	body, err := c.adapter.fetcher.Get(ctx, domofondID, url)
	if err != nil {
		return nil, err
	}
	return &Document{URL: url, Body: body}, nil
}

func (d *Domofond) listingURLs(searchPage []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(searchPage)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page html: %w", err)
	}

	var urls []string
	doc.Find("div[class*='search-results__itemCardList'] a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = d.homepage + href
		}
		urls = append(urls, href)
	})
	return urls, nil
}

// domofondItem mirrors the slice of the embedded payload the pipeline
// needs. The payload is versioned by the site, so every field is
// optional here and validated downstream.
type domofondItem struct {
	ID       json.Number `json:"id"`
	District *struct {
		Name string `json:"name"`
	} `json:"district"`
	AdminDistrict *struct {
		Name string `json:"name"`
	} `json:"adminDistrict"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Area    *float64 `json:"floorAreaCalculated"`
	Price   *float64 `json:"priceValue"`
	Address string   `json:"address"`
}

func (d *Domofond) Parse(doc *Document) ([]models.RawRecord, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(string(doc.Body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing html: %w", err)
	}

	var payload string
	page.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(text, initialDataPrefix) {
			payload = strings.TrimSuffix(strings.TrimPrefix(text, initialDataPrefix), ";")
			return false
		}
		return true
	})
	if payload == "" {
		return nil, fmt.Errorf("initial data script not found in %s", doc.URL)
	}

	var initial struct {
		ItemState struct {
			Item *domofondItem `json:"item"`
		} `json:"itemState"`
	}
	if err := json.Unmarshal([]byte(payload), &initial); err != nil {
		return nil, fmt.Errorf("failed to decode initial data (%s): %w", snippet([]byte(payload)), err)
	}
	item := initial.ItemState.Item
	if item == nil {
		return nil, fmt.Errorf("initial data carries no item state in %s", doc.URL)
	}

	rec := models.RawRecord{
		SourceID: domofondID,
		NativeID: item.ID.String(),
		URL:      doc.URL,
		Address:  item.Address,
		Price:    item.Price,
		Area:     item.Area,
	}

	// Ekaterinburg pages expose "district", the other cities
	// "adminDistrict"; the first word is the district proper.
	switch {
	case item.AdminDistrict != nil && item.AdminDistrict.Name != "":
		rec.DistrictText = firstWord(item.AdminDistrict.Name)
	case item.District != nil && item.District.Name != "":
		rec.DistrictText = firstWord(item.District.Name)
	}

	if item.Location != nil {
		lat, lon := item.Location.Latitude, item.Location.Longitude
		rec.Latitude, rec.Longitude = &lat, &lon
	}

	return []models.RawRecord{rec}, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var _ Adapter = (*Domofond)(nil)
