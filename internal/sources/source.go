// Package sources holds one adapter per listing site. All site-specific
// wire formats (HTML structure, embedded or plain JSON) stay behind the
// Adapter seam so the rest of the pipeline never branches on source
// identity.
package sources

import (
	"context"
	"errors"

	"kvartometr/server/internal/models"
)

// ErrEndOfStream is returned by a Cursor when the crawl for the city is
// exhausted.
var ErrEndOfStream = errors.New("end of document stream")

// ErrCityNotSupported is returned by Fetch when the adapter has no
// search endpoint configured for the city.
var ErrCityNotSupported = errors.New("city not supported by source")

// Document is one raw page or API response produced by a fetch.
type Document struct {
	URL  string
	Body []byte
}

// Cursor lazily yields documents page by page, so a crawl advances one
// fetch unit at a time and a fetch-unit failure surfaces individually.
type Cursor interface {
	Next(ctx context.Context) (*Document, error)
}

// Fetcher is the slice of the rate/retry controller the adapters use.
type Fetcher interface {
	Get(ctx context.Context, sourceID, url string) ([]byte, error)
}

// Adapter is the fixed capability interface of one listing site.
type Adapter interface {
	// ID is the stable source identifier used in identity keys and the
	// run summary.
	ID() string

	// Fields lists the canonical fields this source can populate.
	Fields() []string

	// DistrictPriority ranks the source's district information for the
	// resolver: higher means more trustworthy (structured district text
	// beats free addresses beats coordinates-only).
	DistrictPriority() int

	// Fetch starts a lazy crawl of the city.
	Fetch(ctx context.Context, city models.City) (Cursor, error)

	// Parse extracts raw records from one document. A malformed
	// document yields zero records and an error describing what broke;
	// it never aborts the cursor.
	Parse(doc *Document) ([]models.RawRecord, error)
}

// Registry maps source ids to adapters.
type Registry map[string]Adapter

// NewRegistry builds a registry from adapters, keyed by ID.
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.ID()] = a
	}
	return r
}

func snippet(body []byte) string {
	const limit = 120
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
