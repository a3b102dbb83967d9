// Package source turns the upstream publication surfaces into lazy streams
// of metadata records plus on-demand detail fetches.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/redive-tools/newswatch/pkg/models"
)

// Detail is the full content of one item, fetched on demand. Body is the
// detail DOM handed to the normalization transform; it is never persisted
// directly. ImageURL is only set by the cartoon source.
type Detail struct {
	Title      string
	Body       *html.Node
	CreateTime *time.Time
	ImageURL   string
	Extra      map[string]string
}

// Iterator is a pull-based stream of metadata in upstream listing order
// (newest first). The next page is fetched only when the current page is
// drained, so memory stays bounded by one page.
//
// After an error, or after the listing ends, Next keeps returning
// ok == false with a nil error. No partial item is ever emitted.
type Iterator interface {
	Next(ctx context.Context) (models.Metadata, bool, error)
}

// Source is one upstream surface.
type Source interface {
	// Name is the registry/schedule key ("announce-P1", "news", "cartoon").
	Name() string
	// Kind identifies records from this source in persistence.
	Kind() models.SourceKind
	// Stream starts a fresh listing enumeration.
	Stream(ctx context.Context) Iterator
	// DetailURL is the canonical public URL of one item.
	DetailURL(id int32) string
	// FetchDetail loads the full content behind a metadata record.
	FetchDetail(ctx context.Context, m models.Metadata) (*Detail, error)
}

// upstreamZone is the wall clock the operator publishes timestamps in; all
// parsed times convert to UTC before leaving this package.
var upstreamZone = time.FixedZone("UTC+8", 8*60*60)

// pageFunc fetches one page worth of metadata. cursor is source-specific
// (offset or page number); the returned next cursor is passed to the
// following call. more == false ends the stream after the returned items.
type pageFunc func(ctx context.Context, cursor int) (items []models.Metadata, next int, more bool, err error)

// pagedIterator adapts a pageFunc into an Iterator with one-page buffering
// and terminal-error semantics.
type pagedIterator struct {
	fetch  pageFunc
	cursor int
	buf    []models.Metadata
	more   bool
	done   bool
}

func newPagedIterator(start int, fetch pageFunc) *pagedIterator {
	return &pagedIterator{fetch: fetch, cursor: start, more: true}
}

func (it *pagedIterator) Next(ctx context.Context) (models.Metadata, bool, error) {
	if it.done {
		return models.Metadata{}, false, nil
	}
	for len(it.buf) == 0 {
		if !it.more {
			it.done = true
			return models.Metadata{}, false, nil
		}
		items, next, more, err := it.fetch(ctx, it.cursor)
		if err != nil {
			it.done = true
			return models.Metadata{}, false, err
		}
		if len(items) == 0 {
			// An empty page ends the stream even when the upstream claims
			// more; trusting the claim would refetch forever within one tick.
			it.done = true
			return models.Metadata{}, false, nil
		}
		it.cursor = next
		it.more = more
		it.buf = items
	}
	m := it.buf[0]
	it.buf = it.buf[1:]
	return m, true, nil
}

// getJSON fetches url and decodes the JSON body into target.
func getJSON(ctx context.Context, client *http.Client, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned HTTP %d for %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// getDoc fetches url and parses the HTML body.
func getDoc(ctx context.Context, client *http.Client, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("upstream returned HTTP %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}
