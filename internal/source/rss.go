package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"newsbrief/internal/model"

	"github.com/SlyMarbo/rss"
	"github.com/samber/lo"
)

// Feed payloads larger than this are cut off before parsing.
const maxFeedBytes = 10 << 20

// FetchError reports a network-level failure loading a feed URL:
// a dial/timeout error or a non-2xx response.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}

	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a payload that is not a well-formed RSS or Atom feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// RSSSource fetches and parses one feed URL.
type RSSSource struct {
	feedID int64
	url    string
	client *http.Client
	agent  string
}

func NewRSSSourceFromFeed(feed model.Feed, timeout time.Duration, userAgent string) *RSSSource {
	return &RSSSource{
		feedID: feed.ID,
		url:    feed.URL,
		client: &http.Client{Timeout: timeout},
		agent:  userAgent,
	}
}

func (s *RSSSource) ID() int64 { return s.feedID }

func (s *RSSSource) URL() string { return s.url }

// Fetch loads the feed and returns its channel metadata and items.
// Items keep a zero Date when the feed omits pubDate or the value
// does not parse; the caller decides the fallback.
func (s *RSSSource) Fetch(ctx context.Context) (model.ParsedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.ParsedFeed{}, &FetchError{URL: s.url, Err: err}
	}

	req.Header.Set("User-Agent", s.agent)

	resp, err := s.client.Do(req)
	if err != nil {
		return model.ParsedFeed{}, &FetchError{URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.ParsedFeed{}, &FetchError{URL: s.url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return model.ParsedFeed{}, &FetchError{URL: s.url, Err: err}
	}

	feed, err := rss.Parse(body)
	if err != nil {
		return model.ParsedFeed{}, &ParseError{URL: s.url, Err: err}
	}

	items := lo.Map(feed.Items, func(item *rss.Item, _ int) model.Item {
		out := model.Item{
			Title:      item.Title,
			Categories: item.Categories,
			Link:       item.Link,
			Summary:    item.Summary,
		}

		if item.DateValid {
			out.Date = item.Date
		}

		return out
	})

	return model.ParsedFeed{
		Title: feed.Title,
		Link:  feed.Link,
		Items: items,
	}, nil
}
