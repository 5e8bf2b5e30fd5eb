package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsbrief/internal/model"
)

const rssSample = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Sample Feed</title>
    <link>https://example.com</link>
    <description>Desc</description>
    <item>
      <title>With Date</title>
      <link>https://example.com/1</link>
      <category>go</category>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <description>first</description>
    </item>
    <item>
      <title>Without Date</title>
      <link>https://example.com/2</link>
      <description>second</description>
    </item>
  </channel>
</rss>`

func testFeed(url string) model.Feed {
	return model.Feed{ID: 1, URL: url}
}

func TestFetchParsesItems(t *testing.T) {
	var gotAgent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(rssSample))
	}))
	defer srv.Close()

	src := NewRSSSourceFromFeed(testFeed(srv.URL), 2*time.Second, "newsbrief-test/1.0")

	parsed, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if gotAgent != "newsbrief-test/1.0" {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}

	if parsed.Title != "Sample Feed" || len(parsed.Items) != 2 {
		t.Fatalf("unexpected feed: %+v", parsed)
	}

	first := parsed.Items[0]
	if first.Link != "https://example.com/1" || first.Date.IsZero() {
		t.Fatalf("unexpected first item: %+v", first)
	}

	if len(first.Categories) != 1 || first.Categories[0] != "go" {
		t.Fatalf("unexpected categories: %v", first.Categories)
	}

	if !parsed.Items[1].Date.IsZero() {
		t.Fatalf("expected zero date for item without pubDate, got %v", parsed.Items[1].Date)
	}
}

func TestFetchNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewRSSSourceFromFeed(testFeed(srv.URL), 2*time.Second, "newsbrief-test/1.0")

	_, err := src.Fetch(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}

	if fetchErr.Status != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", fetchErr.Status)
	}
}

func TestFetchUnreachableIsFetchError(t *testing.T) {
	src := NewRSSSourceFromFeed(testFeed("http://127.0.0.1:1"), 500*time.Millisecond, "newsbrief-test/1.0")

	_, err := src.Fetch(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestFetchMalformedIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>not a feed</body></html>`))
	}))
	defer srv.Close()

	src := NewRSSSourceFromFeed(testFeed(srv.URL), 2*time.Second, "newsbrief-test/1.0")

	_, err := src.Fetch(context.Background())

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
