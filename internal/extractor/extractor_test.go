package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Test Article</title></head>
<body>
<nav>Home | About | Contact</nav>
<article>
<h1>Test Article</h1>
<p>Readable paragraph one with enough words to look like real article body content
for the readability heuristics to keep it around during scoring.</p>
<p>Readable paragraph two, also long enough to stay in the extracted output and
carry the main content score over the surrounding boilerplate noise.</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

func TestReadabilityExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	page, err := NewReadability("newsbrief-test/1.0").Extract(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if !strings.Contains(page.Text, "Readable paragraph one") {
		t.Fatalf("expected article body in text, got %q", page.Text)
	}

	if strings.Contains(page.Text, "Home | About") {
		t.Fatalf("expected navigation stripped, got %q", page.Text)
	}
}

func TestReadabilityNon2xxIsExtractionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewReadability("newsbrief-test/1.0").Extract(context.Background(), srv.URL+"/gone")

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestReadabilityEmptyPageIsExtractionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	}))
	defer srv.Close()

	_, err := NewReadability("newsbrief-test/1.0").Extract(context.Background(), srv.URL)

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestRemoteExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("unexpected auth header %q", got)
		}

		if got := r.URL.Query().Get("url"); got != "https://example.com/post" {
			t.Errorf("unexpected target url %q", got)
		}

		w.Write([]byte(`{"data":{"title":"Remote Title","content":"remote body"}}`))
	}))
	defer srv.Close()

	page, err := NewRemote(srv.URL, "key123").Extract(context.Background(), "https://example.com/post")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if page.Title != "Remote Title" || page.Text != "remote body" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestRemoteEmptyContentIsExtractionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"title":"","content":""}}`))
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, "").Extract(context.Background(), "https://example.com/post")

	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}
