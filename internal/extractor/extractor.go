package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newsbrief/internal/model"

	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout = 10 * time.Second
	maxPageBytes = 5 << 20
)

// ExtractionError reports that an article page was unreachable or had
// no machine-readable main content.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("extract %s: %v", e.URL, e.Err) }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns an article URL into readable text with boilerplate
// stripped. Failures are per-item; callers skip and continue.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (model.PageText, error)
}

// Readability fetches pages directly and runs a local readability pass.
type Readability struct {
	client *http.Client
	agent  string
}

func NewReadability(userAgent string) *Readability {
	return &Readability{
		client: &http.Client{Timeout: fetchTimeout},
		agent:  userAgent,
	}
}

func (r *Readability) Extract(ctx context.Context, pageURL string) (model.PageText, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}

	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsed)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: errors.New("no readable content")}
	}

	return model.PageText{Title: article.Title, Text: text}, nil
}

// Remote delegates extraction to an external readability service:
// GET {endpoint}?url=... returning {"data": {"title", "content"}}.
type Remote struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewRemote(endpoint, apiKey string) *Remote {
	return &Remote{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: fetchTimeout},
	}
}

func (r *Remote) Extract(ctx context.Context, pageURL string) (model.PageText, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?url="+url.QueryEscape(pageURL), nil)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}

	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload struct {
		Data struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: err}
	}

	text := strings.TrimSpace(payload.Data.Content)
	if text == "" {
		return model.PageText{}, &ExtractionError{URL: pageURL, Err: errors.New("empty extraction result")}
	}

	return model.PageText{Title: payload.Data.Title, Text: text}, nil
}
