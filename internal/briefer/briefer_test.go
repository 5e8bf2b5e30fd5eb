package briefer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"newsbrief/internal/model"
)

type fakeUsers struct {
	users []model.Preferences
}

func (f fakeUsers) Onboarded(ctx context.Context) ([]model.Preferences, error) {
	return f.users, nil
}

type fakeItems struct {
	mu      sync.Mutex
	items   []model.FeedItem
	briefed map[int64]bool
}

func (f *fakeItems) Unbriefed(ctx context.Context, userID int64, since time.Time) ([]model.FeedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.FeedItem
	for _, item := range f.items {
		if !f.briefed[item.ID] && !item.PublishedAt.Before(since) {
			out = append(out, item)
		}
	}

	return out, nil
}

type fakeBriefs struct {
	mu     sync.Mutex
	stored []model.BriefItem
	items  *fakeItems
}

func (f *fakeBriefs) Store(ctx context.Context, brief model.BriefItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stored = append(f.stored, brief)

	if f.items != nil {
		f.items.mu.Lock()
		f.items.briefed[brief.ItemID] = true
		f.items.mu.Unlock()
	}

	return nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	delay    time.Duration
	failFor  map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, pageURL string) (model.PageText, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	fail := f.failFor[pageURL]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return model.PageText{}, errors.New("not machine readable")
	}

	return model.PageText{Title: "Extracted " + pageURL, Text: "body of " + pageURL}, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	styles  []model.Style
	failFor map[string]bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, style model.Style, lang string) (string, string, error) {
	f.mu.Lock()
	f.styles = append(f.styles, style)
	f.mu.Unlock()

	for link := range f.failFor {
		if text == "body of "+link {
			return "", "", errors.New("model unavailable")
		}
	}

	if lang != "" {
		return "summary of " + text, "translated " + text, nil
	}

	return "summary of " + text, "", nil
}

func testItems(now time.Time, links ...string) []model.FeedItem {
	var out []model.FeedItem
	for i, link := range links {
		out = append(out, model.FeedItem{
			ID:          int64(i + 1),
			FeedID:      1,
			Title:       link,
			Link:        link,
			PublishedAt: now.Add(-time.Hour),
		})
	}

	return out
}

func newTestBriefer(items *fakeItems, briefs *fakeBriefs, ex Extractor, sum Summarizer, concurrency int) *Briefer {
	users := fakeUsers{users: []model.Preferences{model.DefaultPreferences(1)}}

	return New(users, items, briefs, ex, sum, time.Hour, 7*24*time.Hour, concurrency)
}

func TestCompileForUserBriefsEveryItem(t *testing.T) {
	now := time.Now().UTC()

	items := &fakeItems{items: testItems(now, "https://example.com/a", "https://example.com/b"), briefed: map[int64]bool{}}
	briefs := &fakeBriefs{items: items}
	ex := &fakeExtractor{}
	sum := &fakeSummarizer{}

	b := newTestBriefer(items, briefs, ex, sum, 5)

	done, err := b.CompileForUser(context.Background(), model.DefaultPreferences(1))
	if err != nil {
		t.Fatalf("CompileForUser error: %v", err)
	}

	if len(done) != 2 || len(briefs.stored) != 2 {
		t.Fatalf("expected 2 briefs, got %d returned / %d stored", len(done), len(briefs.stored))
	}

	if briefs.stored[0].Summary == "" || briefs.stored[0].Title == "" {
		t.Fatalf("brief missing content: %+v", briefs.stored[0])
	}
}

func TestCompileTwiceIsIdempotent(t *testing.T) {
	now := time.Now().UTC()

	items := &fakeItems{items: testItems(now, "https://example.com/a", "https://example.com/b"), briefed: map[int64]bool{}}
	briefs := &fakeBriefs{items: items}

	b := newTestBriefer(items, briefs, &fakeExtractor{}, &fakeSummarizer{}, 5)

	prefs := model.DefaultPreferences(1)

	if _, err := b.CompileForUser(context.Background(), prefs); err != nil {
		t.Fatalf("first CompileForUser error: %v", err)
	}

	second, err := b.CompileForUser(context.Background(), prefs)
	if err != nil {
		t.Fatalf("second CompileForUser error: %v", err)
	}

	if len(second) != 0 || len(briefs.stored) != 2 {
		t.Fatalf("expected no new briefs on repeat run, got %d new / %d total", len(second), len(briefs.stored))
	}
}

func TestFailedItemIsSkippedNotFatal(t *testing.T) {
	now := time.Now().UTC()

	items := &fakeItems{
		items:   testItems(now, "https://example.com/a", "https://example.com/b", "https://example.com/c"),
		briefed: map[int64]bool{},
	}
	briefs := &fakeBriefs{items: items}
	sum := &fakeSummarizer{failFor: map[string]bool{"https://example.com/b": true}}

	b := newTestBriefer(items, briefs, &fakeExtractor{}, sum, 5)

	done, err := b.CompileForUser(context.Background(), model.DefaultPreferences(1))
	if err != nil {
		t.Fatalf("CompileForUser error: %v", err)
	}

	if len(done) != 2 {
		t.Fatalf("expected briefs for A and C only, got %d", len(done))
	}

	for _, brief := range briefs.stored {
		if brief.Link == "https://example.com/b" {
			t.Fatalf("failed item must not be stored")
		}
	}
}

func TestExtractionFailureIsSkipped(t *testing.T) {
	now := time.Now().UTC()

	items := &fakeItems{items: testItems(now, "https://example.com/a", "https://example.com/b"), briefed: map[int64]bool{}}
	briefs := &fakeBriefs{items: items}
	ex := &fakeExtractor{failFor: map[string]bool{"https://example.com/a": true}}

	b := newTestBriefer(items, briefs, ex, &fakeSummarizer{}, 5)

	done, err := b.CompileForUser(context.Background(), model.DefaultPreferences(1))
	if err != nil {
		t.Fatalf("CompileForUser error: %v", err)
	}

	if len(done) != 1 || done[0].Link != "https://example.com/b" {
		t.Fatalf("expected only B briefed, got %+v", done)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	now := time.Now().UTC()

	var links []string
	for i := 0; i < 12; i++ {
		links = append(links, "https://example.com/"+string(rune('a'+i)))
	}

	items := &fakeItems{items: testItems(now, links...), briefed: map[int64]bool{}}
	briefs := &fakeBriefs{items: items}
	ex := &fakeExtractor{delay: 20 * time.Millisecond}

	b := newTestBriefer(items, briefs, ex, &fakeSummarizer{}, 3)

	if _, err := b.CompileForUser(context.Background(), model.DefaultPreferences(1)); err != nil {
		t.Fatalf("CompileForUser error: %v", err)
	}

	if ex.peak > 3 {
		t.Fatalf("expected at most 3 extractions in flight, saw %d", ex.peak)
	}
}

func TestStyleAndLanguageComeFromPreferences(t *testing.T) {
	now := time.Now().UTC()

	items := &fakeItems{items: testItems(now, "https://example.com/a"), briefed: map[int64]bool{}}
	briefs := &fakeBriefs{items: items}
	sum := &fakeSummarizer{}

	b := newTestBriefer(items, briefs, &fakeExtractor{}, sum, 5)

	prefs := model.DefaultPreferences(1)
	prefs.Style = model.StyleDetailed
	prefs.Language = "German"

	done, err := b.CompileForUser(context.Background(), prefs)
	if err != nil {
		t.Fatalf("CompileForUser error: %v", err)
	}

	if len(sum.styles) != 1 || sum.styles[0] != model.StyleDetailed {
		t.Fatalf("expected detailed style passed through, got %v", sum.styles)
	}

	if len(done) != 1 || done[0].Translation == "" {
		t.Fatalf("expected translation in brief, got %+v", done)
	}
}
