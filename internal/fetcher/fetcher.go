package fetcher

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"newsbrief/internal/model"

	"github.com/samber/lo"
)

// How far back a feed's first-ever fetch reaches.
const firstFetchBackfill = 7 * 24 * time.Hour

type FeedStorage interface {
	Followed(ctx context.Context) ([]model.Feed, error)
	Refreshed(ctx context.Context, feedID int64, at time.Time) error
	UpdateTitle(ctx context.Context, feedID int64, title string) error
}

type ItemStorage interface {
	Exists(ctx context.Context, link string) (bool, error)
	Store(ctx context.Context, item model.FeedItem) error
}

type Source interface {
	ID() int64
	URL() string
	Fetch(ctx context.Context) (model.ParsedFeed, error)
}

// SourceFunc builds the fetch source for one feed.
type SourceFunc func(feed model.Feed) Source

// Fetcher brings each followed feed's item set up to date once per
// cycle, bounded by the incremental checkpoint.
type Fetcher struct {
	feeds     FeedStorage
	items     ItemStorage
	newSource SourceFunc

	keywords      []string
	fetchInterval time.Duration
	concurrency   int

	now func() time.Time
}

func New(feeds FeedStorage, items ItemStorage, newSource SourceFunc, keywords []string,
	fetchInterval time.Duration, concurrency int) *Fetcher {

	if concurrency < 1 {
		concurrency = 1
	}

	return &Fetcher{
		feeds:         feeds,
		items:         items,
		newSource:     newSource,
		keywords:      keywords,
		fetchInterval: fetchInterval,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (f *Fetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.fetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}

// Refresh runs one batch over every followed feed. Each feed is fetched
// at most once regardless of follower count, and one feed's failure
// never blocks its siblings.
func (f *Fetcher) Refresh(ctx context.Context) error {
	feeds, err := f.feeds.Followed(ctx)
	if err != nil {
		return err
	}

	feeds = lo.UniqBy(feeds, func(feed model.Feed) int64 { return feed.ID })

	var wg sync.WaitGroup

	sem := make(chan struct{}, f.concurrency)

	for _, feed := range feeds {
		wg.Add(1)
		sem <- struct{}{}

		go func(feed model.Feed) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := f.refreshFeed(ctx, feed); err != nil {
				log.Printf("ERROR: refresh feed %s: %v", feed.URL, err)
			}
		}(feed)
	}

	wg.Wait()

	return nil
}

func (f *Fetcher) refreshFeed(ctx context.Context, feed model.Feed) error {
	now := f.now().UTC()

	cutoff := now.Add(-firstFetchBackfill)
	if feed.LastRefreshedAt != nil {
		cutoff = feed.LastRefreshedAt.UTC()
	}

	// A fetch or parse failure leaves the checkpoint untouched so the
	// next cycle re-scans the same window.
	parsed, err := f.newSource(feed).Fetch(ctx)
	if err != nil {
		return err
	}

	for _, item := range parsed.Items {
		// Missing or unparseable pubDate falls back to now; better to
		// ingest once than to drop the item on every cycle.
		publishedAt := item.Date.UTC()
		if item.Date.IsZero() {
			publishedAt = now
		}

		if publishedAt.Before(cutoff) {
			continue
		}

		if f.isSkipped(item) {
			continue
		}

		exists, err := f.items.Exists(ctx, item.Link)
		if err != nil {
			log.Printf("ERROR: dedup check %s: %v", item.Link, err)
			continue
		}

		if exists {
			continue
		}

		if err := f.items.Store(ctx, model.FeedItem{
			FeedID:      feed.ID,
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: publishedAt,
		}); err != nil {
			log.Printf("ERROR: store item %s: %v", item.Link, err)
		}
	}

	if feed.Title == "" && parsed.Title != "" {
		if err := f.feeds.UpdateTitle(ctx, feed.ID, parsed.Title); err != nil {
			log.Printf("ERROR: update title for feed %s: %v", feed.URL, err)
		}
	}

	// Advance unconditionally, even when individual items failed to
	// store, so a permanently broken entry cannot wedge the feed into
	// rescanning from scratch forever.
	return f.feeds.Refreshed(ctx, feed.ID, now)
}

func (f *Fetcher) isSkipped(item model.Item) bool {
	for _, keyword := range f.keywords {
		keyword = strings.ToLower(keyword)

		if strings.Contains(strings.ToLower(item.Title), keyword) {
			return true
		}

		for _, category := range item.Categories {
			if strings.EqualFold(category, keyword) {
				return true
			}
		}
	}

	return false
}
