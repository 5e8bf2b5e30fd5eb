package briefer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"newsbrief/internal/model"
)

type UserList interface {
	Onboarded(ctx context.Context) ([]model.Preferences, error)
}

type ItemProvider interface {
	Unbriefed(ctx context.Context, userID int64, since time.Time) ([]model.FeedItem, error)
}

type BriefStorage interface {
	Store(ctx context.Context, brief model.BriefItem) error
}

type Extractor interface {
	Extract(ctx context.Context, pageURL string) (model.PageText, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string, style model.Style, lang string) (summary, translation string, err error)
}

// Briefer converts newly ingested items into per-user briefs through
// extraction and summarization, with bounded concurrency.
type Briefer struct {
	users      UserList
	items      ItemProvider
	briefs     BriefStorage
	extractor  Extractor
	summarizer Summarizer

	briefInterval time.Duration
	lookback      time.Duration
	concurrency   int

	now func() time.Time
}

func New(users UserList, items ItemProvider, briefs BriefStorage, extractor Extractor,
	summarizer Summarizer, briefInterval, lookback time.Duration, concurrency int) *Briefer {

	if concurrency < 1 {
		concurrency = 1
	}

	return &Briefer{
		users:         users,
		items:         items,
		briefs:        briefs,
		extractor:     extractor,
		summarizer:    summarizer,
		briefInterval: briefInterval,
		lookback:      lookback,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

func (b *Briefer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.briefInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.Compile(ctx); err != nil {
				return err
			}
		}
	}
}

// Compile runs one batch over every onboarded user. One user's failure
// never blocks the rest.
func (b *Briefer) Compile(ctx context.Context) error {
	users, err := b.users.Onboarded(ctx)
	if err != nil {
		return err
	}

	for _, prefs := range users {
		if _, err := b.CompileForUser(ctx, prefs); err != nil {
			log.Printf("ERROR: compile briefs for user %d: %v", prefs.UserID, err)
		}
	}

	return nil
}

// CompileForUser briefs the user's unprocessed items from the lookback
// window and returns the briefs it created. Per-item failures are
// logged and dropped; the batch continues.
func (b *Briefer) CompileForUser(ctx context.Context, prefs model.Preferences) ([]model.BriefItem, error) {
	since := b.now().UTC().Add(-b.lookback)

	// Items already briefed for this user are excluded here, so a
	// repeat run over the same window is a no-op.
	items, err := b.items.Unbriefed(ctx, prefs.UserID, since)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		done []model.BriefItem
		wg   sync.WaitGroup
	)

	sem := make(chan struct{}, b.concurrency)

	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}

		go func(item model.FeedItem) {
			defer wg.Done()
			defer func() { <-sem }()

			brief, err := b.process(ctx, prefs, item)
			if err != nil {
				log.Printf("ERROR: brief user %d item %s: %v", prefs.UserID, item.Link, err)
				return
			}

			mu.Lock()
			done = append(done, brief)
			mu.Unlock()
		}(item)
	}

	wg.Wait()

	return done, nil
}

func (b *Briefer) process(ctx context.Context, prefs model.Preferences, item model.FeedItem) (model.BriefItem, error) {
	page, err := b.extractor.Extract(ctx, item.Link)
	if err != nil {
		return model.BriefItem{}, fmt.Errorf("extract: %w", err)
	}

	summary, translation, err := b.summarizer.Summarize(ctx, page.Text, prefs.Style, prefs.Language)
	if err != nil {
		return model.BriefItem{}, fmt.Errorf("summarize: %w", err)
	}

	title := page.Title
	if title == "" {
		title = item.Title
	}

	brief := model.BriefItem{
		UserID:      prefs.UserID,
		ItemID:      item.ID,
		Title:       title,
		Summary:     summary,
		Translation: translation,
		Link:        item.Link,
	}

	if err := b.briefs.Store(ctx, brief); err != nil {
		return model.BriefItem{}, fmt.Errorf("store: %w", err)
	}

	return brief, nil
}
