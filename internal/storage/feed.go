package storage

import (
	"context"
	"database/sql"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type FeedStorage struct {
	db *sqlx.DB
}

type dbFeed struct {
	ID              int64        `db:"id"`
	URL             string       `db:"url"`
	Title           string       `db:"title"`
	LastRefreshedAt sql.NullTime `db:"last_refreshed_at"`
	CreatedAt       time.Time    `db:"created_at"`
}

func NewFeedStorage(db *sqlx.DB) *FeedStorage {
	return &FeedStorage{db: db}
}

// GetOrCreate returns the feed with the given URL, inserting it first
// when no feed with that URL exists yet. Feeds are global: a second
// topic referencing the same URL shares the same row.
func (s *FeedStorage) GetOrCreate(ctx context.Context, url, title string) (model.Feed, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return model.Feed{}, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(
		ctx,
		`INSERT INTO feeds (url, title, created_at) VALUES ($1, $2, $3)
			ON CONFLICT (url) DO NOTHING;`,
		url,
		title,
		time.Now().UTC(),
	); err != nil {
		return model.Feed{}, err
	}

	var feed dbFeed

	if err := conn.GetContext(
		ctx,
		&feed,
		`SELECT id, url, title, last_refreshed_at, created_at FROM feeds WHERE url = $1`,
		url,
	); err != nil {
		return model.Feed{}, err
	}

	return feedFromDB(feed), nil
}

// Followed returns every feed referenced by at least one subscription,
// each exactly once regardless of follower count.
func (s *FeedStorage) Followed(ctx context.Context) ([]model.Feed, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var feeds []dbFeed

	if err := conn.SelectContext(
		ctx,
		&feeds,
		`SELECT id, url, title, last_refreshed_at, created_at FROM feeds
			WHERE id IN (SELECT DISTINCT feed_id FROM subscriptions)
			ORDER BY id`,
	); err != nil {
		return nil, err
	}

	return lo.Map(feeds, func(feed dbFeed, _ int) model.Feed { return feedFromDB(feed) }), nil
}

// Refreshed advances the feed's incremental-fetch checkpoint.
func (s *FeedStorage) Refreshed(ctx context.Context, feedID int64, at time.Time) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`UPDATE feeds SET last_refreshed_at = $1 WHERE id = $2;`,
		at.UTC(),
		feedID,
	)

	return err
}

// UpdateTitle fills in the feed title from the channel metadata, but
// never overwrites a title that is already set.
func (s *FeedStorage) UpdateTitle(ctx context.Context, feedID int64, title string) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`UPDATE feeds SET title = $1 WHERE id = $2 AND title = '';`,
		title,
		feedID,
	)

	return err
}

func feedFromDB(feed dbFeed) model.Feed {
	out := model.Feed{
		ID:        feed.ID,
		URL:       feed.URL,
		Title:     feed.Title,
		CreatedAt: feed.CreatedAt,
	}

	if feed.LastRefreshedAt.Valid {
		at := feed.LastRefreshedAt.Time
		out.LastRefreshedAt = &at
	}

	return out
}
