package storage

import (
	"context"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type ItemStorage struct {
	db *sqlx.DB
}

type dbItem struct {
	ID          int64     `db:"id"`
	FeedID      int64     `db:"feed_id"`
	Title       string    `db:"title"`
	Link        string    `db:"link"`
	PublishedAt time.Time `db:"published_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func NewItemStorage(db *sqlx.DB) *ItemStorage {
	return &ItemStorage{db: db}
}

// Store inserts one ingested item. The link is the global dedup key;
// a conflicting insert is a no-op so concurrent refresh cycles cannot
// create duplicate rows.
func (s *ItemStorage) Store(ctx context.Context, item model.FeedItem) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`INSERT INTO items (feed_id, title, link, published_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (link) DO NOTHING;`,
		item.FeedID,
		item.Title,
		item.Link,
		item.PublishedAt.UTC(),
		time.Now().UTC(),
	)

	return err
}

// Exists reports whether an item with the given link was already ingested.
func (s *ItemStorage) Exists(ctx context.Context, link string) (bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var count int

	if err := conn.GetContext(
		ctx,
		&count,
		`SELECT COUNT(1) FROM items WHERE link = $1`,
		link,
	); err != nil {
		return false, err
	}

	return count > 0, nil
}

// Unbriefed returns items from the user's followed feeds published at or
// after since, excluding items the user already has a brief for.
func (s *ItemStorage) Unbriefed(ctx context.Context, userID int64, since time.Time) ([]model.FeedItem, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var items []dbItem

	if err := conn.SelectContext(
		ctx,
		&items,
		`SELECT i.id, i.feed_id, i.title, i.link, i.published_at, i.created_at
			FROM items i
			WHERE i.published_at >= $2
				AND i.feed_id IN (SELECT feed_id FROM subscriptions WHERE user_id = $1)
				AND NOT EXISTS (SELECT 1 FROM briefs b WHERE b.user_id = $1 AND b.item_id = i.id)
			ORDER BY i.published_at DESC`,
		userID,
		since.UTC(),
	); err != nil {
		return nil, err
	}

	return lo.Map(items, func(item dbItem, _ int) model.FeedItem {
		return model.FeedItem(item)
	}), nil
}
