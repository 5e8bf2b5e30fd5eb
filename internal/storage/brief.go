package storage

import (
	"context"
	"database/sql"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type BriefStorage struct {
	db *sqlx.DB
}

type dbBrief struct {
	ID          int64        `db:"id"`
	UserID      int64        `db:"user_id"`
	ItemID      int64        `db:"item_id"`
	Title       string       `db:"title"`
	Summary     string       `db:"summary"`
	Translation string       `db:"translation"`
	Link        string       `db:"link"`
	SentAt      sql.NullTime `db:"sent_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

type dbDigestEntry struct {
	dbBrief
	Topic string `db:"topic"`
}

func NewBriefStorage(db *sqlx.DB) *BriefStorage {
	return &BriefStorage{db: db}
}

// Store inserts one brief. (user_id, item_id) is the dedup key; a
// concurrent second attempt at the same pair is a no-op, never a
// duplicate row.
func (s *BriefStorage) Store(ctx context.Context, brief model.BriefItem) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`INSERT INTO briefs (user_id, item_id, title, summary, translation, link, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id, item_id) DO NOTHING;`,
		brief.UserID,
		brief.ItemID,
		brief.Title,
		brief.Summary,
		brief.Translation,
		brief.Link,
		time.Now().UTC(),
	)

	return err
}

// UnsentForDigest returns the user's undelivered briefs created at or
// after since, each labeled with the alphabetically first of the user's
// topics containing the brief's feed.
func (s *BriefStorage) UnsentForDigest(ctx context.Context, userID int64, since time.Time) ([]model.DigestEntry, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var entries []dbDigestEntry

	if err := conn.SelectContext(
		ctx,
		&entries,
		`SELECT b.id, b.user_id, b.item_id, b.title, b.summary, b.translation, b.link,
				b.sent_at, b.created_at,
				COALESCE((
					SELECT MIN(t.name)
					FROM subscriptions s
					JOIN topics t ON t.id = s.topic_id
					WHERE s.user_id = b.user_id
						AND s.feed_id = (SELECT feed_id FROM items WHERE id = b.item_id)
				), '') AS topic
			FROM briefs b
			WHERE b.user_id = $1 AND b.sent_at IS NULL AND b.created_at >= $2
			ORDER BY b.created_at DESC`,
		userID,
		since.UTC(),
	); err != nil {
		return nil, err
	}

	return lo.Map(entries, func(entry dbDigestEntry, _ int) model.DigestEntry {
		return model.DigestEntry{Brief: briefFromDB(entry.dbBrief), Topic: entry.Topic}
	}), nil
}

// MarkSent stamps the given briefs as delivered.
func (s *BriefStorage) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, id := range ids {
		if _, err := conn.ExecContext(
			ctx,
			`UPDATE briefs SET sent_at = $1 WHERE id = $2;`,
			at.UTC(),
			id,
		); err != nil {
			return err
		}
	}

	return nil
}

// ByUser returns the user's briefs created at or after since, newest first.
func (s *BriefStorage) ByUser(ctx context.Context, userID int64, since time.Time) ([]model.BriefItem, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var briefs []dbBrief

	if err := conn.SelectContext(
		ctx,
		&briefs,
		`SELECT id, user_id, item_id, title, summary, translation, link, sent_at, created_at
			FROM briefs
			WHERE user_id = $1 AND created_at >= $2
			ORDER BY created_at DESC`,
		userID,
		since.UTC(),
	); err != nil {
		return nil, err
	}

	return lo.Map(briefs, func(brief dbBrief, _ int) model.BriefItem { return briefFromDB(brief) }), nil
}

func briefFromDB(brief dbBrief) model.BriefItem {
	out := model.BriefItem{
		ID:          brief.ID,
		UserID:      brief.UserID,
		ItemID:      brief.ItemID,
		Title:       brief.Title,
		Summary:     brief.Summary,
		Translation: brief.Translation,
		Link:        brief.Link,
		CreatedAt:   brief.CreatedAt,
	}

	if brief.SentAt.Valid {
		at := brief.SentAt.Time
		out.SentAt = &at
	}

	return out
}
