package storage

import (
	"context"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
)

type DigestStorage struct {
	db *sqlx.DB
}

func NewDigestStorage(db *sqlx.DB) *DigestStorage {
	return &DigestStorage{db: db}
}

// Create records a pending delivery attempt and returns its id.
func (s *DigestStorage) Create(ctx context.Context, digest model.Digest) (int64, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var id int64

	row := conn.QueryRowxContext(
		ctx,
		`INSERT INTO digests (user_id, status, item_count, scheduled_for, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id;`,
		digest.UserID,
		model.DigestPending,
		digest.ItemCount,
		digest.ScheduledFor.UTC(),
		time.Now().UTC(),
	)

	if err := row.Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// MarkSent moves a pending digest to sent with the provider's delivery id.
func (s *DigestStorage) MarkSent(ctx context.Context, id int64, deliveryID string, at time.Time) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`UPDATE digests SET status = $1, delivery_id = $2, sent_at = $3 WHERE id = $4;`,
		model.DigestSent,
		deliveryID,
		at.UTC(),
		id,
	)

	return err
}

// MarkFailed moves a pending digest to failed with the delivery error.
// The next due cycle re-derives content from unsent briefs; nothing is
// retried within the same cycle.
func (s *DigestStorage) MarkFailed(ctx context.Context, id int64, reason string) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`UPDATE digests SET status = $1, error = $2 WHERE id = $3;`,
		model.DigestFailed,
		reason,
		id,
	)

	return err
}

// SentInHour reports whether the user already received a digest for the
// given hour occurrence. Guards against a ticker firing twice within
// the same scheduled hour.
func (s *DigestStorage) SentInHour(ctx context.Context, userID int64, occurrence time.Time) (bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var count int

	if err := conn.GetContext(
		ctx,
		&count,
		`SELECT COUNT(1) FROM digests
			WHERE user_id = $1 AND scheduled_for = $2 AND status = $3`,
		userID,
		occurrence.UTC(),
		model.DigestSent,
	); err != nil {
		return false, err
	}

	return count > 0, nil
}
