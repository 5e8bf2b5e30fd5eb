package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type TopicStorage struct {
	db *sqlx.DB
}

type dbTopic struct {
	ID         int64         `db:"id"`
	OwnerID    sql.NullInt64 `db:"owner_id"`
	Name       string        `db:"name"`
	Tags       string        `db:"tags"`
	Bookmarked bool          `db:"bookmarked"`
	CreatedAt  time.Time     `db:"created_at"`
}

func NewTopicStorage(db *sqlx.DB) *TopicStorage {
	return &TopicStorage{db: db}
}

// Create inserts a topic. Names must be unique within the owner's scope
// (nil owner is the shared curated scope); a duplicate is rejected with
// a ValidationError.
func (s *TopicStorage) Create(ctx context.Context, topic model.Topic) (int64, error) {
	name := strings.TrimSpace(topic.Name)
	if name == "" {
		return 0, errValidation("topic name must not be empty")
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int

	if err := conn.GetContext(
		ctx,
		&count,
		`SELECT COUNT(1) FROM topics WHERE name = $1 AND COALESCE(owner_id, 0) = COALESCE($2, 0)`,
		name,
		ownerArg(topic.OwnerID),
	); err != nil {
		return 0, err
	}

	if count > 0 {
		return 0, errValidation("topic %q already exists", name)
	}

	var id int64

	row := conn.QueryRowxContext(
		ctx,
		`INSERT INTO topics (owner_id, name, tags, bookmarked, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id;`,
		ownerArg(topic.OwnerID),
		name,
		strings.Join(topic.Tags, ","),
		topic.Bookmarked,
		time.Now().UTC(),
	)

	if err := row.Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// ByOwner returns the topics owned by one user. A nil owner lists the
// curated topics.
func (s *TopicStorage) ByOwner(ctx context.Context, ownerID *int64) ([]model.Topic, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var topics []dbTopic

	if err := conn.SelectContext(
		ctx,
		&topics,
		`SELECT id, owner_id, name, tags, bookmarked, created_at FROM topics
			WHERE COALESCE(owner_id, 0) = COALESCE($1, 0) ORDER BY name`,
		ownerArg(ownerID),
	); err != nil {
		return nil, err
	}

	return lo.Map(topics, func(topic dbTopic, _ int) model.Topic { return topicFromDB(topic) }), nil
}

// Subscribe links a feed into a topic for one following user. The same
// (user, topic, feed) triple links at most once; repeats are no-ops.
func (s *TopicStorage) Subscribe(ctx context.Context, userID, topicID, feedID int64) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`INSERT INTO subscriptions (user_id, topic_id, feed_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, topic_id, feed_id) DO NOTHING;`,
		userID,
		topicID,
		feedID,
		time.Now().UTC(),
	)

	return err
}

// Unsubscribe removes one (user, topic, feed) link.
func (s *TopicStorage) Unsubscribe(ctx context.Context, userID, topicID, feedID int64) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(
		ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND topic_id = $2 AND feed_id = $3;`,
		userID,
		topicID,
		feedID,
	)

	return err
}

func ownerArg(ownerID *int64) any {
	if ownerID == nil {
		return nil
	}

	return *ownerID
}

func topicFromDB(topic dbTopic) model.Topic {
	out := model.Topic{
		ID:         topic.ID,
		Name:       topic.Name,
		Bookmarked: topic.Bookmarked,
		CreatedAt:  topic.CreatedAt,
	}

	if topic.Tags != "" {
		out.Tags = strings.Split(topic.Tags, ",")
	}

	if topic.OwnerID.Valid {
		owner := topic.OwnerID.Int64
		out.OwnerID = &owner
	}

	return out
}
