package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Timestamps are written by the application, always in UTC, so values
// compare consistently on both drivers; no column carries a database
// default clock.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS feeds (
	id %[1]s,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	last_refreshed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
	id %[1]s,
	owner_id BIGINT,
	name TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	bookmarked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS topics_owner_name
	ON topics (COALESCE(owner_id, 0), name);

CREATE TABLE IF NOT EXISTS subscriptions (
	id %[1]s,
	user_id BIGINT NOT NULL,
	topic_id BIGINT NOT NULL,
	feed_id BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, topic_id, feed_id)
);

CREATE INDEX IF NOT EXISTS subscriptions_feed ON subscriptions (feed_id);

CREATE TABLE IF NOT EXISTS items (
	id %[1]s,
	feed_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	link TEXT NOT NULL UNIQUE,
	published_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS items_feed_published ON items (feed_id, published_at);

CREATE TABLE IF NOT EXISTS briefs (
	id %[1]s,
	user_id BIGINT NOT NULL,
	item_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	translation TEXT NOT NULL DEFAULT '',
	link TEXT NOT NULL DEFAULT '',
	sent_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, item_id)
);

CREATE INDEX IF NOT EXISTS briefs_user_unsent ON briefs (user_id, sent_at);

CREATE TABLE IF NOT EXISTS preferences (
	user_id BIGINT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	onboarded BOOLEAN NOT NULL DEFAULT FALSE,
	style TEXT NOT NULL DEFAULT 'concise',
	digest_hour INT NOT NULL DEFAULT 8,
	digest_weekday INT NOT NULL DEFAULT 1,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	email TEXT NOT NULL DEFAULT '',
	email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	language TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS digests (
	id %[1]s,
	user_id BIGINT NOT NULL,
	status TEXT NOT NULL,
	item_count INT NOT NULL DEFAULT 0,
	delivery_id TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	scheduled_for TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	sent_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS digests_user_scheduled ON digests (user_id, scheduled_for);
`

// InitSchema creates all tables and indexes if they do not exist yet.
// The only dialect difference is the auto-increment primary key.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(schemaTemplate, idColumn)

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}
