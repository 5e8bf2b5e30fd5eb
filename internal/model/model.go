package model

import (
	"time"
)

// Item is one entry parsed out of a feed, before it is persisted.
type Item struct {
	Title      string
	Categories []string
	Link       string
	// Date is the published time reported by the feed; zero when the
	// feed omits it or the value could not be parsed.
	Date    time.Time
	Summary string
}

// ParsedFeed is the channel-level result of fetching one feed URL.
type ParsedFeed struct {
	Title string
	Link  string
	Items []Item
}

// Feed is a subscribable source, deduplicated globally by URL.
type Feed struct {
	ID    int64
	URL   string
	Title string
	// LastRefreshedAt is the incremental-fetch checkpoint; nil means the
	// feed has never been fetched.
	LastRefreshedAt *time.Time
	CreatedAt       time.Time
}

// Topic is a named grouping of feeds. OwnerID is nil for curated topics.
type Topic struct {
	ID         int64
	OwnerID    *int64
	Name       string
	Tags       []string
	Bookmarked bool
	CreatedAt  time.Time
}

// Subscription links a feed into a topic for one following user.
type Subscription struct {
	ID        int64
	UserID    int64
	TopicID   int64
	FeedID    int64
	CreatedAt time.Time
}

// FeedItem is one ingested entry, deduplicated globally by link.
type FeedItem struct {
	ID          int64
	FeedID      int64
	Title       string
	Link        string
	PublishedAt time.Time
	CreatedAt   time.Time
}

// BriefItem is a per-user summarized artifact derived from one FeedItem.
// At most one exists per (user, item) pair.
type BriefItem struct {
	ID          int64
	UserID      int64
	ItemID      int64
	Title       string
	Summary     string
	Translation string
	Link        string
	// SentAt is set once the brief has been delivered in a digest.
	SentAt    *time.Time
	CreatedAt time.Time
}

// Style selects summary verbosity. It drives both the summarizer prompt
// and how many entries per topic a digest keeps.
type Style string

const (
	StyleConcise  Style = "concise"
	StyleDetailed Style = "detailed"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	return s == StyleConcise || s == StyleDetailed
}

// TopicCap is the digest entry budget per topic for this style.
func (s Style) TopicCap() int {
	if s == StyleDetailed {
		return 5
	}
	return 1
}

// Preferences holds per-user settings. Rows are created lazily on first
// write; absent rows read back as DefaultPreferences.
type Preferences struct {
	UserID      int64
	DisplayName string
	Onboarded   bool
	Style       Style
	// DigestHour and DigestWeekday are in the user's local time;
	// weekday follows time.Weekday numbering (0 = Sunday).
	DigestHour    int
	DigestWeekday int
	Timezone      string
	Email         string
	EmailEnabled  bool
	// Language is an optional translation target ("" disables translation).
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPreferences returns the settings a user has before any write.
func DefaultPreferences(userID int64) Preferences {
	return Preferences{
		UserID:        userID,
		Style:         StyleConcise,
		DigestHour:    8,
		DigestWeekday: int(time.Monday),
		Timezone:      "UTC",
		EmailEnabled:  true,
	}
}

// Digest delivery states.
const (
	DigestPending = "pending"
	DigestSent    = "sent"
	DigestFailed  = "failed"
)

// Digest records one delivery attempt for a user.
type Digest struct {
	ID         int64
	UserID     int64
	Status     string
	ItemCount  int
	DeliveryID string
	Error      string
	// ScheduledFor is the local-hour occurrence that made the user due,
	// truncated to the hour in UTC.
	ScheduledFor time.Time
	CreatedAt    time.Time
	SentAt       *time.Time
}

// DigestEntry is one brief paired with the topic it is filed under
// in a digest. Topic is empty when none of the user's topics contains
// the brief's feed anymore.
type DigestEntry struct {
	Brief BriefItem
	Topic string
}

// Email is the payload handed to the delivery provider.
type Email struct {
	From    string
	To      string
	Subject string
	Text    string
}

// PageText is readable article content with boilerplate stripped.
type PageText struct {
	Title string
	Text  string
}
