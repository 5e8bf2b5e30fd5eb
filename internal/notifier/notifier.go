package notifier

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"newsbrief/internal/model"

	"github.com/samber/lo"
)

type PreferencesList interface {
	Notifiable(ctx context.Context) ([]model.Preferences, error)
}

type BriefProvider interface {
	UnsentForDigest(ctx context.Context, userID int64, since time.Time) ([]model.DigestEntry, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
}

type DigestLog interface {
	Create(ctx context.Context, digest model.Digest) (int64, error)
	MarkSent(ctx context.Context, id int64, deliveryID string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SentInHour(ctx context.Context, userID int64, occurrence time.Time) (bool, error)
}

type Sender interface {
	Send(ctx context.Context, email model.Email) (string, error)
}

// Notifier assembles and delivers digests to users whose scheduled
// local hour has arrived.
type Notifier struct {
	prefs   PreferencesList
	briefs  BriefProvider
	digests DigestLog
	sender  Sender

	from           string
	digestInterval time.Duration
	lookback       time.Duration
	concurrency    int

	now func() time.Time
}

func New(prefs PreferencesList, briefs BriefProvider, digests DigestLog, sender Sender,
	from string, digestInterval, lookback time.Duration, concurrency int) *Notifier {

	if concurrency < 1 {
		concurrency = 1
	}

	return &Notifier{
		prefs:          prefs,
		briefs:         briefs,
		digests:        digests,
		sender:         sender,
		from:           from,
		digestInterval: digestInterval,
		lookback:       lookback,
		concurrency:    concurrency,
		now:            time.Now,
	}
}

func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.digestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.Dispatch(ctx); err != nil {
				return err
			}
		}
	}
}

// Dispatch runs one batch: finds users whose scheduled local hour
// matches now and sends each of them a digest. One user's failure
// never blocks the rest.
func (n *Notifier) Dispatch(ctx context.Context) error {
	users, err := n.prefs.Notifiable(ctx)
	if err != nil {
		return err
	}

	now := n.now().UTC()

	due := lo.Filter(users, func(prefs model.Preferences, _ int) bool {
		return Due(prefs, now)
	})

	var wg sync.WaitGroup

	sem := make(chan struct{}, n.concurrency)

	for _, prefs := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(prefs model.Preferences) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := n.dispatchUser(ctx, prefs, now); err != nil {
				log.Printf("ERROR: digest for user %d: %v", prefs.UserID, err)
			}
		}(prefs)
	}

	wg.Wait()

	return nil
}

// Due reports whether now falls inside the user's scheduled local hour.
// The stored IANA zone is authoritative, so DST shifts move the
// matching UTC hour together with the zone. An unknown zone falls back
// to UTC.
func Due(prefs model.Preferences, now time.Time) bool {
	local := now.In(userLocation(prefs))

	return int(local.Weekday()) == prefs.DigestWeekday && local.Hour() == prefs.DigestHour
}

func userLocation(prefs model.Preferences) *time.Location {
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

func (n *Notifier) dispatchUser(ctx context.Context, prefs model.Preferences, now time.Time) error {
	occurrence := now.Truncate(time.Hour)

	// The ticker is finer than an hour, so the same occurrence can come
	// up more than once; a digest already sent for it ends the attempt.
	sent, err := n.digests.SentInHour(ctx, prefs.UserID, occurrence)
	if err != nil {
		return err
	}

	if sent {
		return nil
	}

	entries, err := n.briefs.UnsentForDigest(ctx, prefs.UserID, now.Add(-n.lookback))
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	sections := Assemble(entries, prefs.Style)

	digestID, err := n.digests.Create(ctx, model.Digest{
		UserID:       prefs.UserID,
		Status:       model.DigestPending,
		ItemCount:    countEntries(sections),
		ScheduledFor: occurrence,
	})
	if err != nil {
		return err
	}

	deliveryID, sendErr := n.sender.Send(ctx, model.Email{
		From:    n.from,
		To:      prefs.Email,
		Subject: subject(prefs, now),
		Text:    Render(sections),
	})

	if sendErr != nil {
		// Briefs stay unsent; the next due cycle re-derives the digest
		// from the same unsent window.
		if err := n.digests.MarkFailed(ctx, digestID, sendErr.Error()); err != nil {
			log.Printf("ERROR: mark digest %d failed: %v", digestID, err)
		}

		return sendErr
	}

	sentAt := n.now().UTC()

	if err := n.digests.MarkSent(ctx, digestID, deliveryID, sentAt); err != nil {
		log.Printf("ERROR: mark digest %d sent: %v", digestID, err)
	}

	return n.briefs.MarkSent(ctx, entryIDs(sections), sentAt)
}

// Section is one topic's slice of a digest.
type Section struct {
	Topic   string
	Entries []model.DigestEntry

	// Total is the candidate count before the style cap.
	Total int
}

// Assemble groups entries by topic, caps each topic at the style's
// entry budget, and orders topics by candidate volume descending.
func Assemble(entries []model.DigestEntry, style model.Style) []Section {
	groups := lo.GroupBy(entries, func(entry model.DigestEntry) string {
		if entry.Topic == "" {
			return "General"
		}

		return entry.Topic
	})

	sections := lo.MapToSlice(groups, func(topic string, entries []model.DigestEntry) Section {
		capped := entries
		if len(capped) > style.TopicCap() {
			capped = capped[:style.TopicCap()]
		}

		return Section{Topic: topic, Entries: capped, Total: len(entries)}
	})

	sort.Slice(sections, func(i, j int) bool {
		if sections[i].Total != sections[j].Total {
			return sections[i].Total > sections[j].Total
		}

		return sections[i].Topic < sections[j].Topic
	})

	return sections
}

// Render produces the plain-text markdown-ish email body.
func Render(sections []Section) string {
	var b strings.Builder

	for _, section := range sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Topic)

		for _, entry := range section.Entries {
			fmt.Fprintf(&b, "- **%s**\n  %s\n", entry.Brief.Title, entry.Brief.Summary)

			if entry.Brief.Translation != "" {
				fmt.Fprintf(&b, "  %s\n", entry.Brief.Translation)
			}

			fmt.Fprintf(&b, "  %s\n", entry.Brief.Link)
		}

		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func subject(prefs model.Preferences, now time.Time) string {
	local := now.In(userLocation(prefs))

	return fmt.Sprintf("Your digest for %s", local.Format("Monday, 2 January"))
}

func countEntries(sections []Section) int {
	return lo.SumBy(sections, func(section Section) int { return len(section.Entries) })
}

func entryIDs(sections []Section) []int64 {
	var ids []int64

	for _, section := range sections {
		for _, entry := range section.Entries {
			ids = append(ids, entry.Brief.ID)
		}
	}

	return ids
}
