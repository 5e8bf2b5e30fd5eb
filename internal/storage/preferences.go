package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"newsbrief/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

type PreferenceStorage struct {
	db *sqlx.DB
}

type dbPreferences struct {
	UserID        int64     `db:"user_id"`
	DisplayName   string    `db:"display_name"`
	Onboarded     bool      `db:"onboarded"`
	Style         string    `db:"style"`
	DigestHour    int       `db:"digest_hour"`
	DigestWeekday int       `db:"digest_weekday"`
	Timezone      string    `db:"timezone"`
	Email         string    `db:"email"`
	EmailEnabled  bool      `db:"email_enabled"`
	Language      string    `db:"language"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func NewPreferenceStorage(db *sqlx.DB) *PreferenceStorage {
	return &PreferenceStorage{db: db}
}

// Get returns the user's stored preferences, or the defaults when the
// user has never written any.
func (s *PreferenceStorage) Get(ctx context.Context, userID int64) (model.Preferences, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return model.Preferences{}, err
	}
	defer conn.Close()

	var prefs dbPreferences

	err = conn.GetContext(
		ctx,
		&prefs,
		`SELECT user_id, display_name, onboarded, style, digest_hour, digest_weekday,
				timezone, email, email_enabled, language, created_at, updated_at
			FROM preferences WHERE user_id = $1`,
		userID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultPreferences(userID), nil
	}

	if err != nil {
		return model.Preferences{}, err
	}

	return prefsFromDB(prefs), nil
}

// Upsert validates and writes the user's preferences, creating the row
// lazily on first write.
func (s *PreferenceStorage) Upsert(ctx context.Context, prefs model.Preferences) error {
	if !prefs.Style.Valid() {
		return errValidation("unknown summary style %q", prefs.Style)
	}

	if prefs.DigestHour < 0 || prefs.DigestHour > 23 {
		return errValidation("digest hour %d out of range 0-23", prefs.DigestHour)
	}

	if prefs.DigestWeekday < 0 || prefs.DigestWeekday > 6 {
		return errValidation("digest weekday %d out of range 0-6", prefs.DigestWeekday)
	}

	if _, err := time.LoadLocation(prefs.Timezone); err != nil {
		return errValidation("unknown timezone %q", prefs.Timezone)
	}

	if prefs.EmailEnabled && prefs.Email == "" {
		return errValidation("email notifications enabled without an email address")
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	now := time.Now().UTC()

	_, err = conn.ExecContext(
		ctx,
		`INSERT INTO preferences (user_id, display_name, onboarded, style, digest_hour,
				digest_weekday, timezone, email, email_enabled, language, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			ON CONFLICT (user_id) DO UPDATE SET
				display_name = excluded.display_name,
				onboarded = excluded.onboarded,
				style = excluded.style,
				digest_hour = excluded.digest_hour,
				digest_weekday = excluded.digest_weekday,
				timezone = excluded.timezone,
				email = excluded.email,
				email_enabled = excluded.email_enabled,
				language = excluded.language,
				updated_at = excluded.updated_at;`,
		prefs.UserID,
		prefs.DisplayName,
		prefs.Onboarded,
		string(prefs.Style),
		prefs.DigestHour,
		prefs.DigestWeekday,
		prefs.Timezone,
		prefs.Email,
		prefs.EmailEnabled,
		prefs.Language,
		now,
	)

	return err
}

// Onboarded returns the preferences of every user who finished onboarding.
func (s *PreferenceStorage) Onboarded(ctx context.Context) ([]model.Preferences, error) {
	return s.list(ctx, `SELECT user_id, display_name, onboarded, style, digest_hour, digest_weekday,
			timezone, email, email_enabled, language, created_at, updated_at
		FROM preferences WHERE onboarded ORDER BY user_id`)
}

// Notifiable returns onboarded users with email notifications enabled.
func (s *PreferenceStorage) Notifiable(ctx context.Context) ([]model.Preferences, error) {
	return s.list(ctx, `SELECT user_id, display_name, onboarded, style, digest_hour, digest_weekday,
			timezone, email, email_enabled, language, created_at, updated_at
		FROM preferences WHERE onboarded AND email_enabled ORDER BY user_id`)
}

func (s *PreferenceStorage) list(ctx context.Context, query string) ([]model.Preferences, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows []dbPreferences

	if err := conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	return lo.Map(rows, func(prefs dbPreferences, _ int) model.Preferences {
		return prefsFromDB(prefs)
	}), nil
}

func prefsFromDB(prefs dbPreferences) model.Preferences {
	return model.Preferences{
		UserID:        prefs.UserID,
		DisplayName:   prefs.DisplayName,
		Onboarded:     prefs.Onboarded,
		Style:         model.Style(prefs.Style),
		DigestHour:    prefs.DigestHour,
		DigestWeekday: prefs.DigestWeekday,
		Timezone:      prefs.Timezone,
		Email:         prefs.Email,
		EmailEnabled:  prefs.EmailEnabled,
		Language:      prefs.Language,
		CreatedAt:     prefs.CreatedAt,
		UpdatedAt:     prefs.UpdatedAt,
	}
}
