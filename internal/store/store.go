// Package store owns all reads and writes of channels, videos and
// watch_time_records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ytwatchtime/ytwatchtime/internal/database"
)

var (
	// ErrNotFound is an expected absence, not a failure.
	ErrNotFound = errors.New("store: not found")

	// ErrConstraint marks a row the database rejected.
	ErrConstraint = errors.New("store: constraint violation")
)

// Error carries the underlying cause of a storage failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

type Channel struct {
	ID                int64
	ExternalChannelID string
	Name              string
	CanonicalURL      string
	FirstSeenAt       time.Time
}

type Video struct {
	ID           int64
	Title        string
	ChannelID    *int64
	CanonicalURL string
	RetrievedAt  time.Time
}

type Store struct {
	db database.DBTX
}

func New(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) FindChannelByExternalID(ctx context.Context, externalID string) (Channel, error) {
	var c Channel
	err := s.db.QueryRow(ctx,
		`SELECT id, external_channel_id, name, canonical_url, first_seen_at
		 FROM channels WHERE external_channel_id = $1
		 ORDER BY id LIMIT 1`,
		externalID,
	).Scan(&c.ID, &c.ExternalChannelID, &c.Name, &c.CanonicalURL, &c.FirstSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Channel{}, ErrNotFound
		}
		return Channel{}, wrap("find channel", err)
	}
	return c, nil
}

// InsertChannel returns the id of the row for c.ExternalChannelID. When a
// concurrent caller inserted the same external id first, that row's id is
// returned and its content is left untouched.
func (s *Store) InsertChannel(ctx context.Context, c Channel) (int64, error) {
	if c.FirstSeenAt.IsZero() {
		c.FirstSeenAt = time.Now().UTC()
	}

	var id int64
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO channels (external_channel_id, name, canonical_url, first_seen_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (external_channel_id) DO NOTHING
			 RETURNING id`,
			c.ExternalChannelID, c.Name, c.CanonicalURL, c.FirstSeenAt,
		).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return tx.QueryRow(ctx,
			`SELECT id FROM channels WHERE external_channel_id = $1`,
			c.ExternalChannelID,
		).Scan(&id)
	})
	if err != nil {
		return 0, wrap("insert channel", err)
	}
	return id, nil
}

func (s *Store) InsertVideo(ctx context.Context, v Video) (int64, error) {
	if v.RetrievedAt.IsZero() {
		v.RetrievedAt = time.Now().UTC()
	}

	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO videos (title, channel_id, canonical_url, retrieved_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		v.Title, v.ChannelID, v.CanonicalURL, v.RetrievedAt,
	).Scan(&id)
	if err != nil {
		return 0, wrap("insert video", err)
	}
	return id, nil
}

// FindLatestVideoIDByURL picks the most recently retrieved row among the
// duplicates kept for a canonical URL.
func (s *Store) FindLatestVideoIDByURL(ctx context.Context, canonicalURL string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT id FROM videos
		 WHERE canonical_url = $1
		 ORDER BY retrieved_at DESC, id DESC
		 LIMIT 1`,
		canonicalURL,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, wrap("find latest video", err)
	}
	return id, nil
}

func (s *Store) GetWatchTime(ctx context.Context, videoID int64) (float64, error) {
	var total float64
	err := s.db.QueryRow(ctx,
		`SELECT total_watch_time_seconds FROM watch_time_records
		 WHERE video_id = $1
		 ORDER BY last_updated_at DESC
		 LIMIT 1`,
		videoID,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, wrap("get watch time", err)
	}
	return total, nil
}

// UpsertWatchTime adds deltaSeconds to the video's running total in a single
// statement, so concurrent reports for the same video never lose an update.
func (s *Store) UpsertWatchTime(ctx context.Context, videoID int64, deltaSeconds float64, now time.Time) (float64, error) {
	if deltaSeconds < 0 {
		return 0, wrap("upsert watch time", fmt.Errorf("%w: negative delta %v", ErrConstraint, deltaSeconds))
	}

	var total float64
	err := s.db.QueryRow(ctx,
		`INSERT INTO watch_time_records (video_id, total_watch_time_seconds, last_updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (video_id) DO UPDATE
		 SET total_watch_time_seconds = watch_time_records.total_watch_time_seconds + EXCLUDED.total_watch_time_seconds,
		     last_updated_at = EXCLUDED.last_updated_at
		 RETURNING total_watch_time_seconds`,
		videoID, deltaSeconds, now,
	).Scan(&total)
	if err != nil {
		return 0, wrap("upsert watch time", err)
	}
	return total, nil
}

// Counts reports row counts per table.
func (s *Store) Counts(ctx context.Context) (channels, videos int64, err error) {
	err = s.db.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM channels), (SELECT count(*) FROM videos)`,
	).Scan(&channels, &videos)
	if err != nil {
		return 0, 0, wrap("count rows", err)
	}
	return channels, videos, nil
}

func wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		err = fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return &Error{Op: op, Err: err}
}
