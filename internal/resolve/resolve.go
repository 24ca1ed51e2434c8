// Package resolve turns a classified channel or video link into canonical
// rows and embeddable player references.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ytwatchtime/ytwatchtime/internal/catalog"
	"github.com/ytwatchtime/ytwatchtime/internal/classify"
	"github.com/ytwatchtime/ytwatchtime/internal/store"
)

// RecentVideoLimit is the fixed page size of a channel listing.
const RecentVideoLimit = 5

const opFetchChannel = "fetch channel"

// ErrChannelNotFound means a channel link could not be turned into a
// channel with videos.
var ErrChannelNotFound = errors.New("channel not found")

// ResolutionError wraps a catalog failure. The catalog cause stays reachable
// through errors.Is / errors.As.
type ResolutionError struct {
	Op  string
	ID  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Catalog is the metadata source shared by both resolvers.
type Catalog interface {
	FetchChannel(ctx context.Context, externalChannelID string) (catalog.Channel, error)
	FetchVideo(ctx context.Context, externalVideoID string) (catalog.Video, error)
	SearchChannel(ctx context.Context, query string) (string, error)
	ListRecentVideos(ctx context.Context, externalChannelID string, limit int) ([]catalog.ListedVideo, error)
}

type Store interface {
	FindChannelByExternalID(ctx context.Context, externalID string) (store.Channel, error)
	InsertChannel(ctx context.Context, c store.Channel) (int64, error)
	InsertVideo(ctx context.Context, v store.Video) (int64, error)
	FindLatestVideoIDByURL(ctx context.Context, canonicalURL string) (int64, error)
}

// channels applies the dedup rule: reuse the stored row for an external
// channel id, otherwise fetch and insert it once.
type channels struct {
	store   Store
	catalog Catalog
	logger  *slog.Logger
	group   singleflight.Group
}

// ensureTimeout bounds a shared channel lookup, which outlives the request
// that started it.
const ensureTimeout = 30 * time.Second

// ensure collapses concurrent lookups of one channel into a single fetch. The
// shared work is detached from the first caller's cancellation; each caller
// still stops waiting when its own ctx ends.
func (c *channels) ensure(ctx context.Context, externalID string) (int64, error) {
	results := c.group.DoChan(externalID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		return c.lookupOrInsert(shared, externalID)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	}
}

func (c *channels) lookupOrInsert(ctx context.Context, externalID string) (int64, error) {
	existing, err := c.store.FindChannelByExternalID(ctx, externalID)
	if err == nil {
		c.logger.Info("resolve: channel reused", "external_channel_id", externalID, "channel_id", existing.ID)
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	info, err := c.catalog.FetchChannel(ctx, externalID)
	if err != nil {
		return 0, &ResolutionError{Op: opFetchChannel, ID: externalID, Err: err}
	}

	id, err := c.store.InsertChannel(ctx, store.Channel{
		ExternalChannelID: externalID,
		Name:              info.Name,
		CanonicalURL:      info.CanonicalURL,
		FirstSeenAt:       time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("resolve: channel inserted", "external_channel_id", externalID, "channel_id", id, "name", info.Name)
	return id, nil
}

type Resolver struct {
	store    Store
	catalog  Catalog
	channels *channels
	logger   *slog.Logger
	now      func() time.Time
}

func New(s Store, c Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    s,
		catalog:  c,
		channels: &channels{store: s, catalog: c, logger: logger},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve classifies rawURL and dispatches to the matching resolver. Invalid
// input is rejected before any catalog or storage access.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (classify.Kind, []string, error) {
	kind := classify.Classify(rawURL)
	switch kind {
	case classify.KindVideo:
		embeds, err := r.ResolveVideo(ctx, rawURL)
		return kind, embeds, err
	case classify.KindChannel:
		embeds, err := r.ResolveChannel(ctx, rawURL)
		return kind, embeds, err
	default:
		return classify.KindInvalid, nil, classify.ErrInvalidURL
	}
}

// ResolveVideo records a fresh row for the video and returns its embed link.
func (r *Resolver) ResolveVideo(ctx context.Context, rawURL string) ([]string, error) {
	videoID, err := classify.VideoID(rawURL)
	if err != nil {
		return nil, err
	}

	info, err := r.catalog.FetchVideo(ctx, videoID)
	if err != nil {
		return nil, &ResolutionError{Op: "fetch video", ID: videoID, Err: err}
	}

	channelID, err := r.channels.ensure(ctx, info.OwnerChannelExternalID)
	if err != nil {
		return nil, err
	}

	id, err := r.store.InsertVideo(ctx, store.Video{
		Title:        info.Title,
		ChannelID:    &channelID,
		CanonicalURL: classify.WatchURL(videoID),
		RetrievedAt:  r.now(),
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("resolve: video inserted", "external_video_id", videoID, "video_id", id, "title", info.Title)

	return []string{classify.EmbedURL(videoID)}, nil
}

// ResolveChannel records the channel's most recent uploads and returns their
// embed links in listing order. Rows inserted before a failure stay committed.
func (r *Resolver) ResolveChannel(ctx context.Context, rawURL string) ([]string, error) {
	externalID, err := r.channelExternalID(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	listed, err := r.catalog.ListRecentVideos(ctx, externalID, RecentVideoLimit)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, externalID)
		}
		return nil, &ResolutionError{Op: "list channel videos", ID: externalID, Err: err}
	}
	if len(listed) == 0 {
		return nil, fmt.Errorf("%w: no videos for %s", ErrChannelNotFound, externalID)
	}

	channelID, err := r.channels.ensure(ctx, externalID)
	if err != nil {
		return nil, err
	}

	embeds := make([]string, 0, len(listed))
	for _, v := range listed {
		if _, err := r.store.InsertVideo(ctx, store.Video{
			Title:        v.Title,
			ChannelID:    &channelID,
			CanonicalURL: classify.WatchURL(v.ExternalID),
			RetrievedAt:  r.now(),
		}); err != nil {
			return nil, err
		}
		embeds = append(embeds, classify.EmbedURL(v.ExternalID))
	}
	r.logger.Info("resolve: channel videos inserted", "external_channel_id", externalID, "channel_id", channelID, "count", len(embeds))

	return embeds, nil
}

func (r *Resolver) channelExternalID(ctx context.Context, rawURL string) (string, error) {
	shape, value, err := classify.ChannelRef(rawURL)
	if err != nil {
		return "", err
	}
	if shape == classify.ChannelByID {
		return value, nil
	}

	id, err := r.catalog.SearchChannel(ctx, value)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, value)
		}
		return "", &ResolutionError{Op: "search channel", ID: value, Err: err}
	}
	return id, nil
}

// FindVideoIDForEmbedURL maps an embed link back to the latest stored row.
// A miss means no resolution preceded the lookup.
func (r *Resolver) FindVideoIDForEmbedURL(ctx context.Context, embedURL string) (int64, error) {
	videoID, err := classify.EmbedVideoID(embedURL)
	if err != nil {
		return 0, err
	}
	id, err := r.store.FindLatestVideoIDByURL(ctx, classify.WatchURL(videoID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("no video row for %s: %w", embedURL, err)
		}
		return 0, err
	}
	return id, nil
}
