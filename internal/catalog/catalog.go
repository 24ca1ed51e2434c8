// Package catalog wraps the YouTube Data API v3 calls the resolvers need.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrNotFound is returned when the catalog has no item for the id or the
// response carries an empty payload.
var ErrNotFound = errors.New("catalog: not found")

// APIError is any other catalog failure. Callers do not retry it.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

type Channel struct {
	ExternalID   string
	Name         string
	CanonicalURL string
}

type Video struct {
	ExternalID             string
	Title                  string
	OwnerChannelExternalID string
}

type ListedVideo struct {
	ExternalID string
	Title      string
}

type Config struct {
	APIKey string

	// Endpoint overrides the API base URL. HTTPClient replaces the
	// key-authenticated transport. Both are meant for tests.
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
	CacheSize  int
	Logger     *slog.Logger
}

type Client struct {
	svc      *youtube.Service
	timeout  time.Duration
	searches *lru.Cache[string, string]
	logger   *slog.Logger
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.HTTPClient == nil {
		return nil, fmt.Errorf("catalog: api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	searches, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}

	return &Client{
		svc:      svc,
		timeout:  cfg.Timeout,
		searches: searches,
		logger:   cfg.Logger,
	}, nil
}

func (c *Client) FetchChannel(ctx context.Context, externalChannelID string) (Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Channels.List([]string{"snippet"}).Id(externalChannelID).Context(ctx).Do()
	if err != nil {
		return Channel{}, mapError("fetch channel", err)
	}
	if resp == nil || len(resp.Items) == 0 || resp.Items[0].Snippet == nil || resp.Items[0].Snippet.Title == "" {
		return Channel{}, ErrNotFound
	}

	return Channel{
		ExternalID:   externalChannelID,
		Name:         resp.Items[0].Snippet.Title,
		CanonicalURL: "https://www.youtube.com/channel/" + externalChannelID,
	}, nil
}

func (c *Client) FetchVideo(ctx context.Context, externalVideoID string) (Video, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Videos.List([]string{"snippet"}).Id(externalVideoID).Context(ctx).Do()
	if err != nil {
		return Video{}, mapError("fetch video", err)
	}
	if resp == nil || len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return Video{}, ErrNotFound
	}
	snippet := resp.Items[0].Snippet
	if snippet.Title == "" || snippet.ChannelId == "" {
		return Video{}, ErrNotFound
	}

	return Video{
		ExternalID:             externalVideoID,
		Title:                  snippet.Title,
		OwnerChannelExternalID: snippet.ChannelId,
	}, nil
}

// SearchChannel finds the channel id for a handle or legacy username.
// Search calls are expensive in quota, so answers are cached.
func (c *Client) SearchChannel(ctx context.Context, query string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if id, ok := c.searches.Get(key); ok {
		c.logger.Info("catalog: search cache hit", "query", query, "channel_id", id)
		return id, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", mapError("search channel", err)
	}
	if resp == nil || len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
		return "", ErrNotFound
	}

	id := resp.Items[0].Id.ChannelId
	c.searches.Add(key, id)
	return id, nil
}

// ListRecentVideos returns up to limit uploads, most recent first.
func (c *Client) ListRecentVideos(ctx context.Context, externalChannelID string, limit int) ([]ListedVideo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Search.List([]string{"snippet"}).
		ChannelId(externalChannelID).
		Type("video").
		Order("date").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("list channel videos", err)
	}
	if resp == nil {
		return nil, nil
	}

	videos := make([]ListedVideo, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		title := ""
		if item.Snippet != nil {
			title = item.Snippet.Title
		}
		videos = append(videos, ListedVideo{ExternalID: item.Id.VideoId, Title: title})
		if len(videos) == limit {
			break
		}
	}
	return videos, nil
}

func mapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return ErrNotFound
		}
		return &APIError{Op: op, StatusCode: gerr.Code, Err: err}
	}
	return &APIError{Op: op, Err: err}
}
