package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create catalog client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestFetchVideo_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/youtube/v3/videos" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "abc123" {
			t.Errorf("expected id=abc123, got %q", got)
		}
		writeJSON(w, http.StatusOK, `{"items":[{"id":"abc123","snippet":{"title":"T","channelId":"chXYZ"}}]}`)
	})

	v, err := c.FetchVideo(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Title != "T" {
		t.Errorf("expected title %q, got %q", "T", v.Title)
	}
	if v.OwnerChannelExternalID != "chXYZ" {
		t.Errorf("expected channel %q, got %q", "chXYZ", v.OwnerChannelExternalID)
	}
	if v.ExternalID != "abc123" {
		t.Errorf("expected id %q, got %q", "abc123", v.ExternalID)
	}
}

func TestFetchVideo_EmptyItemsIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"items":[]}`)
	})

	_, err := c.FetchVideo(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchVideo_MissingChannelIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"items":[{"id":"abc","snippet":{"title":"T"}}]}`)
	})

	_, err := c.FetchVideo(context.Background(), "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchVideo_HTTP404IsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":404,"message":"not found"}}`)
	})

	_, err := c.FetchVideo(context.Background(), "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchVideo_ServerErrorIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	})

	_, err := c.FetchVideo(context.Background(), "abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", apiErr.StatusCode)
	}
	if apiErr.Op != "fetch video" {
		t.Errorf("expected op %q, got %q", "fetch video", apiErr.Op)
	}
}

func TestFetchChannel_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/youtube/v3/channels" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, `{"items":[{"id":"chXYZ","snippet":{"title":"Creator"}}]}`)
	})

	ch, err := c.FetchChannel(context.Background(), "chXYZ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Name != "Creator" {
		t.Errorf("expected name %q, got %q", "Creator", ch.Name)
	}
	if ch.CanonicalURL != "https://www.youtube.com/channel/chXYZ" {
		t.Errorf("unexpected canonical url %q", ch.CanonicalURL)
	}
}

func TestFetchChannel_EmptyIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	_, err := c.FetchChannel(context.Background(), "chXYZ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchChannel_CachesResult(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/youtube/v3/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("type"); got != "channel" {
			t.Errorf("expected type=channel, got %q", got)
		}
		writeJSON(w, http.StatusOK, `{"items":[{"id":{"kind":"youtube#channel","channelId":"UCfound"}}]}`)
	})

	for i := 0; i < 3; i++ {
		id, err := c.SearchChannel(context.Background(), "SomeCreator")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "UCfound" {
			t.Errorf("expected UCfound, got %q", id)
		}
	}
	if _, err := c.SearchChannel(context.Background(), "somecreator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream search, got %d", got)
	}
}

func TestSearchChannel_NoResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"items":[]}`)
	})

	_, err := c.SearchChannel(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentVideos_PreservesOrderAndSkipsNonVideos(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("channelId") != "UC1" {
			t.Errorf("expected channelId=UC1, got %q", q.Get("channelId"))
		}
		if q.Get("order") != "date" {
			t.Errorf("expected order=date, got %q", q.Get("order"))
		}
		if q.Get("maxResults") != "5" {
			t.Errorf("expected maxResults=5, got %q", q.Get("maxResults"))
		}
		writeJSON(w, http.StatusOK, `{"items":[
			{"id":{"videoId":"v3"},"snippet":{"title":"Third"}},
			{"id":{"playlistId":"PL1"},"snippet":{"title":"A playlist"}},
			{"id":{"videoId":"v2"},"snippet":{"title":"Second"}},
			{"id":{"videoId":"v1"},"snippet":{"title":"First"}}
		]}`)
	})

	videos, err := c.ListRecentVideos(context.Background(), "UC1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []ListedVideo{
		{ExternalID: "v3", Title: "Third"},
		{ExternalID: "v2", Title: "Second"},
		{ExternalID: "v1", Title: "First"},
	}
	if len(videos) != len(want) {
		t.Fatalf("expected %d videos, got %d", len(want), len(videos))
	}
	for i := range want {
		if videos[i] != want[i] {
			t.Errorf("video %d: expected %+v, got %+v", i, want[i], videos[i])
		}
	}
}

func TestFetchVideo_TimesOut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	})
	c.timeout = 50 * time.Millisecond

	_, err := c.FetchVideo(context.Background(), "slow")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError on timeout, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
