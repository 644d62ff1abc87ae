package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuswatch/internal/domain/entity"
)

const statusesJSON = `[
  {
    "id": "113000000000000003",
    "created_at": "2025-03-01T12:02:00.000Z",
    "content": "<p>third</p>",
    "url": "https://social.example/@alice/113000000000000003",
    "in_reply_to_id": null,
    "reblog": null,
    "account": {"username": "alice", "display_name": "Alice"},
    "media_attachments": [
      {"type": "image", "url": "https://cdn.example/a.png", "preview_url": "https://cdn.example/a_small.png"},
      {"type": "gifv", "url": "", "preview_url": "https://cdn.example/b.mp4"},
      {"type": "audio", "url": "https://cdn.example/c.mp3"}
    ]
  },
  {
    "id": "113000000000000002",
    "created_at": "2025-03-01T12:01:00.000Z",
    "content": "<p>reply</p>",
    "in_reply_to_id": "113000000000000001",
    "account": {"username": "alice", "display_name": "Alice"},
    "media_attachments": []
  },
  {
    "id": "113000000000000001",
    "created_at": "2025-03-01T12:00:00.000Z",
    "content": "",
    "reblog": {"id": "9", "content": "<p>boosted</p>", "media_attachments": [{"type": "video", "url": "https://cdn.example/v.mp4"}]},
    "account": {"username": "alice", "display_name": ""},
    "media_attachments": []
  },
  {
    "id": "",
    "created_at": "2025-03-01T11:00:00.000Z",
    "content": "no id"
  }
]`

type mastodonServer struct {
	*httptest.Server
	lookups   atomic.Int32
	statuses  atomic.Int32
	lastQuery atomic.Value
	lastUA    atomic.Value
}

func newMastodonServer(t *testing.T, statusCode int, body string) *mastodonServer {
	t.Helper()
	ms := &mastodonServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/lookup", func(w http.ResponseWriter, r *http.Request) {
		ms.lookups.Add(1)
		if r.URL.Query().Get("acct") != "alice" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, `{"id": 107780257626128497, "username": "alice"}`)
	})
	mux.HandleFunc("/api/v1/accounts/107780257626128497/statuses", func(w http.ResponseWriter, r *http.Request) {
		ms.statuses.Add(1)
		ms.lastQuery.Store(r.URL.RawQuery)
		ms.lastUA.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(statusCode)
		_, _ = fmt.Fprint(w, body)
	})
	ms.Server = httptest.NewServer(mux)
	t.Cleanup(ms.Close)
	return ms
}

func directTransport(t *testing.T) *DirectTransport {
	t.Helper()
	tr, err := NewDirectTransport(5*time.Second, "")
	require.NoError(t, err)
	return tr
}

func TestAPIFetcher_Fetch(t *testing.T) {
	srv := newMastodonServer(t, http.StatusOK, statusesJSON)
	f := NewAPIFetcher(directTransport(t), srv.URL, APIOptions{IncludeReplies: true, IncludeReblogs: true})

	posts, err := f.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, posts, 3, "the status without id is dropped")

	first := posts[0]
	assert.Equal(t, "113000000000000003", first.ID)
	assert.Equal(t, entity.PostTypePost, first.Type)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 2, 0, 0, time.UTC), first.CreatedAt.UTC())
	assert.Equal(t, entity.Account{Username: "alice", DisplayName: "Alice"}, first.Account)
	assert.Equal(t, []entity.MediaItem{
		{URL: "https://cdn.example/a.png", Kind: entity.MediaImage, PreviewURL: "https://cdn.example/a_small.png"},
		{URL: "", Kind: entity.MediaGIF, PreviewURL: "https://cdn.example/b.mp4"},
	}, first.Media)

	assert.Equal(t, entity.PostTypeReply, posts[1].Type)

	reblog := posts[2]
	assert.Equal(t, entity.PostTypeReblog, reblog.Type)
	assert.Equal(t, "<p>boosted</p>", reblog.Text)
	require.Len(t, reblog.Media, 1)
	assert.Equal(t, entity.MediaVideo, reblog.Media[0].Kind)

	assert.Equal(t, "exclude_reblogs=false&exclude_replies=false&limit=40", srv.lastQuery.Load())
	assert.Equal(t, browserUserAgent, srv.lastUA.Load())
}

func TestAPIFetcher_CachesAccountID(t *testing.T) {
	srv := newMastodonServer(t, http.StatusOK, `[]`)
	f := NewAPIFetcher(directTransport(t), srv.URL, APIOptions{})

	for i := 0; i < 3; i++ {
		posts, err := f.Fetch(context.Background(), "alice")
		require.NoError(t, err)
		assert.Empty(t, posts)
	}

	assert.Equal(t, int32(1), srv.lookups.Load())
	assert.Equal(t, int32(3), srv.statuses.Load())
	assert.Equal(t, "exclude_reblogs=true&exclude_replies=true&limit=40", srv.lastQuery.Load())
}

func TestAPIFetcher_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		body     string
		wantKind FetchErrorKind
	}{
		{name: "forbidden", code: http.StatusForbidden, body: "cf challenge", wantKind: KindBlocked},
		{name: "rate limited", code: http.StatusTooManyRequests, body: "slow down", wantKind: KindBlocked},
		{name: "server error", code: http.StatusBadGateway, body: "bad gateway", wantKind: KindTransport},
		{name: "gateway timeout", code: http.StatusGatewayTimeout, body: "", wantKind: KindTimeout},
		{name: "not json", code: http.StatusOK, body: "<html>challenge</html>", wantKind: KindMalformed},
		{name: "empty", code: http.StatusOK, body: "", wantKind: KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMastodonServer(t, tt.code, tt.body)
			f := NewAPIFetcher(directTransport(t), srv.URL, APIOptions{})

			_, err := f.Fetch(context.Background(), "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrFetch)
			assert.Equal(t, tt.wantKind, kindOf(err))
		})
	}
}

func TestAPIFetcher_UnknownAccount(t *testing.T) {
	srv := newMastodonServer(t, http.StatusOK, `[]`)
	f := NewAPIFetcher(directTransport(t), srv.URL, APIOptions{})

	_, err := f.Fetch(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, KindBlocked, kindOf(err))
	assert.Equal(t, int32(0), srv.statuses.Load())
}

func TestAPIFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewAPIFetcher(directTransport(t), addr, APIOptions{})
	_, err := f.Fetch(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, KindTransport, kindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestRawID(t *testing.T) {
	assert.Equal(t, "123", rawID([]byte(`"123"`)))
	assert.Equal(t, "107780257626128497", rawID([]byte(`107780257626128497`)))
	assert.Equal(t, "", rawID([]byte(`null`)))
	assert.Equal(t, "", rawID(nil))
	assert.Equal(t, "", rawID([]byte(`{}`)))
}

func TestBrowserHeaders(t *testing.T) {
	h := browserHeaders("truthsocial.com", "alice", "application/json")

	assert.Equal(t, "https://truthsocial.com/@alice", h.Get("Referer"))
	assert.Equal(t, "https://truthsocial.com", h.Get("Origin"))
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, "en-US,en;q=0.5", h.Get("Accept-Language"))
}
