package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"statuswatch/internal/domain/entity"
)

// browserUserAgent is sent on every upstream request; some instances reject
// obvious bot agents before any proxy gets a chance.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultStatusLimit is the page size requested from the statuses endpoint.
const DefaultStatusLimit = 40

// APIFetcher reads statuses from a Mastodon-compatible REST API.
type APIFetcher struct {
	transport      Transport
	instance       string
	includeReplies bool
	includeReblogs bool
	limit          int

	mu       sync.Mutex
	accounts map[string]string // handle -> account id
}

// APIOptions tunes the statuses query.
type APIOptions struct {
	IncludeReplies bool
	IncludeReblogs bool
	Limit          int
}

func NewAPIFetcher(transport Transport, instance string, opts APIOptions) *APIFetcher {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultStatusLimit
	}
	return &APIFetcher{
		transport:      transport,
		instance:       instance,
		includeReplies: opts.IncludeReplies,
		includeReblogs: opts.IncludeReblogs,
		limit:          limit,
		accounts:       make(map[string]string),
	}
}

// Fetch returns the handle's latest statuses, newest first.
func (f *APIFetcher) Fetch(ctx context.Context, handle string) ([]entity.Post, error) {
	header := browserHeaders(f.instance, handle, "application/json")

	accountID, err := f.lookupAccount(ctx, handle, header)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("exclude_replies", strconv.FormatBool(!f.includeReplies))
	q.Set("exclude_reblogs", strconv.FormatBool(!f.includeReblogs))
	q.Set("limit", strconv.Itoa(f.limit))
	target := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", f.baseURL(), url.PathEscape(accountID), q.Encode())

	resp, err := f.transport.Get(ctx, target, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		// the cached id went stale (account deleted and recreated)
		f.forgetAccount(handle)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("statuses", resp.StatusCode, resp.Body)
	}
	if len(resp.Body) == 0 {
		return nil, malformed("statuses", errEmptyBody)
	}

	var statuses []apiStatus
	if err := json.Unmarshal(resp.Body, &statuses); err != nil {
		return nil, malformed("statuses", fmt.Errorf("decode statuses: %w", err))
	}

	posts := make([]entity.Post, 0, len(statuses))
	for _, st := range statuses {
		post, err := st.toPost()
		if err != nil {
			slog.Warn("skipping malformed status",
				slog.String("account", handle),
				slog.String("status_id", rawID(st.ID)),
				slog.Any("error", err))
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (f *APIFetcher) lookupAccount(ctx context.Context, handle string, header http.Header) (string, error) {
	f.mu.Lock()
	id, ok := f.accounts[handle]
	f.mu.Unlock()
	if ok {
		return id, nil
	}

	target := fmt.Sprintf("%s/api/v1/accounts/lookup?%s", f.baseURL(), url.Values{"acct": {handle}}.Encode())
	resp, err := f.transport.Get(ctx, target, header)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("account lookup", resp.StatusCode, resp.Body)
	}

	var acct struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &acct); err != nil {
		return "", malformed("account lookup", fmt.Errorf("decode account: %w", err))
	}
	id = rawID(acct.ID)
	if id == "" {
		return "", malformed("account lookup", fmt.Errorf("no account id for %q", handle))
	}

	f.mu.Lock()
	f.accounts[handle] = id
	f.mu.Unlock()

	slog.Debug("resolved upstream account", slog.String("account", handle), slog.String("account_id", id))
	return id, nil
}

func (f *APIFetcher) forgetAccount(handle string) {
	f.mu.Lock()
	delete(f.accounts, handle)
	f.mu.Unlock()
}

func (f *APIFetcher) baseURL() string {
	return instanceURL(f.instance)
}

type apiAccount struct {
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
}

type apiMedia struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
}

type apiStatus struct {
	ID               json.RawMessage `json:"id"`
	CreatedAt        string          `json:"created_at"`
	Content          string          `json:"content"`
	URL              string          `json:"url"`
	URI              string          `json:"uri"`
	InReplyToID      json.RawMessage `json:"in_reply_to_id"`
	Reblog           *apiStatus      `json:"reblog"`
	Account          apiAccount      `json:"account"`
	MediaAttachments []apiMedia      `json:"media_attachments"`
}

func (st apiStatus) toPost() (entity.Post, error) {
	created, err := time.Parse(time.RFC3339Nano, st.CreatedAt)
	if err != nil && st.CreatedAt != "" {
		return entity.Post{}, fmt.Errorf("created_at %q: %w", st.CreatedAt, err)
	}

	post := entity.Post{
		ID:        rawID(st.ID),
		CreatedAt: created,
		Text:      st.Content,
		Type:      entity.PostTypePost,
		URL:       st.URL,
		Account: entity.Account{
			Username:    st.Account.Username,
			DisplayName: st.Account.DisplayName,
		},
	}
	if post.URL == "" {
		post.URL = st.URI
	}

	media := st.MediaAttachments
	switch {
	case st.Reblog != nil:
		post.Type = entity.PostTypeReblog
		// a reblog carries the original's content, not its own
		if post.Text == "" {
			post.Text = st.Reblog.Content
		}
		if len(media) == 0 {
			media = st.Reblog.MediaAttachments
		}
	case rawID(st.InReplyToID) != "":
		post.Type = entity.PostTypeReply
	}

	for _, m := range media {
		kind, ok := entity.ParseMediaKind(m.Type)
		if !ok {
			continue
		}
		item := entity.MediaItem{URL: m.URL, Kind: kind, PreviewURL: m.PreviewURL}
		if item.BestURL() == "" {
			continue
		}
		post.Media = append(post.Media, item)
	}

	if err := entity.ValidatePost(post); err != nil {
		return entity.Post{}, err
	}
	return post, nil
}

// rawID accepts both string and numeric JSON ids; null and absent give "".
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func instanceURL(instance string) string {
	if u, err := url.Parse(instance); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return "https://" + instance
}

func browserHeaders(instance, handle, accept string) http.Header {
	base := instanceURL(instance)
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Referer", base+"/@"+handle)
	h.Set("Origin", base)
	return h
}
