package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"

	"statuswatch/internal/domain/entity"
)

// RSSFetcher reads the account's public RSS feed (https://<instance>/@<handle>.rss).
// It needs no account lookup but cannot tell replies from posts.
type RSSFetcher struct {
	transport Transport
	instance  string
}

func NewRSSFetcher(transport Transport, instance string) *RSSFetcher {
	return &RSSFetcher{transport: transport, instance: instance}
}

// Fetch returns the feed items as posts in feed order, newest first.
func (f *RSSFetcher) Fetch(ctx context.Context, handle string) ([]entity.Post, error) {
	target := fmt.Sprintf("%s/@%s.rss", instanceURL(f.instance), url.PathEscape(handle))
	header := browserHeaders(f.instance, handle, "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.transport.Get(ctx, target, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("rss", resp.StatusCode, resp.Body)
	}
	if len(resp.Body) == 0 {
		return nil, malformed("rss", errEmptyBody)
	}

	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(resp.Body))
	if err != nil {
		return nil, malformed("rss", fmt.Errorf("parse feed: %w", err))
	}

	account := entity.Account{Username: handle}
	if feed.Author != nil {
		account.DisplayName = feed.Author.Name
	}

	posts := make([]entity.Post, 0, len(feed.Items))
	for _, it := range feed.Items {
		post := itemToPost(it, account)
		if err := entity.ValidatePost(post); err != nil {
			slog.Warn("skipping malformed feed item",
				slog.String("account", handle),
				slog.String("guid", it.GUID),
				slog.Any("error", err))
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func itemToPost(it *gofeed.Item, account entity.Account) entity.Post {
	post := entity.Post{
		ID:      itemID(it),
		Text:    it.Description,
		Type:    entity.PostTypePost,
		URL:     it.Link,
		Account: account,
	}
	if it.Content != "" {
		post.Text = it.Content
	}
	if it.PublishedParsed != nil {
		post.CreatedAt = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		post.CreatedAt = *it.UpdatedParsed
	}

	seen := make(map[string]bool)
	add := func(rawURL, mimeOrMedium string) {
		if rawURL == "" || seen[rawURL] {
			return
		}
		kind, ok := mediaKindFromMIME(mimeOrMedium)
		if !ok {
			return
		}
		seen[rawURL] = true
		post.Media = append(post.Media, entity.MediaItem{URL: rawURL, Kind: kind})
	}

	for _, enc := range it.Enclosures {
		add(enc.URL, enc.Type)
	}
	// Mastodon publishes attachments as <media:content url=".." type=".." medium="..">
	for _, ext := range it.Extensions["media"]["content"] {
		kind := ext.Attrs["type"]
		if kind == "" {
			kind = ext.Attrs["medium"]
		}
		add(ext.Attrs["url"], kind)
	}
	return post
}

// itemID prefers the trailing numeric segment of the GUID, which matches the
// status id the API returns, so switching modes does not re-deliver posts.
func itemID(it *gofeed.Item) string {
	raw := it.GUID
	if raw == "" {
		raw = it.Link
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		if last := path.Base(strings.TrimSuffix(u.Path, "/")); last != "" && last != "/" && last != "." {
			return last
		}
	}
	return raw
}

func mediaKindFromMIME(v string) (entity.MediaKind, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "image/gif", v == "gifv":
		return entity.MediaGIF, true
	case strings.HasPrefix(v, "image"):
		return entity.MediaImage, true
	case strings.HasPrefix(v, "video"):
		return entity.MediaVideo, true
	default:
		return "", false
	}
}
