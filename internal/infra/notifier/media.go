package notifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"statuswatch/internal/domain/entity"
)

// DefaultMaxMediaBytes caps a single attachment at Discord's upload limit for
// unboosted servers.
const DefaultMaxMediaBytes = 8 << 20

// attachment is one downloaded media file.
type attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// mediaDownloader fetches post media for upload.
type mediaDownloader struct {
	client   *http.Client
	maxBytes int64
	validate func(string) error
}

// downloadAll fetches every image, video and gif of post. Items that fail are
// logged and skipped so the text message is still sent.
func (m mediaDownloader) downloadAll(ctx context.Context, post entity.Post) []attachment {
	var files []attachment
	for i, item := range post.Media {
		switch item.Kind {
		case entity.MediaImage, entity.MediaVideo, entity.MediaGIF:
		default:
			continue
		}
		file, err := m.download(ctx, item.BestURL())
		if err != nil {
			slog.Warn("skipping media attachment",
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("post_id", post.ID),
				slog.Int("index", i),
				slog.Any("error", err))
			continue
		}
		files = append(files, file)
	}
	return files
}

func (m mediaDownloader) download(ctx context.Context, rawURL string) (attachment, error) {
	if err := m.validate(rawURL); err != nil {
		return attachment{}, fmt.Errorf("invalid media url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attachment{}, fmt.Errorf("create media request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return attachment{}, fmt.Errorf("download media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return attachment{}, fmt.Errorf("download media: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return attachment{}, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return attachment{}, fmt.Errorf("media exceeds %d bytes", m.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	return attachment{
		Filename:    mediaFilename(rawURL, contentType),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// mediaFilename takes the last path segment of rawURL and appends an extension
// matching contentType when the name lacks one.
func mediaFilename(rawURL, contentType string) string {
	name := "media"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}

	lower := strings.ToLower(name)
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "jpeg"):
		if !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".jpeg") {
			name += ".jpg"
		}
	case strings.Contains(ct, "png"):
		if !strings.HasSuffix(lower, ".png") {
			name += ".png"
		}
	case strings.Contains(ct, "gif"):
		if !strings.HasSuffix(lower, ".gif") {
			name += ".gif"
		}
	case strings.Contains(ct, "video"):
		if !strings.HasSuffix(lower, ".mp4") && !strings.HasSuffix(lower, ".mov") && !strings.HasSuffix(lower, ".webm") {
			name += ".mp4"
		}
	}
	return name
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
