package events

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

const maxImageBytes = 10 << 20

type HTTPDownloader struct {
	client *http.Client
}

func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDownloader{client: &http.Client{Timeout: timeout}}
}

// Download fetches one image. Non-image responses and bodies over 10MB are
// rejected.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Media{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return Media{}, fmt.Errorf("unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Media{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return Media{}, fmt.Errorf("image size %d out of range", len(data))
	}

	return Media{
		URL:         url,
		Filename:    imageFilename(req.URL.Path, contentType),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func imageFilename(p, contentType string) string {
	name := path.Base(p)
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "/" || name == "." {
		name = "photo"
	}
	if path.Ext(name) == "" {
		ext := ".jpg"
		switch {
		case strings.Contains(contentType, "png"):
			ext = ".png"
		case strings.Contains(contentType, "webp"):
			ext = ".webp"
		}
		name += ext
	}
	return name
}
