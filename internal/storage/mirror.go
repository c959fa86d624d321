// Package storage re-hosts scraped listing photos on S3 so listings survive
// the source site removing or hot-link protecting its images.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxPhotoBytes = 10 << 20

type photoUploader interface {
	Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error)
}

// PhotoMirror downloads source photos and uploads them to the bucket.
type PhotoMirror struct {
	uploader   photoUploader
	httpClient *http.Client
	userAgent  string
	log        *slog.Logger
}

func NewPhotoMirror(uploader *Uploader, timeout time.Duration, userAgent string, log *slog.Logger) *PhotoMirror {
	return newPhotoMirror(uploader, timeout, userAgent, log)
}

func newPhotoMirror(uploader photoUploader, timeout time.Duration, userAgent string, log *slog.Logger) *PhotoMirror {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PhotoMirror{
		uploader:   uploader,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		log:        log,
	}
}

// Mirror returns the photo list with every successfully re-hosted URL
// replaced. A photo that fails keeps its original URL.
func (m *PhotoMirror) Mirror(ctx context.Context, folder string, photos []string) []string {
	out := make([]string, 0, len(photos))
	for _, src := range photos {
		hosted, err := m.mirrorOne(ctx, folder, src)
		if err != nil {
			if m.log != nil {
				m.log.Warn("mirror photo failed", "url", src, "err", err)
			}
			out = append(out, src)
			continue
		}
		out = append(out, hosted)
	}
	return out
}

func (m *PhotoMirror) mirrorOne(ctx context.Context, folder, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", fmt.Errorf("download photo: unexpected content type %q", contentType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return "", fmt.Errorf("photo larger than %d bytes", maxPhotoBytes)
	}
	return m.uploader.Upload(ctx, folder, data, contentType)
}
