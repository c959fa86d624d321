package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

// Remote delegates moderation to an HTTP classification service.
type Remote struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewRemote(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type classifyRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	City        string   `json:"city"`
	Photos      []string `json:"photos,omitempty"`
}

func (c *Remote) Classify(ctx context.Context, l models.Listing) (Verdict, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse base URL: %w", err)
	}
	endpoint, err := url.Parse("/api/v1/classify")
	if err != nil {
		return Verdict{}, fmt.Errorf("parse endpoint: %w", err)
	}
	fullURL := baseURL.ResolveReference(endpoint).String()

	body, err := json.Marshal(classifyRequest{
		Title:       l.Title,
		Description: l.Description,
		Category:    string(l.Category),
		City:        l.City,
		Photos:      l.Photos,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("post classifier: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("classifier request failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return Verdict{}, fmt.Errorf("classifier error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var out struct {
		Allowed *bool  `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return Verdict{}, fmt.Errorf("decode classifier response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if out.Allowed == nil {
		return Verdict{}, fmt.Errorf("classifier response without verdict (body=%s)", truncateBody(rawBody))
	}
	return Verdict{Allowed: *out.Allowed, Reason: out.Reason}, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
