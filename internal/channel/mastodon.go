package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"tidepool/internal/domain"
)

// Mastodon posts statuses to a Mastodon-compatible instance. A non-empty
// content warning becomes the status spoiler text.
type Mastodon struct {
	baseURL string
	token   string
	client  *http.Client
	log     *slog.Logger
}

func NewMastodon(baseURL string, token string, log *slog.Logger) *Mastodon {
	return &Mastodon{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		client:  &http.Client{},
		log:     log,
	}
}

func (m *Mastodon) Type() domain.Channel {
	return domain.ChannelToot
}

func (m *Mastodon) Post(ctx context.Context, message string, contentWarning string) error {
	payload := map[string]string{
		"status": message,
	}
	if contentWarning != "" {
		payload["spoiler_text"] = contentWarning
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Channel: m.Type(), Err: fmt.Errorf("marshal status: %w", err)}
	}

	endpoint := m.baseURL + "/api/v1/statuses"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: m.Type(), Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		return &Error{Channel: m.Type(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			m.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"endpoint", endpoint)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &Error{Channel: m.Type(), StatusCode: resp.StatusCode}
	}

	return nil
}
