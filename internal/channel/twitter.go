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

// Twitter posts tweets through the v2 API. The tweet channel has no
// content-warning support, so the warning argument is ignored.
type Twitter struct {
	baseURL string
	bearer  string
	client  *http.Client
	log     *slog.Logger
}

func NewTwitter(baseURL string, bearer string, log *slog.Logger) *Twitter {
	return &Twitter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		bearer:  bearer,
		client:  &http.Client{},
		log:     log,
	}
}

func (t *Twitter) Type() domain.Channel {
	return domain.ChannelTweet
}

func (t *Twitter) Post(ctx context.Context, message string, _ string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return &Error{Channel: t.Type(), Err: fmt.Errorf("marshal tweet: %w", err)}
	}

	endpoint := t.baseURL + "/2/tweets"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: t.Type(), Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.bearer)

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Channel: t.Type(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"endpoint", endpoint)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &Error{Channel: t.Type(), StatusCode: resp.StatusCode}
	}

	return nil
}
