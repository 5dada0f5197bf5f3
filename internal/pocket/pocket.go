package pocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tidepool/internal/domain"
)

// AuthError means the subscriber's access token is no longer recognised,
// which we treat as revoked.
type AuthError struct {
	Email  string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("pocket token revoked for %s: %s", e.Email, e.Reason)
}

// Unlinker removes a subscriber's read-later credential.
type Unlinker interface {
	UnlinkPocket(ctx context.Context, email string) error
}

type Client struct {
	apiURL      string
	consumerKey string
	appTag      string
	delay       time.Duration
	client      *http.Client
	log         *slog.Logger
}

func New(apiURL string, consumerKey string, appTag string, delay time.Duration, log *slog.Logger) *Client {
	return &Client{
		apiURL:      apiURL,
		consumerKey: consumerKey,
		appTag:      appTag,
		delay:       delay,
		client:      &http.Client{},
		log:         log,
	}
}

// Submit saves one article URL to a subscriber's read-later account, tagged
// with the application name.
func (c *Client) Submit(ctx context.Context, sub domain.Subscriber, articleURL string) error {
	body, err := json.Marshal(map[string]string{
		"consumer_key": c.consumerKey,
		"access_token": sub.PocketToken,
		"url":          articleURL,
		"tags":         c.appTag,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF8")
	req.Header.Set("X-Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit to pocket: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"email", sub.Email)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Email: sub.Email, Reason: resp.Header.Get("X-Error")}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("submit to pocket: unexpected status %d", resp.StatusCode)
	}

	return nil
}

// FanOut submits an article to every subscriber in turn, pausing between
// submissions to respect the upstream rate limit. A revoked token unlinks
// that subscriber and the fan-out continues; other failures are logged per
// subscriber. Never returns an error.
func (c *Client) FanOut(
	ctx context.Context,
	subs []domain.Subscriber,
	articleURL string,
	unlinker Unlinker,
) {
	for i, sub := range subs {
		if i > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				c.log.InfoContext(ctx, "Pocket fan-out interrupted",
					"error", ctx.Err(),
					"articleURL", articleURL,
					"remaining", len(subs)-i)

				return
			}
		}

		err := c.Submit(ctx, sub, articleURL)
		if err == nil {
			continue
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.log.WarnContext(ctx, "Pocket token revoked, unlinking subscriber",
				"email", sub.Email,
				"reason", authErr.Reason)

			if unlinkErr := unlinker.UnlinkPocket(ctx, sub.Email); unlinkErr != nil {
				c.log.ErrorContext(ctx, "Failed to unlink pocket account",
					"error", unlinkErr,
					"email", sub.Email)
			}

			continue
		}

		c.log.ErrorContext(ctx, "Failed to submit article to pocket",
			"error", err,
			"email", sub.Email,
			"articleURL", articleURL)
	}
}
