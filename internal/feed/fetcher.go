package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

type FetchErrorKind string

const (
	FetchTimeout      FetchErrorKind = "timeout"
	FetchNotFound     FetchErrorKind = "not_found"
	FetchParseError   FetchErrorKind = "parse_error"
	FetchNetworkError FetchErrorKind = "network_error"
)

// FetchError is a per-feed failure. The caller marks the owning blog
// failing and moves on, it never aborts the batch.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}

	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Item is one normalized feed entry before ingestion filtering.
type Item struct {
	Title     string
	Link      string
	GUID      string
	Author    string
	Published time.Time
	Tags      []string
	FeedTitle string
}

type Fetcher struct {
	client  *http.Client
	parser  *gofeed.Parser
	timeout time.Duration
	log     *slog.Logger
}

func NewFetcher(timeout time.Duration, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{},
		parser:  gofeed.NewParser(),
		timeout: timeout,
		log:     log,
	}
}

// Fetch retrieves and parses one feed URL into normalized items. It never
// hangs past the configured timeout. Failures come back as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, &FetchError{Kind: FetchNetworkError, URL: feedURL, Err: errors.New("feed URL is empty")}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetworkError, URL: feedURL, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(err), URL: feedURL, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"feedURL", feedURL)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &FetchError{Kind: FetchNotFound, URL: feedURL}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{
			Kind: FetchNetworkError,
			URL:  feedURL,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Kind: FetchTimeout, URL: feedURL, Err: err}
		}

		return nil, &FetchError{Kind: FetchParseError, URL: feedURL, Err: err}
	}

	feedTitle := strings.TrimSpace(parsed.Title)

	items := make([]Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		item, ok := f.normalizeItem(ctx, feedURL, feedTitle, raw)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (f *Fetcher) normalizeItem(
	ctx context.Context,
	feedURL string,
	feedTitle string,
	raw *gofeed.Item,
) (Item, bool) {
	link := strings.TrimSpace(raw.Link)
	if link == "" {
		f.log.WarnContext(ctx, "Skipping feed item with empty link",
			"feedURL", feedURL,
			"itemTitle", strings.TrimSpace(raw.Title))

		return Item{}, false
	}

	var published time.Time
	switch {
	case raw.PublishedParsed != nil:
		published = *raw.PublishedParsed
	case raw.UpdatedParsed != nil:
		published = *raw.UpdatedParsed
	default:
		// Undated entries are usually stray pages that leaked into the
		// feed, not posts.
		f.log.WarnContext(ctx, "Skipping feed item without publish date",
			"feedURL", feedURL,
			"itemLink", link)

		return Item{}, false
	}

	guid := strings.TrimSpace(raw.GUID)
	if guid == "" {
		guid = link
	}

	var author string
	if raw.Author != nil {
		author = strings.TrimSpace(raw.Author.Name)
	}

	return Item{
		Title:     strings.TrimSpace(raw.Title),
		Link:      link,
		GUID:      guid,
		Author:    author,
		Published: published,
		Tags:      raw.Categories,
		FeedTitle: feedTitle,
	}, true
}

func classifyTransportError(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}

	return FetchNetworkError
}
