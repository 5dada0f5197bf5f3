package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

// ErrNoFeedFound means the site advertises no feed and no feed-like link
// could be scraped from its anchors.
var ErrNoFeedFound = errors.New("no RSS or Atom feed found")

// Anchors whose href ends in a feed-like path segment, with or without a
// trailing slash or .xml suffix.
var feedHrefRe = regexp.MustCompile(`(?i)(/(feed|rss|rss2|atom)/?|(feed|rss|rss2|atom)\.xml)$`)

// Discovery is a located feed candidate for a site.
type Discovery struct {
	Site  string
	Feed  string
	Title string
}

// Validation is the interactive feed check used at registration time. It
// reports rather than errors so the registration flow can show the reason.
type Validation struct {
	OK     bool
	Reason string
}

type Finder struct {
	client  *http.Client
	fetcher *Fetcher
	log     *slog.Logger
}

func NewFinder(fetcher *Fetcher, log *slog.Logger) *Finder {
	return &Finder{
		client:  &http.Client{},
		fetcher: fetcher,
		log:     log,
	}
}

// Discover locates a feed in the fetched HTML body of siteURL. It prefers a
// head link element advertising a feed type; failing that it scans anchors
// for feed-like hrefs. Relative candidates are resolved against the site's
// scheme and host.
func (f *Finder) Discover(siteURL string, body io.Reader) (*Discovery, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())

	link := doc.Find(`link[type="application/rss+xml"]`).First()
	if link.Length() == 0 {
		link = doc.Find(`link[type="application/atom+xml"]`).First()
	}

	if href, ok := link.Attr("href"); ok && strings.TrimSpace(href) != "" {
		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = pageTitle
		}

		feedURL, resolveErr := resolveFeedURL(siteURL, href)
		if resolveErr != nil {
			return nil, resolveErr
		}

		return &Discovery{Site: siteURL, Feed: feedURL, Title: title}, nil
	}

	// Some sites have a feed but never list it in the head.
	var anchorHref string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}

		href = strings.TrimSpace(href)
		if href == "" || !feedHrefRe.MatchString(href) {
			return true
		}

		anchorHref = href

		return false
	})

	if anchorHref == "" {
		return nil, fmt.Errorf("%w at %s", ErrNoFeedFound, siteURL)
	}

	feedURL, err := resolveFeedURL(siteURL, anchorHref)
	if err != nil {
		return nil, err
	}

	return &Discovery{Site: siteURL, Feed: feedURL, Title: pageTitle}, nil
}

// DiscoverSite fetches the site HTML and discovers its feed.
func (f *Finder) DiscoverSite(ctx context.Context, siteURL string) (*Discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch site: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.log.WarnContext(ctx, "Failed to close response body",
				"error", closeErr,
				"siteURL", siteURL)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch site %s: unexpected status %d", siteURL, resp.StatusCode)
	}

	return f.Discover(siteURL, resp.Body)
}

// Validate confirms a candidate feed URL actually parses as a feed.
func (f *Finder) Validate(ctx context.Context, feedURL string) Validation {
	if _, err := f.fetcher.Fetch(ctx, feedURL); err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == FetchNotFound {
			return Validation{Reason: "URL does not exist"}
		}

		return Validation{Reason: err.Error()}
	}

	return Validation{OK: true}
}

// SiteURLs extracts https URLs from free registration text.
func SiteURLs(text string) ([]string, error) {
	httpsURLRe, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	var urls []string
	seen := make(map[string]struct{})

	for _, u := range httpsURLRe.FindAllString(strings.TrimSpace(text), -1) {
		u = strings.TrimSpace(u)
		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	return urls, nil
}

func resolveFeedURL(siteURL string, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse feed URL: %w", err)
	}

	if ref.IsAbs() {
		return ref.String(), nil
	}

	site, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return "", fmt.Errorf("parse site URL: %w", err)
	}

	base := &url.URL{Scheme: site.Scheme, Host: site.Host}

	return base.ResolveReference(ref).String(), nil
}
