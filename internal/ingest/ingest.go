package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tidepool/internal/announce"
	"tidepool/internal/config"
	"tidepool/internal/database"
	"tidepool/internal/domain"
	"tidepool/internal/feed"
	"tidepool/internal/pocket"
)

const checkFeedsMaxConcurrencyGrowthFactor = 10

// FeedFetcher retrieves and parses a single feed URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feed.Item, error)
}

// Pipeline runs the per-tick fetch, filter, store, compose, queue and
// fan-out sequence for every approved, non-suspended blog.
type Pipeline struct {
	db       *database.Database
	fetcher  FeedFetcher
	composer *announce.Composer
	pocket   *pocket.Client // nil when the read-later fan-out is disabled
	policy   *config.Policy
	lower    cases.Caser
	excluded map[string]struct{}
	included map[string]struct{}
	log      *slog.Logger
}

func New(
	db *database.Database,
	fetcher FeedFetcher,
	composer *announce.Composer,
	pocketClient *pocket.Client,
	policy *config.Policy,
	log *slog.Logger,
) *Pipeline {
	lower := cases.Lower(language.Make(policy.Locale))

	return &Pipeline{
		db:       db,
		fetcher:  fetcher,
		composer: composer,
		pocket:   pocketClient,
		policy:   policy,
		lower:    lower,
		excluded: tagSet(policy.ExcludedTags, lower),
		included: tagSet(policy.IncludedTags, lower),
		log:      log,
	}
}

// CheckFeeds polls every approved, non-suspended blog concurrently. Each
// blog's fetch-filter-insert sequence is independent, one bad feed never
// aborts the batch. Overlapping ticks are tolerated, the existence check
// absorbs duplicate processing of the same feed.
func (p *Pipeline) CheckFeeds(ctx context.Context) error {
	blogs, err := p.db.ListApprovedUnsuspendedBlogs(ctx)
	if err != nil {
		return fmt.Errorf("list blogs: %w", err)
	}
	if len(blogs) == 0 {
		return nil
	}

	var writeWg sync.WaitGroup

	concurrency := min(runtime.NumCPU()*checkFeedsMaxConcurrencyGrowthFactor, len(blogs))
	semCh := make(chan struct{}, concurrency)
	errCh := make(chan error, len(blogs))

	for _, blog := range blogs {
		writeWg.Add(1)
		semCh <- struct{}{}

		go func(copiedBlog domain.Blog) {
			defer writeWg.Done()

			if checkErr := p.checkBlog(ctx, &copiedBlog); checkErr != nil {
				errCh <- checkErr
			}

			<-semCh
		}(blog)
	}

	writeWg.Wait()
	close(semCh)
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (p *Pipeline) checkBlog(ctx context.Context, blog *domain.Blog) error {
	items, err := p.fetcher.Fetch(ctx, blog.Feed)
	if err != nil {
		if setErr := p.db.SetBlogFailing(ctx, blog.ID, true); setErr != nil {
			p.log.ErrorContext(ctx, "Failed to mark blog as failing",
				"error", setErr,
				"blogURL", blog.URL)
		}

		return fmt.Errorf("check blog %s: %w", blog.URL, err)
	}

	if blog.Failing {
		if setErr := p.db.SetBlogFailing(ctx, blog.ID, false); setErr != nil {
			p.log.ErrorContext(ctx, "Failed to clear failing flag",
				"error", setErr,
				"blogURL", blog.URL)
		}
	}

	now := time.Now().UTC()
	cutoff := now.Add(-p.policy.RecencyCutoff())

	for _, item := range items {
		article, ingestErr := p.ingestItem(ctx, blog, item)
		if ingestErr != nil {
			p.log.ErrorContext(ctx, "Failed to ingest feed item",
				"error", ingestErr,
				"blogURL", blog.URL,
				"itemLink", item.Link)

			continue
		}
		if article == nil {
			continue
		}

		p.log.InfoContext(ctx, "Article is ingested",
			"articleID", article.ID,
			"blogURL", blog.URL,
			"link", article.Link)

		// Old posts are kept for the hub but never announced.
		if article.PublishedAt.After(cutoff) {
			p.announceArticle(ctx, blog, article, now)
		}
	}

	return nil
}

// ingestItem applies the ingestion filter and inserts the item when it
// survives. A nil article with nil error means the item was filtered out.
func (p *Pipeline) ingestItem(
	ctx context.Context,
	blog *domain.Blog,
	item feed.Item,
) (*domain.Article, error) {
	tags := p.normalizeTags(item.Tags)

	for _, tag := range tags {
		if _, ok := p.excluded[tag]; ok {
			return nil, nil
		}
	}

	// Posts published during a suspension window stay excluded even after
	// the blog is unsuspended.
	if blog.SuspensionEndsAt != nil && !item.Published.After(*blog.SuspensionEndsAt) {
		return nil, nil
	}

	if len(p.included) > 0 {
		var hit bool
		for _, tag := range tags {
			if _, ok := p.included[tag]; ok {
				hit = true

				break
			}
		}

		if !hit {
			return nil, nil
		}
	}

	exists, err := p.db.ArticleExists(ctx, item.Link, item.GUID)
	if err != nil {
		return nil, fmt.Errorf("check article exists: %w", err)
	}
	if exists {
		return nil, nil
	}

	article, err := p.db.InsertArticle(ctx, &domain.Article{
		BlogID:      blog.ID,
		Title:       item.Title,
		Link:        item.Link,
		GUID:        item.GUID,
		Author:      item.Author,
		PublishedAt: item.Published,
		Tags:        tags,
	})
	if err != nil {
		return nil, fmt.Errorf("insert article: %w", err)
	}

	return article, nil
}

func (p *Pipeline) announceArticle(
	ctx context.Context,
	blog *domain.Blog,
	article *domain.Article,
	now time.Time,
) {
	owner, err := p.db.OwnerHandles(ctx, blog.ID)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to load owner handles",
			"error", err,
			"blogURL", blog.URL)
	}

	anns := p.composer.ComposeArticle(article, blog, owner, now)
	if len(anns) == 0 {
		return
	}

	if err = p.db.QueueArticleAnnouncements(ctx, article.ID, anns); err != nil {
		p.log.ErrorContext(ctx, "Failed to queue announcements",
			"error", err,
			"articleID", article.ID,
			"announcementCount", len(anns))

		return
	}

	p.log.InfoContext(ctx, "Announcements are queued",
		"articleID", article.ID,
		"announcementCount", len(anns))

	p.fanOut(ctx, blog, article)
}

func (p *Pipeline) fanOut(ctx context.Context, blog *domain.Blog, article *domain.Article) {
	if p.pocket == nil {
		return
	}

	subs, err := p.db.ListPocketSubscribers(ctx, blog.ID)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list pocket subscribers",
			"error", err,
			"blogURL", blog.URL)

		return
	}
	if len(subs) == 0 {
		return
	}

	p.pocket.FanOut(ctx, subs, article.Link, p.db)
}

// AnnounceBlog queues the registration announcement for a newly approved
// blog. A blog already announced is a no-op.
func (p *Pipeline) AnnounceBlog(ctx context.Context, blogID int64) error {
	blog, err := p.db.GetBlog(ctx, blogID)
	if err != nil {
		return fmt.Errorf("get blog: %w", err)
	}
	if blog.Announced {
		return nil
	}

	owner, err := p.db.OwnerHandles(ctx, blog.ID)
	if err != nil {
		return fmt.Errorf("load owner handles: %w", err)
	}

	anns := p.composer.ComposeBlog(blog, owner, time.Now().UTC())
	if len(anns) == 0 {
		return nil
	}

	if err = p.db.QueueBlogAnnouncements(ctx, blog.ID, anns); err != nil {
		return fmt.Errorf("queue blog announcements: %w", err)
	}

	return nil
}

func (p *Pipeline) normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = p.lower.String(tag)
		if tag == "" {
			continue
		}

		normalized = append(normalized, tag)
	}

	return normalized
}

func tagSet(tags []string, lower cases.Caser) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[lower.String(tag)] = struct{}{}
	}

	return set
}
