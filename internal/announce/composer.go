package announce

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tidepool/internal/config"
	"tidepool/internal/domain"
)

const (
	tweetTitleMaxRunes = 150
	tootTitleMaxRunes  = 300
)

// Composer builds channel-specific announcements for new articles and
// newly approved blogs.
type Composer struct {
	policy   *config.Policy
	lower    cases.Caser
	warnings *warningMatcher
}

func NewComposer(policy *config.Policy) *Composer {
	lower := cases.Lower(language.Make(policy.Locale))

	return &Composer{
		policy:   policy,
		lower:    lower,
		warnings: newWarningMatcher(policy.ContentWarningTerms, lower.String),
	}
}

// NeedsAnnouncing reports whether an article's state on one channel still
// has announcement budget: never announced, or past the repeat window and
// under the per-article maximum.
func NeedsAnnouncing(state domain.AnnounceState, cp config.ChannelPolicy, now time.Time) bool {
	if !cp.Enabled {
		return false
	}
	if state.Times == 0 {
		return true
	}
	if state.Times >= cp.MaxAnnouncements {
		return false
	}
	if state.LastAt != nil && now.Sub(*state.LastAt) < cp.Between() {
		return false
	}

	return true
}

// ComposeArticle emits zero, one or two announcements for an article.
// Callers must persist them through the store so the per-channel counters
// advance in the same transaction.
func (c *Composer) ComposeArticle(
	article *domain.Article,
	blog *domain.Blog,
	owner domain.Handles,
	now time.Time,
) []domain.Announcement {
	var anns []domain.Announcement

	hashtag := c.clubHashtag(article.Tags)

	if NeedsAnnouncing(article.Tweeted, c.policy.Tweet, now) {
		anns = append(anns, domain.Announcement{
			ID:        uuid.NewString(),
			Type:      domain.ChannelTweet,
			Message:   c.articleMessage(article, blog.Twitter, owner.Twitter, article.Tweeted, tweetTitleMaxRunes, hashtag),
			Scheduled: now,
		})
	}

	if NeedsAnnouncing(article.Tooted, c.policy.Toot, now) {
		anns = append(anns, domain.Announcement{
			ID:             uuid.NewString(),
			Type:           domain.ChannelToot,
			Message:        c.articleMessage(article, blog.Mastodon, owner.Mastodon, article.Tooted, tootTitleMaxRunes, hashtag),
			ContentWarning: c.contentWarning(article),
			Scheduled:      now,
		})
	}

	return anns
}

// ComposeBlog emits the one-off registration announcement for a newly
// approved blog, one per enabled channel.
func (c *Composer) ComposeBlog(
	blog *domain.Blog,
	owner domain.Handles,
	now time.Time,
) []domain.Announcement {
	var anns []domain.Announcement

	if c.policy.Tweet.Enabled {
		anns = append(anns, domain.Announcement{
			ID:        uuid.NewString(),
			Type:      domain.ChannelTweet,
			Message:   c.blogMessage(blog, firstNonEmpty(owner.Twitter, blog.Twitter)),
			Scheduled: now,
		})
	}

	if c.policy.Toot.Enabled {
		anns = append(anns, domain.Announcement{
			ID:        uuid.NewString(),
			Type:      domain.ChannelToot,
			Message:   c.blogMessage(blog, firstNonEmpty(owner.Mastodon, blog.Mastodon)),
			Scheduled: now,
		})
	}

	return anns
}

func (c *Composer) articleMessage(
	article *domain.Article,
	legacyHandle string,
	ownerHandle string,
	state domain.AnnounceState,
	titleMaxRunes int,
	hashtag string,
) string {
	author := firstNonEmpty(ownerHandle, legacyHandle, article.Author)
	sep := separator(state.Times)
	title := truncateTitle(article.Title, titleMaxRunes)

	msg := fmt.Sprintf("%s %s %s %s %s", title, sep, author, sep, article.Link)
	if hashtag != "" {
		msg += " " + hashtag
	}

	return msg
}

func (c *Composer) blogMessage(blog *domain.Blog, handle string) string {
	var msg string
	if handle != "" {
		msg = fmt.Sprintf("%s by %s has been added to %s!", blog.URL, handle, c.policy.AppName)
	} else {
		msg = fmt.Sprintf("%s has been added to %s!", blog.URL, c.policy.AppName)
	}

	if blog.Category != "" {
		msg += fmt.Sprintf(" It's about %s!", blog.Category)
	}

	return msg
}

// clubHashtag returns the community hashtag when any normalized tag, after
// the tag-transform map, equals the configured club tag.
func (c *Composer) clubHashtag(tags []string) string {
	if c.policy.ClubTag == "" || c.policy.ClubHashtag == "" {
		return ""
	}

	for _, tag := range tags {
		tag = c.lower.String(tag)
		if transformed, ok := c.policy.TagTransforms[tag]; ok {
			tag = transformed
		}

		if tag == c.policy.ClubTag {
			return c.policy.ClubHashtag
		}
	}

	return ""
}

func (c *Composer) contentWarning(article *domain.Article) string {
	texts := make([]string, 0, len(article.Tags)+1)
	for _, tag := range article.Tags {
		texts = append(texts, c.lower.String(tag))
	}
	texts = append(texts, c.lower.String(article.Title))

	matched := c.warnings.Match(texts...)
	if len(matched) == 0 {
		return ""
	}

	return strings.Join(matched, ", ")
}

// separator alternates between two fixed styles by send count so repeat
// announcements of the same article read differently.
func separator(times int64) string {
	if times > 0 && times%2 == 0 {
		return "/"
	}

	return "-"
}

func truncateTitle(title string, maxRunes int) string {
	runes := []rune(title)
	if len(runes) <= maxRunes {
		return title
	}

	return string(runes[:maxRunes]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
