package database

import (
	"context"
	"testing"
	"time"

	"tidepool/internal/domain"
)

func TestArticleExistsByLinkOrGUID(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	blogID := seedBlog(t, db)

	_, err := db.InsertArticle(ctx, &domain.Article{
		BlogID:      blogID,
		Title:       "Post",
		Link:        "https://example.org/post",
		GUID:        "guid-1",
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to insert article: %v", err)
	}

	cases := []struct {
		name string
		link string
		guid string
		want bool
	}{
		{name: "same link", link: "https://example.org/post", guid: "other", want: true},
		{name: "same guid", link: "https://example.org/other", guid: "guid-1", want: true},
		{name: "new item", link: "https://example.org/other", guid: "other", want: false},
	}

	for _, tc := range cases {
		exists, existsErr := db.ArticleExists(ctx, tc.link, tc.guid)
		if existsErr != nil {
			t.Fatalf("%s: failed to check existence: %v", tc.name, existsErr)
		}
		if exists != tc.want {
			t.Fatalf("%s: expected exists=%v, got %v", tc.name, tc.want, exists)
		}
	}
}

func TestArticleInsertFallsBackToLinkGUID(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	blogID := seedBlog(t, db)

	article, err := db.InsertArticle(ctx, &domain.Article{
		BlogID:      blogID,
		Title:       "Post",
		Link:        "https://example.org/post",
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tags:        []string{"libraries", "cats", "libraries"},
	})
	if err != nil {
		t.Fatalf("failed to insert article: %v", err)
	}
	if article.ID == 0 {
		t.Fatalf("expected assigned article id")
	}
	if article.GUID != article.Link {
		t.Fatalf("expected guid to fall back to link, got %q", article.GUID)
	}

	stored, err := db.GetArticle(ctx, article.ID)
	if err != nil {
		t.Fatalf("failed to get article: %v", err)
	}
	if len(stored.Tags) != 2 {
		t.Fatalf("expected duplicate tags to collapse, got %v", stored.Tags)
	}
	if stored.Tweeted.Times != 0 || stored.Tooted.Times != 0 {
		t.Fatalf("expected zero announcement counters, got %+v %+v", stored.Tweeted, stored.Tooted)
	}
	if stored.Tweeted.LastAt != nil || stored.Tooted.LastAt != nil {
		t.Fatalf("expected no last-announced stamps on a fresh article")
	}
}
