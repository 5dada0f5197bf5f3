package database

import (
	"context"
	"testing"
	"time"

	"tidepool/internal/domain"
)

func TestQueueArticleAnnouncementsBumpsCounters(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	blogID := seedBlog(t, db)
	article := seedArticle(t, db, blogID, "https://example.org/post")

	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	anns := []domain.Announcement{
		{Type: domain.ChannelTweet, Message: "tweet text", Scheduled: now},
		{Type: domain.ChannelToot, Message: "toot text", Scheduled: now},
	}

	if err := db.QueueArticleAnnouncements(ctx, article.ID, anns); err != nil {
		t.Fatalf("failed to queue announcements: %v", err)
	}

	stored, err := db.GetArticle(ctx, article.ID)
	if err != nil {
		t.Fatalf("failed to get article: %v", err)
	}
	if stored.Tweeted.Times != 1 || stored.Tooted.Times != 1 {
		t.Fatalf("expected counters to advance, got %+v %+v", stored.Tweeted, stored.Tooted)
	}
	if stored.Tweeted.LastAt == nil || !stored.Tweeted.LastAt.Equal(now) {
		t.Fatalf("unexpected tweeted last-announced stamp: %v", stored.Tweeted.LastAt)
	}

	pending, err := db.PendingAnnouncements(ctx)
	if err != nil {
		t.Fatalf("failed to count pending announcements: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected 2 pending announcements, got %d", pending)
	}
}

func TestQueueBlogAnnouncementsMarksBlogAnnounced(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	blogID := seedBlog(t, db)

	anns := []domain.Announcement{{
		Type:      domain.ChannelToot,
		Message:   "registration text",
		Scheduled: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}}

	if err := db.QueueBlogAnnouncements(ctx, blogID, anns); err != nil {
		t.Fatalf("failed to queue blog announcements: %v", err)
	}

	blog, err := db.GetBlog(ctx, blogID)
	if err != nil {
		t.Fatalf("failed to get blog: %v", err)
	}
	if !blog.Announced {
		t.Fatalf("expected blog to be marked announced")
	}
}

func TestPopNextAnnouncementReturnsEachOnce(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	blogID := seedBlog(t, db)
	article := seedArticle(t, db, blogID, "https://example.org/post")

	base := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	anns := []domain.Announcement{
		{Type: domain.ChannelToot, Message: "later", Scheduled: base.Add(time.Hour)},
		{Type: domain.ChannelTweet, Message: "sooner", Scheduled: base},
	}

	if err := db.QueueArticleAnnouncements(ctx, article.ID, anns); err != nil {
		t.Fatalf("failed to queue announcements: %v", err)
	}

	first, err := db.PopNextAnnouncement(ctx)
	if err != nil {
		t.Fatalf("failed to pop announcement: %v", err)
	}
	if first == nil || first.Message != "sooner" {
		t.Fatalf("expected soonest announcement first, got %+v", first)
	}
	if first.Type != domain.ChannelTweet {
		t.Fatalf("unexpected announcement type: %q", first.Type)
	}
	if first.ID == "" {
		t.Fatalf("expected a generated announcement id")
	}

	second, err := db.PopNextAnnouncement(ctx)
	if err != nil {
		t.Fatalf("failed to pop announcement: %v", err)
	}
	if second == nil || second.Message != "later" {
		t.Fatalf("expected remaining announcement, got %+v", second)
	}

	third, err := db.PopNextAnnouncement(ctx)
	if err != nil {
		t.Fatalf("failed to pop from empty queue: %v", err)
	}
	if third != nil {
		t.Fatalf("expected empty queue, got %+v", third)
	}
}
