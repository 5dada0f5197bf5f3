package database

import (
	"context"
	"testing"
	"time"

	"tidepool/internal/domain"
)

func TestBlogLifecycle(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	id := seedBlog(t, db)

	blogs, err := db.ListApprovedUnsuspendedBlogs(ctx)
	if err != nil {
		t.Fatalf("failed to list blogs: %v", err)
	}
	if len(blogs) != 0 {
		t.Fatalf("expected no approved blogs before approval, got %d", len(blogs))
	}

	if err = db.ApproveBlog(ctx, id); err != nil {
		t.Fatalf("failed to approve blog: %v", err)
	}

	blogs, err = db.ListApprovedUnsuspendedBlogs(ctx)
	if err != nil {
		t.Fatalf("failed to list blogs: %v", err)
	}
	if len(blogs) != 1 {
		t.Fatalf("expected one approved blog, got %d", len(blogs))
	}
	if blogs[0].ID != id || blogs[0].Feed != "https://example.org/feed.xml" {
		t.Fatalf("unexpected blog: %+v", blogs[0])
	}

	if err = db.DeleteBlog(ctx, id); err != nil {
		t.Fatalf("failed to delete blog: %v", err)
	}

	if _, err = db.GetBlog(ctx, id); err == nil {
		t.Fatalf("expected deleted blog to be gone")
	}
}

func TestBlogRegisterRejectsEmptyURLs(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	if _, err := db.RegisterBlog(ctx, &domain.Blog{Feed: "https://example.org/feed.xml"}); err == nil {
		t.Fatalf("expected error for empty blog URL")
	}

	if _, err := db.RegisterBlog(ctx, &domain.Blog{URL: "https://example.org"}); err == nil {
		t.Fatalf("expected error for empty feed URL")
	}
}

func TestBlogSuspensionKeepsLiftDate(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	id := seedBlog(t, db)
	if err := db.ApproveBlog(ctx, id); err != nil {
		t.Fatalf("failed to approve blog: %v", err)
	}

	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := db.SuspendBlog(ctx, id, until); err != nil {
		t.Fatalf("failed to suspend blog: %v", err)
	}

	blogs, err := db.ListApprovedUnsuspendedBlogs(ctx)
	if err != nil {
		t.Fatalf("failed to list blogs: %v", err)
	}
	if len(blogs) != 0 {
		t.Fatalf("expected suspended blog to be excluded, got %d", len(blogs))
	}

	if err = db.UnsuspendBlog(ctx, id); err != nil {
		t.Fatalf("failed to unsuspend blog: %v", err)
	}

	blog, err := db.GetBlog(ctx, id)
	if err != nil {
		t.Fatalf("failed to get blog: %v", err)
	}
	if blog.Suspended {
		t.Fatalf("expected blog to be unsuspended")
	}
	if blog.SuspensionEndsAt == nil || !blog.SuspensionEndsAt.Equal(until) {
		t.Fatalf("expected lift date to survive unsuspension, got %v", blog.SuspensionEndsAt)
	}
}

func TestBlogSetFailingIsIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	id := seedBlog(t, db)

	for range 2 {
		if err := db.SetBlogFailing(ctx, id, true); err != nil {
			t.Fatalf("failed to flag blog as failing: %v", err)
		}
	}

	blog, err := db.GetBlog(ctx, id)
	if err != nil {
		t.Fatalf("failed to get blog: %v", err)
	}
	if !blog.Failing {
		t.Fatalf("expected blog to be failing")
	}

	if err = db.SetBlogFailing(ctx, id, false); err != nil {
		t.Fatalf("failed to clear failing flag: %v", err)
	}

	blog, err = db.GetBlog(ctx, id)
	if err != nil {
		t.Fatalf("failed to get blog: %v", err)
	}
	if blog.Failing {
		t.Fatalf("expected failing flag to be cleared")
	}
}
