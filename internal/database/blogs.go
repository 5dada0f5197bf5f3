package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tidepool/internal/domain"
)

const blogColumns = `id, url, feed, title, category, approved, announced,
	failing, suspended, suspension_ends_at, twitter, mastodon`

// ListApprovedUnsuspendedBlogs returns the blogs the feed-check tick
// should poll.
func (d *Database) ListApprovedUnsuspendedBlogs(ctx context.Context) ([]domain.Blog, error) {
	query := "select " + blogColumns + " from blogs where approved = 1 and suspended = 0"

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "ListApprovedUnsuspendedBlogs")

	var blogs []domain.Blog
	for rows.Next() {
		b, scanErr := scanBlog(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		blogs = append(blogs, *b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return blogs, nil
}

func (d *Database) GetBlog(ctx context.Context, blogID int64) (*domain.Blog, error) {
	query := "select " + blogColumns + " from blogs where id = ?"

	rows, err := d.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "GetBlog")

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate rows: %w", err)
		}
		return nil, fmt.Errorf("blog %d not found", blogID)
	}

	return scanBlog(rows)
}

// RegisterBlog inserts an unapproved blog and returns its id.
func (d *Database) RegisterBlog(ctx context.Context, blog *domain.Blog) (int64, error) {
	blog.URL = strings.TrimSpace(blog.URL)
	if blog.URL == "" {
		return 0, errors.New("blog URL is empty")
	}

	blog.Feed = strings.TrimSpace(blog.Feed)
	if blog.Feed == "" {
		return 0, errors.New("blog feed URL is empty")
	}

	query := `insert into blogs (url, feed, title, category, twitter, mastodon)
	values (?, ?, ?, ?, ?, ?)`

	res, err := d.db.ExecContext(ctx, query,
		blog.URL, blog.Feed, strings.TrimSpace(blog.Title), blog.Category,
		blog.Twitter, blog.Mastodon)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	return res.LastInsertId()
}

func (d *Database) ApproveBlog(ctx context.Context, blogID int64) error {
	query := "update blogs set approved = 1 where id = ?"

	_, err := d.db.ExecContext(ctx, query, blogID)

	return err
}

// SetBlogFailing flips the failing flag. Idempotent, a no-op update when
// the flag already has the requested value.
func (d *Database) SetBlogFailing(ctx context.Context, blogID int64, failing bool) error {
	query := "update blogs set failing = ? where id = ?"

	_, err := d.db.ExecContext(ctx, query, failing, blogID)

	return err
}

// SuspendBlog suspends a blog until the given lift date. The lift date is
// kept after unsuspension so suspension-window posts stay excluded.
func (d *Database) SuspendBlog(ctx context.Context, blogID int64, until time.Time) error {
	query := "update blogs set suspended = 1, suspension_ends_at = ? where id = ?"

	_, err := d.db.ExecContext(ctx, query, until.UTC(), blogID)

	return err
}

func (d *Database) UnsuspendBlog(ctx context.Context, blogID int64) error {
	query := "update blogs set suspended = 0 where id = ?"

	_, err := d.db.ExecContext(ctx, query, blogID)

	return err
}

func (d *Database) DeleteBlog(ctx context.Context, blogID int64) error {
	query := "delete from blogs where id = ?"

	_, err := d.db.ExecContext(ctx, query, blogID)

	return err
}

func scanBlog(rows *sql.Rows) (*domain.Blog, error) {
	var b domain.Blog
	var suspensionEndsAt sql.NullTime

	if err := rows.Scan(
		&b.ID, &b.URL, &b.Feed, &b.Title, &b.Category,
		&b.Approved, &b.Announced, &b.Failing, &b.Suspended,
		&suspensionEndsAt, &b.Twitter, &b.Mastodon,
	); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if suspensionEndsAt.Valid {
		t := suspensionEndsAt.Time
		b.SuspensionEndsAt = &t
	}

	b.URL = strings.TrimSpace(b.URL)
	b.Feed = strings.TrimSpace(b.Feed)
	b.Title = strings.TrimSpace(b.Title)

	return &b, nil
}
