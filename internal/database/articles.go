package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tidepool/internal/domain"
)

// ArticleExists reports whether an article with the given link or guid is
// already stored. This is the dedup guard for re-served feed items.
func (d *Database) ArticleExists(ctx context.Context, link string, guid string) (bool, error) {
	query := "select exists (select 1 from articles where link = ? or guid = ?)"

	var exists bool
	if err := d.db.QueryRowContext(ctx, query, link, guid).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to execute query: %w", err)
	}

	return exists, nil
}

// InsertArticle stores an article with its tags and returns it with the
// assigned id.
func (d *Database) InsertArticle(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	article.Link = strings.TrimSpace(article.Link)
	if article.Link == "" {
		return nil, errors.New("article link is empty")
	}

	if strings.TrimSpace(article.GUID) == "" {
		article.GUID = article.Link
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "InsertArticle")

	query := `insert into articles (blog_id, title, link, guid, author, published_at)
	values (?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, query,
		article.BlogID, strings.TrimSpace(article.Title), article.Link,
		article.GUID, article.Author, article.PublishedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("fetch inserted id: %w", err)
	}

	tagQuery := "insert or ignore into article_tags (article_id, tag) values (?, ?)"
	for _, tag := range article.Tags {
		if _, err = tx.ExecContext(ctx, tagQuery, id, tag); err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	article.ID = id

	return article, nil
}

// GetArticle reloads an article with tags and announcement state.
func (d *Database) GetArticle(ctx context.Context, articleID int64) (*domain.Article, error) {
	query := `select id, blog_id, title, link, guid, author, published_at,
	tweeted_times, tweeted_last, tooted_times, tooted_last
	from articles where id = ?`

	var a domain.Article
	var tweetedLast, tootedLast sql.NullTime

	err := d.db.QueryRowContext(ctx, query, articleID).Scan(
		&a.ID, &a.BlogID, &a.Title, &a.Link, &a.GUID, &a.Author, &a.PublishedAt,
		&a.Tweeted.Times, &tweetedLast, &a.Tooted.Times, &tootedLast,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	if tweetedLast.Valid {
		t := tweetedLast.Time
		a.Tweeted.LastAt = &t
	}
	if tootedLast.Valid {
		t := tootedLast.Time
		a.Tooted.LastAt = &t
	}

	tagQuery := "select tag from article_tags where article_id = ? order by tag"

	rows, err := d.db.QueryContext(ctx, tagQuery, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "GetArticle")

	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.Tags = append(a.Tags, tag)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return &a, nil
}

func (d *Database) rollback(ctx context.Context, tx *sql.Tx, operation string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		d.log.ErrorContext(ctx, "Failed to rollback transaction",
			"error", err,
			"operation", operation)
	}
}
