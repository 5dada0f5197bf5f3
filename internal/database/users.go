package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tidepool/internal/domain"
)

func (d *Database) AddUser(ctx context.Context, email, twitter, mastodon string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, errors.New("user email is empty")
	}

	query := "insert into users (email, twitter, mastodon) values (?, ?, ?)"

	res, err := d.db.ExecContext(ctx, query, email, twitter, mastodon)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	return res.LastInsertId()
}

// AssignBlog records blog ownership for a user.
func (d *Database) AssignBlog(ctx context.Context, userID, blogID int64) error {
	query := "insert or ignore into user_blogs (user_id, blog_id) values (?, ?)"

	_, err := d.db.ExecContext(ctx, query, userID, blogID)

	return err
}

// OwnerHandles returns the social handles of the blog's owning user, or
// empty handles when the blog has no owner.
func (d *Database) OwnerHandles(ctx context.Context, blogID int64) (domain.Handles, error) {
	query := `select u.twitter, u.mastodon
	from users as u
	join user_blogs as ub on ub.user_id = u.id
	where ub.blog_id = ?
	order by u.id
	limit 1`

	rows, err := d.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return domain.Handles{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "OwnerHandles")

	var h domain.Handles
	if rows.Next() {
		if err = rows.Scan(&h.Twitter, &h.Mastodon); err != nil {
			return domain.Handles{}, fmt.Errorf("failed to scan row: %w", err)
		}
	}

	if err = rows.Err(); err != nil {
		return domain.Handles{}, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return h, nil
}

func (d *Database) LinkPocket(ctx context.Context, email, token string) error {
	query := "update users set pocket_token = ? where email = ?"

	_, err := d.db.ExecContext(ctx, query, token, email)

	return err
}

// UnlinkPocket drops a user's read-later credential, used when the upstream
// API reports the token as revoked.
func (d *Database) UnlinkPocket(ctx context.Context, email string) error {
	query := "update users set pocket_token = '' where email = ?"

	_, err := d.db.ExecContext(ctx, query, email)

	return err
}

// ExcludeFromPocket opts a user out of fan-out for one blog.
func (d *Database) ExcludeFromPocket(ctx context.Context, userID, blogID int64) error {
	query := "insert or ignore into pocket_exclusions (user_id, blog_id) values (?, ?)"

	_, err := d.db.ExecContext(ctx, query, userID, blogID)

	return err
}

// ListPocketSubscribers returns users with a linked read-later account who
// have not excluded the given blog.
func (d *Database) ListPocketSubscribers(ctx context.Context, blogID int64) ([]domain.Subscriber, error) {
	query := `select u.email, u.pocket_token
	from users as u
	where u.pocket_token != ''
	and not exists (
		select 1 from pocket_exclusions as pe
		where pe.user_id = u.id and pe.blog_id = ?
	)
	order by u.id`

	rows, err := d.db.QueryContext(ctx, query, blogID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "ListPocketSubscribers")

	var subs []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err = rows.Scan(&s.Email, &s.PocketToken); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		subs = append(subs, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return subs, nil
}
