package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tidepool/internal/domain"
)

// QueueArticleAnnouncements enqueues the composed announcements and, in the
// same transaction, advances the article's per-channel counters and last-sent
// stamps. Reserving the slot at compose time keeps overlapping feed ticks
// from queuing the same article twice.
func (d *Database) QueueArticleAnnouncements(
	ctx context.Context,
	articleID int64,
	anns []domain.Announcement,
) error {
	if len(anns) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "QueueArticleAnnouncements")

	if err = insertAnnouncements(ctx, tx, anns); err != nil {
		return err
	}

	for _, ann := range anns {
		var query string

		switch ann.Type {
		case domain.ChannelTweet:
			query = `update articles
			set tweeted_times = tweeted_times + 1, tweeted_last = ?
			where id = ?`
		case domain.ChannelToot:
			query = `update articles
			set tooted_times = tooted_times + 1, tooted_last = ?
			where id = ?`
		default:
			return fmt.Errorf("unknown announcement type %q", ann.Type)
		}

		if _, err = tx.ExecContext(ctx, query, ann.Scheduled.UTC(), articleID); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// QueueBlogAnnouncements enqueues registration announcements and marks the
// blog announced.
func (d *Database) QueueBlogAnnouncements(
	ctx context.Context,
	blogID int64,
	anns []domain.Announcement,
) error {
	if len(anns) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx, "QueueBlogAnnouncements")

	if err = insertAnnouncements(ctx, tx, anns); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "update blogs set announced = 1 where id = ?", blogID); err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// PopNextAnnouncement atomically removes and returns the announcement with
// the soonest scheduled time. A crash after the pop loses at most one send,
// never duplicates it. Returns nil when the queue is empty.
func (d *Database) PopNextAnnouncement(ctx context.Context) (*domain.Announcement, error) {
	query := `delete from announcements
	where id = (select id from announcements order by scheduled, id limit 1)
	returning id, type, message, content_warning, scheduled`

	var ann domain.Announcement
	err := d.db.QueryRowContext(ctx, query).Scan(
		&ann.ID, &ann.Type, &ann.Message, &ann.ContentWarning, &ann.Scheduled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &ann, nil
}

// PendingAnnouncements reports the queue depth. Observability only.
func (d *Database) PendingAnnouncements(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, "select count(*) from announcements").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}

	return count, nil
}

func insertAnnouncements(ctx context.Context, tx *sql.Tx, anns []domain.Announcement) error {
	query := `insert into announcements (id, type, message, content_warning, scheduled)
	values (?, ?, ?, ?, ?)`

	for _, ann := range anns {
		if ann.ID == "" {
			ann.ID = uuid.NewString()
		}

		if _, err := tx.ExecContext(ctx, query,
			ann.ID, string(ann.Type), ann.Message, ann.ContentWarning,
			ann.Scheduled.UTC()); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}
