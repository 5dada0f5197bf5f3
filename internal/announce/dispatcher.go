package announce

import (
	"context"
	"log/slog"
	"time"

	"tidepool/internal/channel"
	"tidepool/internal/domain"
)

const dispatchTimeout = 30 * time.Second

// Queue is the durable announcement queue. Pop removes the returned
// announcement in the same atomic operation.
type Queue interface {
	PopNextAnnouncement(ctx context.Context) (*domain.Announcement, error)
}

// Dispatcher drains the queue one announcement per tick, which throttles
// outbound posting to the dispatch timer's interval.
type Dispatcher struct {
	queue    Queue
	channels map[domain.Channel]channel.Channel
	log      *slog.Logger
}

func NewDispatcher(queue Queue, channels []channel.Channel, log *slog.Logger) *Dispatcher {
	byType := make(map[domain.Channel]channel.Channel, len(channels))
	for _, ch := range channels {
		byType[ch.Type()] = ch
	}

	return &Dispatcher{
		queue:    queue,
		channels: byType,
		log:      log,
	}
}

// Tick pops at most one announcement and dispatches it. A dispatch failure
// is terminal: the announcement was already removed from the queue and is
// logged with enough detail for manual reposting. Retrying here would risk
// duplicate posts because the article's counters advanced at compose time.
// Tick never returns an error, an empty queue is a no-op.
func (d *Dispatcher) Tick(ctx context.Context) {
	ann, err := d.queue.PopNextAnnouncement(ctx)
	if err != nil {
		d.log.ErrorContext(ctx, "Failed to pop announcement",
			"error", err)

		return
	}
	if ann == nil {
		return
	}

	ch, ok := d.channels[ann.Type]
	if !ok {
		d.log.WarnContext(ctx, "No channel configured for announcement, dropping",
			"announcementID", ann.ID,
			"type", ann.Type,
			"message", ann.Message)

		return
	}

	postCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	if err = ch.Post(postCtx, ann.Message, ann.ContentWarning); err != nil {
		d.log.ErrorContext(ctx, "Failed to dispatch announcement",
			"error", err,
			"announcementID", ann.ID,
			"type", ann.Type,
			"message", ann.Message,
			"contentWarning", ann.ContentWarning)

		return
	}

	d.log.InfoContext(ctx, "Announcement is dispatched",
		"announcementID", ann.ID,
		"type", ann.Type)
}
