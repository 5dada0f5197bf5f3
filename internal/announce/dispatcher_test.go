package announce

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"tidepool/internal/channel"
	"tidepool/internal/domain"
)

type stubQueue struct {
	anns []domain.Announcement
	err  error
}

func (q *stubQueue) PopNextAnnouncement(_ context.Context) (*domain.Announcement, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.anns) == 0 {
		return nil, nil
	}

	ann := q.anns[0]
	q.anns = q.anns[1:]

	return &ann, nil
}

type stubChannel struct {
	channelType domain.Channel
	err         error
	posts       []string
	warnings    []string
}

func (c *stubChannel) Type() domain.Channel {
	return c.channelType
}

func (c *stubChannel) Post(_ context.Context, message string, contentWarning string) error {
	if c.err != nil {
		return c.err
	}

	c.posts = append(c.posts, message)
	c.warnings = append(c.warnings, contentWarning)

	return nil
}

func TestDispatcherTickPostsOnePerTick(t *testing.T) {
	queue := &stubQueue{anns: []domain.Announcement{
		{ID: "a", Type: domain.ChannelToot, Message: "first", ContentWarning: "death", Scheduled: time.Now().UTC()},
		{ID: "b", Type: domain.ChannelToot, Message: "second", Scheduled: time.Now().UTC()},
	}}
	toots := &stubChannel{channelType: domain.ChannelToot}

	dispatcher := NewDispatcher(queue, []channel.Channel{toots}, slog.Default())

	ctx := context.Background()

	dispatcher.Tick(ctx)
	if len(toots.posts) != 1 || toots.posts[0] != "first" {
		t.Fatalf("expected one post after first tick, got %v", toots.posts)
	}
	if toots.warnings[0] != "death" {
		t.Fatalf("expected content warning to pass through, got %q", toots.warnings[0])
	}

	dispatcher.Tick(ctx)
	if len(toots.posts) != 2 || toots.posts[1] != "second" {
		t.Fatalf("expected second post after second tick, got %v", toots.posts)
	}

	dispatcher.Tick(ctx)
	if len(toots.posts) != 2 {
		t.Fatalf("expected empty queue to be a no-op, got %v", toots.posts)
	}
}

func TestDispatcherTickDropsUnroutableAnnouncement(t *testing.T) {
	queue := &stubQueue{anns: []domain.Announcement{
		{ID: "a", Type: domain.ChannelTweet, Message: "no tweet channel", Scheduled: time.Now().UTC()},
		{ID: "b", Type: domain.ChannelToot, Message: "toot", Scheduled: time.Now().UTC()},
	}}
	toots := &stubChannel{channelType: domain.ChannelToot}

	dispatcher := NewDispatcher(queue, []channel.Channel{toots}, slog.Default())

	ctx := context.Background()

	dispatcher.Tick(ctx)
	if len(toots.posts) != 0 {
		t.Fatalf("expected unroutable announcement to be dropped, got %v", toots.posts)
	}

	dispatcher.Tick(ctx)
	if len(toots.posts) != 1 || toots.posts[0] != "toot" {
		t.Fatalf("expected routable announcement to post, got %v", toots.posts)
	}
}

func TestDispatcherTickPostFailureIsTerminal(t *testing.T) {
	queue := &stubQueue{anns: []domain.Announcement{
		{ID: "a", Type: domain.ChannelToot, Message: "failing", Scheduled: time.Now().UTC()},
	}}
	toots := &stubChannel{channelType: domain.ChannelToot, err: errors.New("boom")}

	dispatcher := NewDispatcher(queue, []channel.Channel{toots}, slog.Default())

	ctx := context.Background()

	dispatcher.Tick(ctx)
	dispatcher.Tick(ctx)

	if len(toots.posts) != 0 {
		t.Fatalf("expected no posts, got %v", toots.posts)
	}
	if len(queue.anns) != 0 {
		t.Fatalf("expected failed announcement to stay popped, got %d queued", len(queue.anns))
	}
}

func TestDispatcherTickQueueError(t *testing.T) {
	queue := &stubQueue{err: errors.New("db is locked")}
	toots := &stubChannel{channelType: domain.ChannelToot}

	dispatcher := NewDispatcher(queue, []channel.Channel{toots}, slog.Default())

	dispatcher.Tick(context.Background())

	if len(toots.posts) != 0 {
		t.Fatalf("expected no posts on queue error, got %v", toots.posts)
	}
}
