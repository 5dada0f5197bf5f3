package domain

import "time"

// Channel identifies a social announcement target.
type Channel string

const (
	ChannelTweet Channel = "tweet"
	ChannelToot  Channel = "toot"
)

type Blog struct {
	ID       int64
	URL      string
	Feed     string
	Title    string
	Category string

	Approved  bool
	Announced bool
	Failing   bool
	Suspended bool

	// SuspensionEndsAt stays set after a suspension is lifted so that
	// posts published during the window remain excluded.
	SuspensionEndsAt *time.Time

	// Legacy blog-level handles, used when the owning user has none.
	Twitter  string
	Mastodon string
}

// AnnounceState tracks how often an article went out on one channel.
type AnnounceState struct {
	Times  int64
	LastAt *time.Time
}

type Article struct {
	ID          int64
	BlogID      int64
	Title       string
	Link        string
	GUID        string
	Author      string
	PublishedAt time.Time
	Tags        []string

	Tweeted AnnounceState
	Tooted  AnnounceState
}

type Announcement struct {
	ID             string
	Type           Channel
	Message        string
	ContentWarning string
	Scheduled      time.Time
}

// Handles are the social handles of a blog's owning user.
type Handles struct {
	Twitter  string
	Mastodon string
}

type Subscriber struct {
	Email       string
	PocketToken string
}
