package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tidepool/internal/announce"
	"tidepool/internal/channel"
	"tidepool/internal/config"
	"tidepool/internal/database"
	"tidepool/internal/domain"
	"tidepool/internal/feed"
	"tidepool/internal/ingest"
	"tidepool/internal/pocket"
	"tidepool/internal/scheduler"
)

const (
	twitterAPIBaseURL = "https://api.twitter.com"
	pocketAddURL      = "https://getpocket.com/v3/add"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerURL := flag.String("register", "",
		"discover, validate and register the blog at this site URL, then exit")
	approveID := flag.Int64("approve", 0,
		"approve the blog with this id, queue its registration announcement, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load policy",
			"error", err,
			"policyPath", cfg.PolicyPath)

		return
	}
	log.InfoContext(ctx, "Policy is loaded",
		"policyPath", cfg.PolicyPath,
		"appName", policy.AppName)

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	fetcher := feed.NewFetcher(policy.FetchTimeout(), log)

	if *registerURL != "" {
		registerBlog(ctx, db, fetcher, *registerURL, log)

		return
	}

	composer := announce.NewComposer(policy)
	pipeline := ingest.New(db, fetcher, composer, initPocket(ctx, cfg, policy, log), policy, log)

	if *approveID != 0 {
		approveBlog(ctx, db, pipeline, *approveID, log)

		return
	}

	channels := initChannels(ctx, cfg, policy, log)
	dispatcher := announce.NewDispatcher(db, channels, log)

	sched := scheduler.New(ctx, pipeline, dispatcher, log)
	if err = sched.Start(policy.CheckFeedsInterval(), policy.DispatchInterval()); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"checkFeedsEvery", policy.CheckFeedsInterval().String(),
			"dispatchEvery", policy.DispatchInterval().String())

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"checkFeedsEvery", policy.CheckFeedsInterval().String(),
		"dispatchEvery", policy.DispatchInterval().String(),
		"channelCount", len(channels))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"signal", sig.String(),
		"uptimeSeconds", time.Since(start).Seconds())
}

func initChannels(
	ctx context.Context,
	cfg config.Config,
	policy *config.Policy,
	log *slog.Logger,
) []channel.Channel {
	var channels []channel.Channel

	if policy.Tweet.Enabled {
		if strings.TrimSpace(cfg.TwitterBearerToken) == "" {
			log.WarnContext(ctx, "Tweet channel is enabled but TWITTER_BEARER_TOKEN is missing",
				"envVar", "TWITTER_BEARER_TOKEN")
		} else {
			channels = append(channels, channel.NewTwitter(twitterAPIBaseURL, cfg.TwitterBearerToken, log))
		}
	}

	if policy.Toot.Enabled {
		if strings.TrimSpace(cfg.MastodonBaseURL) == "" ||
			strings.TrimSpace(cfg.MastodonAccessToken) == "" {
			log.WarnContext(ctx, "Toot channel is enabled but Mastodon credentials are missing",
				"envVars", "MASTODON_BASE_URL, MASTODON_ACCESS_TOKEN")
		} else {
			channels = append(channels, channel.NewMastodon(cfg.MastodonBaseURL, cfg.MastodonAccessToken, log))
		}
	}

	return channels
}

func initPocket(
	ctx context.Context,
	cfg config.Config,
	policy *config.Policy,
	log *slog.Logger,
) *pocket.Client {
	if strings.TrimSpace(cfg.PocketConsumerKey) == "" {
		log.InfoContext(ctx, "POCKET_CONSUMER_KEY is missing so read-later fan-out is disabled",
			"envVar", "POCKET_CONSUMER_KEY")

		return nil
	}

	return pocket.New(pocketAddURL, cfg.PocketConsumerKey, policy.AppName, policy.PocketDelay(), log)
}

func registerBlog(
	ctx context.Context,
	db *database.Database,
	fetcher *feed.Fetcher,
	text string,
	log *slog.Logger,
) {
	siteURL := strings.TrimSpace(text)

	urls, err := feed.SiteURLs(text)
	if err != nil {
		log.ErrorContext(ctx, "Failed to extract site URL",
			"error", err,
			"text", text)

		return
	}
	if len(urls) > 0 {
		siteURL = urls[0]
	}

	finder := feed.NewFinder(fetcher, log)

	disc, err := finder.DiscoverSite(ctx, siteURL)
	if err != nil {
		log.ErrorContext(ctx, "Failed to discover feed",
			"error", err,
			"siteURL", siteURL)

		return
	}

	if v := finder.Validate(ctx, disc.Feed); !v.OK {
		log.ErrorContext(ctx, "Discovered feed is not valid",
			"reason", v.Reason,
			"siteURL", siteURL,
			"feedURL", disc.Feed)

		return
	}

	blogID, err := db.RegisterBlog(ctx, &domain.Blog{
		URL:   disc.Site,
		Feed:  disc.Feed,
		Title: disc.Title,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to register blog",
			"error", err,
			"siteURL", siteURL,
			"feedURL", disc.Feed)

		return
	}

	log.InfoContext(ctx, "Blog is registered and awaiting approval",
		"blogID", blogID,
		"siteURL", siteURL,
		"feedURL", disc.Feed,
		"title", disc.Title)
}

func approveBlog(
	ctx context.Context,
	db *database.Database,
	pipeline *ingest.Pipeline,
	blogID int64,
	log *slog.Logger,
) {
	if err := db.ApproveBlog(ctx, blogID); err != nil {
		log.ErrorContext(ctx, "Failed to approve blog",
			"error", err,
			"blogID", blogID)

		return
	}

	if err := pipeline.AnnounceBlog(ctx, blogID); err != nil {
		log.ErrorContext(ctx, "Failed to queue registration announcement",
			"error", err,
			"blogID", blogID)

		return
	}

	log.InfoContext(ctx, "Blog is approved and its registration announcement is queued",
		"blogID", blogID)
}
