package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries process-level settings and credentials from the
// environment. Everything shaping pipeline behaviour lives in Policy.
type Config struct {
	DBPath     string `env:"DB_PATH"     envDefault:"tidepool.sqlite"`
	PolicyPath string `env:"POLICY_PATH" envDefault:"policy.yaml"`

	TwitterBearerToken  string `env:"TWITTER_BEARER_TOKEN"`
	MastodonBaseURL     string `env:"MASTODON_BASE_URL"`
	MastodonAccessToken string `env:"MASTODON_ACCESS_TOKEN"`
	PocketConsumerKey   string `env:"POCKET_CONSUMER_KEY"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// ChannelPolicy is the per-channel announcement budget.
type ChannelPolicy struct {
	Enabled          bool  `yaml:"enabled"`
	MaxAnnouncements int64 `yaml:"max_announcements"`
	HoursBetween     int   `yaml:"hours_between"`
}

func (cp ChannelPolicy) Between() time.Duration {
	return time.Duration(cp.HoursBetween) * time.Hour
}

// Policy is the community policy file: tag rules, announcement budgets,
// content-warning terms and pipeline timings.
type Policy struct {
	AppName string `yaml:"app_name"`
	AppURL  string `yaml:"app_url"`
	Locale  string `yaml:"locale"`

	CheckFeedsMinutes   int `yaml:"check_feeds_minutes"`
	DispatchMinutes     int `yaml:"dispatch_minutes"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
	RecencyCutoffHours  int `yaml:"recency_cutoff_hours"`
	PocketDelaySeconds  int `yaml:"pocket_delay_seconds"`

	IncludedTags  []string          `yaml:"included_tags"`
	ExcludedTags  []string          `yaml:"excluded_tags"`
	TagTransforms map[string]string `yaml:"tag_transforms"`

	ClubTag     string `yaml:"club_tag"`
	ClubHashtag string `yaml:"club_hashtag"`

	ContentWarningTerms []string `yaml:"content_warning_terms"`

	Tweet ChannelPolicy `yaml:"tweet"`
	Toot  ChannelPolicy `yaml:"toot"`
}

func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	return ParsePolicy([]byte(os.ExpandEnv(string(data))))
}

func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	p.setDefaults()

	return &p, nil
}

func (p *Policy) setDefaults() {
	if p.AppName == "" {
		p.AppName = "tidepool"
	}
	if p.Locale == "" {
		p.Locale = "en"
	}
	if p.CheckFeedsMinutes <= 0 {
		p.CheckFeedsMinutes = 60
	}
	if p.DispatchMinutes <= 0 {
		p.DispatchMinutes = 5
	}
	if p.FetchTimeoutSeconds <= 0 {
		p.FetchTimeoutSeconds = 60
	}
	if p.RecencyCutoffHours <= 0 {
		p.RecencyCutoffHours = 48
	}
	if p.PocketDelaySeconds <= 0 {
		p.PocketDelaySeconds = 2
	}
	if p.Tweet.MaxAnnouncements <= 0 {
		p.Tweet.MaxAnnouncements = 3
	}
	if p.Tweet.HoursBetween <= 0 {
		p.Tweet.HoursBetween = 10
	}
	if p.Toot.MaxAnnouncements <= 0 {
		p.Toot.MaxAnnouncements = 2
	}
	if p.Toot.HoursBetween <= 0 {
		p.Toot.HoursBetween = 18
	}
}

func (p *Policy) CheckFeedsInterval() time.Duration {
	return time.Duration(p.CheckFeedsMinutes) * time.Minute
}

func (p *Policy) DispatchInterval() time.Duration {
	return time.Duration(p.DispatchMinutes) * time.Minute
}

func (p *Policy) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}

func (p *Policy) RecencyCutoff() time.Duration {
	return time.Duration(p.RecencyCutoffHours) * time.Hour
}

func (p *Policy) PocketDelay() time.Duration {
	return time.Duration(p.PocketDelaySeconds) * time.Second
}
