package relay

import (
	"time"

	"github.com/Aidin1998/feedrelay/internal/feed"
)

// Write failure policies
const (
	OnFailureAbort = "abort"
	OnFailureSkip  = "skip"
)

// ReconnectPolicy controls recovery from a dropped feed connection. A zero
// MaxAttempts fails the session on the first connection loss.
type ReconnectPolicy struct {
	MaxAttempts    int           `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" json:"max_backoff"`
}

// WritePolicy controls what happens when an append to the destination fails.
// Retries are extra attempts for the same record; once exhausted the record is
// dropped (skip) or the session fails (abort).
type WritePolicy struct {
	Retries   int           `mapstructure:"retries" json:"retries" validate:"gte=0"`
	Backoff   time.Duration `mapstructure:"backoff" json:"backoff"`
	OnFailure string        `mapstructure:"on_failure" json:"on_failure" validate:"omitempty,oneof=abort skip"`
}

// Config parameterizes one relay session
type Config struct {
	FeedURL    string   `mapstructure:"feed_url" json:"feed_url" validate:"required,url"`
	ProductIDs []string `mapstructure:"product_ids" json:"product_ids" validate:"required,min=1,dive,required"`
	Channels   []string `mapstructure:"channels" json:"channels"`
	// Duration bounds the session in wall-clock time, measured from the start
	// of the session. Zero subscribes and returns without forwarding.
	Duration time.Duration `mapstructure:"duration" json:"duration" validate:"gte=0"`
	Stream   string        `mapstructure:"stream" json:"stream" validate:"required"`
	// Pacing is the minimum spacing between forwarded records.
	Pacing            time.Duration   `mapstructure:"pacing" json:"pacing" validate:"gte=0"`
	HousekeepingTypes []string        `mapstructure:"housekeeping_types" json:"housekeeping_types"`
	Reconnect         ReconnectPolicy `mapstructure:"reconnect" json:"reconnect"`
	Write             WritePolicy     `mapstructure:"write" json:"write"`
}

func (c Config) withDefaults() Config {
	if c.FeedURL == "" {
		c.FeedURL = feed.DefaultURL
	}
	if len(c.Channels) == 0 {
		c.Channels = []string{feed.ChannelTicker}
	}
	if len(c.HousekeepingTypes) == 0 {
		c.HousekeepingTypes = []string{feed.TypeSubscriptions, feed.TypeError}
	}
	if c.Reconnect.InitialBackoff <= 0 {
		c.Reconnect.InitialBackoff = time.Second
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		c.Reconnect.MaxBackoff = 30 * time.Second
	}
	if c.Write.Backoff <= 0 {
		c.Write.Backoff = 100 * time.Millisecond
	}
	if c.Write.OnFailure == "" {
		c.Write.OnFailure = OnFailureAbort
	}
	return c
}
