package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig configures the Redis token bucket guarding the sync
// endpoints.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"10"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"6s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`

	// Shorthands that override the fields above when set.
	Burst       int           `envconfig:"RATE_LIMIT_BURST"`
	RefillEvery time.Duration `envconfig:"RATE_LIMIT_REFILL_EVERY"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and normalizes them.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var rl RateLimitConfig
	if err := envconfig.Process("", &rl); err != nil {
		return RateLimitConfig{}, err
	}
	return rl.normalize(), nil
}

func (rl RateLimitConfig) normalize() RateLimitConfig {
	if rl.Burst > 0 {
		rl.Capacity = rl.Burst
	}
	if rl.RefillEvery > 0 {
		rl.RefillTokens = 1
		rl.RefillInterval = rl.RefillEvery
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	// Keep buckets alive for at least a few refills.
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}
