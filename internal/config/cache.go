package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the response cache middleware in front
// of the read-only endpoints (rule inspection, previews, calendar feeds).
// When Enabled is false or no Redis client is configured, caching is
// disabled.  KeyStrategy determines which parts of the request contribute
// to the cache key.
type CacheConfig struct {
	Enabled      bool            `envconfig:"CACHE_ENABLED" default:"true"`
	Methods      map[string]bool `ignored:"true"`
	MethodList   []string        `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration   `envconfig:"CACHE_TTL" default:"30s"`
	KeyStrategy  string          `envconfig:"CACHE_KEY_STRATEGY" default:"route_query"`
	Prefix       string          `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int             `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`
}

// LoadCacheConfig reads CACHE_* variables.  All methods are upper-cased.
func LoadCacheConfig() (CacheConfig, error) {
	var cc CacheConfig
	if err := envconfig.Process("", &cc); err != nil {
		return CacheConfig{}, err
	}
	cc.Methods = parseMethods(cc.MethodList)
	if cc.TTL <= 0 {
		cc.TTL = time.Second
	}
	return cc, nil
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
