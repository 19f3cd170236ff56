package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache in front of the
// mic list.  When Enabled is false or no Redis client is configured,
// caching is disabled.  Entries are dropped early whenever a mic changes
// (see middleware.CacheInvalidator); TTL only bounds how long an entry
// survives a missed invalidation.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string // route | route_query | route_query_user
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.  The mic list differs per
// caller (hosts see their hidden mics), so the default key includes the
// user.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route_query_user")),
        Prefix:       envStr("CACHE_PREFIX", "openmic:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
