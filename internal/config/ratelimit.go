package config

import "time"

// RateLimitConfig describes a fixed window limiter.  Limit requests are
// admitted per Window for each key; the key is built according to
// KeyStrategy (ip, user, route, ip_user, ip_route, user_route or the default
// ip_user_route).
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	KeyStrategy string
	Prefix      string
	Debug       bool
}

// LoadRateLimitConfig returns the API-wide limiter settings: 100 requests per
// 15 minutes per client IP unless overridden.
func LoadRateLimitConfig() RateLimitConfig {
	return normalizeRateLimit(RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Limit:       envInt("RATE_LIMIT_MAX", 100),
		Window:      envDur("RATE_LIMIT_WINDOW", 15*time.Minute),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "ip"),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	})
}

// LoadAuthRateLimitConfig returns the stricter limiter applied to the
// credential endpoints (signup, login, refresh).
func LoadAuthRateLimitConfig() RateLimitConfig {
	return normalizeRateLimit(RateLimitConfig{
		Enabled:     envBool("AUTH_RATE_LIMIT_ENABLED", true),
		Limit:       envInt("AUTH_RATE_LIMIT_MAX", 10),
		Window:      envDur("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		KeyStrategy: envStr("AUTH_RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:      envStr("AUTH_RATE_LIMIT_PREFIX", "rl:auth"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	})
}

func normalizeRateLimit(c RateLimitConfig) RateLimitConfig {
	if c.Limit < 1 {
		c.Limit = 1
	}
	if c.Window < time.Second {
		c.Window = time.Second
	}
	return c
}
