package cache

// RateLimitKey builds the per-client upload rate limit counter key.
func RateLimitKey(client string) string {
	return "ratelimit:upload:" + client
}
