package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
)

// DefaultUploadBudget is the number of upload body bytes one session may
// send per UploadBudgetWindow.
const (
	DefaultUploadBudget = 200 << 20
	UploadBudgetWindow  = time.Hour
)

// Rule limits requests matching Method and Path. Path matches itself and
// anything below it.
type Rule struct {
	Name     string // short label used in keys and metrics
	Method   string
	Path     string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

func (rule Rule) matches(r *http.Request) bool {
	if r.Method != rule.Method {
		return false
	}
	return r.URL.Path == rule.Path || strings.HasPrefix(r.URL.Path, rule.Path+"/")
}

// DefaultRules are the request limits of the relay, checked in order.
// Registration and login are keyed by address since there is no session yet.
var DefaultRules = []Rule{
	{"register", http.MethodPost, "/api/register", 10, time.Hour, ipKey},
	{"login", http.MethodPost, "/api/login", 20, 15 * time.Minute, ipKey},
	{"upload", http.MethodPost, "/api/upload", 30, time.Minute, sessionKey},
	{"users", http.MethodGet, "/api/users", 120, time.Minute, sessionKey},
	{"connect", http.MethodGet, "/ws", 30, time.Minute, sessionKey},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	UploadBudget     int64    // upload bytes per session per hour; 0 selects DefaultUploadBudget
	Rules            []Rule   // nil selects DefaultRules
}

// RateLimiter enforces sliding window request limits and a per-session
// upload byte budget in Redis. Redis failures let requests through.
type RateLimiter struct {
	client           *redis.Client
	rules            []Rule
	uploadBudget     int64
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		rules:            cfg.Rules,
		uploadBudget:     cfg.UploadBudget,
		blocker:          NewIPBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}
	if rl.rules == nil {
		rl.rules = DefaultRules
	}
	if rl.uploadBudget <= 0 {
		rl.uploadBudget = DefaultUploadBudget
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey identifies a caller by address.
func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// sessionKey identifies a caller by session, falling back to the address.
// Tokens are hashed so they never appear in Redis key names.
func sessionKey(r *http.Request) string {
	token := SessionToken(r)
	if token == "" {
		return ipKey(r)
	}
	return "session:" + sha256Hex([]byte(token))[:16]
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// slidingWindow trims a sorted set to the window, then records the request
// only if the limit still has room. Rejected requests are not recorded, so a
// caller that keeps retrying is released once its window drains.
// Returns {allowed, count after the call, oldest score in ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// byteBudget adds a request's bytes to a per-window counter and refunds
// them when the total would exceed the budget.
// Returns {allowed, bytes used, ttl in ms}.
var byteBudget = redis.NewScript(`
local key = KEYS[1]
local n = tonumber(ARGV[1])
local budget = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local used = redis.call('INCRBY', key, n)
if used == n then
	redis.call('PEXPIRE', key, window)
end
local allowed = 1
if used > budget then
	used = redis.call('DECRBY', key, n)
	allowed = 0
end
return {allowed, used, redis.call('PTTL', key)}
`)

// Decision is the outcome of one limit check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Allow checks and records one request against a sliding window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	res, err := slidingWindow.Run(ctx, rl.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, strconv.FormatInt(now.UnixNano(), 36),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, err
	}

	return Decision{
		Allowed:   res[0] == 1,
		Limit:     int64(limit),
		Remaining: max(int64(limit)-res[1], 0),
		ResetAt:   time.UnixMilli(res[2]).Add(window),
	}, nil
}

// Spend charges n upload bytes to key's budget for the current window.
func (rl *RateLimiter) Spend(ctx context.Context, key string, n int64) (Decision, error) {
	res, err := byteBudget.Run(ctx, rl.client, []string{key},
		n, rl.uploadBudget, UploadBudgetWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, err
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		ttl = UploadBudgetWindow
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     rl.uploadBudget,
		Remaining: max(rl.uploadBudget-res[1], 0),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			writeLimitError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule := rl.findRule(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := rule.KeyFunc(r)
		d, err := rl.Allow(r.Context(), "ratelimit:"+rule.Name+":"+key, rule.Requests, rule.Window)
		if err != nil {
			rl.logger.Warn().Err(err).Str("rule", rule.Name).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			rl.reject(w, r, ip, key, rule.Name, d, "rate limit exceeded")
			return
		}

		if rule.Name == "upload" && !rl.spendUpload(w, r, ip, key) {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// spendUpload charges the declared body size to the caller's upload budget.
// Bodies without a declared length are only bounded by the upload body limit.
func (rl *RateLimiter) spendUpload(w http.ResponseWriter, r *http.Request, ip, key string) bool {
	n := r.ContentLength
	if n <= 0 {
		return true
	}

	d, err := rl.Spend(r.Context(), "uploadbytes:"+key, n)
	if err != nil {
		rl.logger.Warn().Err(err).Msg("upload budget check failed, allowing request")
		return true
	}

	w.Header().Set("X-Upload-Budget-Remaining", strconv.FormatInt(d.Remaining, 10))
	if !d.Allowed {
		rl.reject(w, r, ip, key, "upload_bytes", d, "upload budget exceeded")
		return false
	}
	return true
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, ip, key, rule string, d Decision, message string) {
	retry := int(time.Until(d.ResetAt).Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(retry))

	rl.trackViolation(r.Context(), ip)
	metrics.RateLimitHits.WithLabelValues(rule).Inc()

	rl.logger.Warn().
		Str("type", "security").
		Str("event", "rate_limit_exceeded").
		Str("rule", rule).
		Str("ip", ip).
		Str("endpoint", r.URL.Path).
		Str("key", key).
		Msg(message)

	writeLimitError(w, http.StatusTooManyRequests, message)
}

func (rl *RateLimiter) findRule(r *http.Request) *Rule {
	for i := range rl.rules {
		if rl.rules[i].matches(r) {
			return &rl.rules[i]
		}
	}
	return nil
}

// trackViolation counts violations per address and blocks repeat offenders
// for a day once they reach ten within an hour.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

func writeLimitError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	exists, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, blockKey(ip))
}
