package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles tracking beacons with one token bucket per client IP.
type RateLimiter struct {
	clients  *clientTable[beaconBucket]
	rate     rate.Limit
	burst    int
	idle     time.Duration
	stopOnce sync.Once
	done     chan struct{}
}

type beaconBucket struct {
	limiter *rate.Limiter
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	Rate  float64 // beacons per second
	Burst int
	// CleanupInterval is how often idle clients are forgotten. A client is
	// idle after two intervals without a request.
	CleanupInterval time.Duration
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// DefaultRateLimiterConfig returns the defaults for the tracking endpoint.
// A page load sends one beacon, so 2/s with a burst of 20 leaves room for
// fast navigation while capping scripted floods.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            2,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		clients: newClientTable[beaconBucket](cfg.Now),
		rate:    rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		idle:    2 * cfg.CleanupInterval,
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop(cfg.CleanupInterval)
	return rl
}

// Allow reports whether a beacon from ip may be stored now.
func (rl *RateLimiter) Allow(ip string) bool {
	var ok bool
	rl.clients.update(ip, func(b *beaconBucket, now time.Time) {
		if b.limiter == nil {
			b.limiter = rate.NewLimiter(rl.rate, rl.burst)
		}
		ok = b.limiter.AllowN(now, 1)
	})
	return ok
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.forgetIdle()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) forgetIdle() int {
	return rl.clients.prune(func(_ *beaconBucket, lastSeen, now time.Time) bool {
		return now.Sub(lastSeen) > rl.idle
	})
}

// Len returns the number of tracked IPs.
func (rl *RateLimiter) Len() int {
	return rl.clients.len()
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(extractIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthFailureLimiter locks an IP out of login after repeated failures.
type AuthFailureLimiter struct {
	clients  *clientTable[loginFailures]
	maxFails int
	window   time.Duration
	lockout  time.Duration

	pruneMu   sync.Mutex
	lastPrune time.Time
}

type loginFailures struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

// AuthFailureLimiterConfig configures auth failure limiting.
type AuthFailureLimiterConfig struct {
	MaxFailures   int           // failures before lockout
	Window        time.Duration // counting window
	LockoutPeriod time.Duration
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// DefaultAuthFailureLimiterConfig returns 5 failures in 5 minutes, then a 15 minute lockout.
func DefaultAuthFailureLimiterConfig() AuthFailureLimiterConfig {
	return AuthFailureLimiterConfig{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		LockoutPeriod: 15 * time.Minute,
	}
}

// NewAuthFailureLimiter creates a new auth failure limiter.
func NewAuthFailureLimiter(cfg AuthFailureLimiterConfig) *AuthFailureLimiter {
	return &AuthFailureLimiter{
		clients:  newClientTable[loginFailures](cfg.Now),
		maxFails: cfg.MaxFailures,
		window:   cfg.Window,
		lockout:  cfg.LockoutPeriod,
	}
}

// IsLocked checks if an IP is currently locked out.
func (afl *AuthFailureLimiter) IsLocked(ip string) bool {
	return afl.LockoutSecondsRemaining(ip) > 0
}

// RecordFailure records a failed login from ip.
// It returns the attempts left, or -1 once the IP is locked.
func (afl *AuthFailureLimiter) RecordFailure(ip string) int {
	afl.pruneExpired()

	remaining := 0
	afl.clients.update(ip, func(f *loginFailures, now time.Time) {
		if f.count == 0 || afl.expired(f, now) {
			*f = loginFailures{firstAt: now}
		}
		f.count++
		if f.count >= afl.maxFails {
			f.lockedAt = now
			remaining = -1
			return
		}
		remaining = afl.maxFails - f.count
	})
	return remaining
}

// expired reports whether a record should start over: its counting window
// passed without a lockout, or its lockout has ended.
func (afl *AuthFailureLimiter) expired(f *loginFailures, now time.Time) bool {
	if f.lockedAt.IsZero() {
		return now.Sub(f.firstAt) > afl.window
	}
	return now.Sub(f.lockedAt) >= afl.lockout
}

// pruneExpired forgets finished records, at most once per counting window.
func (afl *AuthFailureLimiter) pruneExpired() {
	afl.pruneMu.Lock()
	defer afl.pruneMu.Unlock()

	now := afl.clients.now()
	if now.Sub(afl.lastPrune) < afl.window {
		return
	}
	afl.lastPrune = now
	afl.clients.prune(func(f *loginFailures, _, now time.Time) bool {
		return afl.expired(f, now)
	})
}

// RecordSuccess clears the failure record for an IP.
func (afl *AuthFailureLimiter) RecordSuccess(ip string) {
	afl.clients.remove(ip)
}

// LockoutSecondsRemaining returns seconds until the lockout of ip ends, rounded up.
func (afl *AuthFailureLimiter) LockoutSecondsRemaining(ip string) int {
	f, now, ok := afl.clients.lookup(ip)
	if !ok || f.lockedAt.IsZero() {
		return 0
	}
	remaining := afl.lockout - now.Sub(f.lockedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Len returns the number of IPs with a failure record.
func (afl *AuthFailureLimiter) Len() int {
	return afl.clients.len()
}

// Middleware blocks locked IPs with 429 and a Retry-After header.
func (afl *AuthFailureLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secs := afl.LockoutSecondsRemaining(extractIP(r)); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, r, http.StatusTooManyRequests, "too many failed login attempts", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
