// Package ratelimit implements fixed-window admission control for the webhook
// gateway. Three tiers are checked in order: a global counter per route
// class, a per-route counter, and a per-identity counter. Failing any tier
// rejects the request with a retry-after hint.
package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Rule is one fixed-window limit: at most Max admissions per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Tier       string
	RetryAfter int // seconds until the window resets; set when rejected
}

const shardCount = 16

// window is one fixed-window counter. Reset in place when the window lapses.
type window struct {
	count   int
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter holds process-wide fixed-window counters, sharded by key so that
// the check-then-increment for one key is atomic while unrelated keys stay
// parallel. A background sweep drops lapsed windows to bound memory.
type Limiter struct {
	global   Rule
	routes   map[string]Rule
	identity Rule
	shards   [shardCount]*shard
	logger   *slog.Logger
	now      func() time.Time
}

// Config carries the per-tier rules. Routes maps a route class (e.g.
// "webhook") to its narrower rule; routes without an entry only pass the
// global and identity tiers.
type Config struct {
	Global   Rule
	Routes   map[string]Rule
	Identity Rule
	Logger   *slog.Logger
}

func New(cfg Config) *Limiter {
	if cfg.Global.Max <= 0 {
		cfg.Global = Rule{Max: 300, Window: time.Minute}
	}
	if cfg.Identity.Max <= 0 {
		cfg.Identity = Rule{Max: 30, Window: time.Minute}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Limiter{
		global:   cfg.Global,
		routes:   cfg.Routes,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return l
}

// Check runs all three tiers in order for one request. route is the route
// class, identity the resolved caller identity. The first exhausted tier
// wins; later tiers are not charged for a rejected request.
func (l *Limiter) Check(route, identity string) Decision {
	if d := l.CheckRoute(route); !d.Allowed {
		return d
	}
	return l.CheckIdentity(route, identity)
}

// CheckRoute runs the global and route tiers only. It needs no request
// content, so callers can gate a request before parsing its body; the
// identity tier is charged separately once the sender is known.
func (l *Limiter) CheckRoute(route string) Decision {
	if d := l.admit("global:"+route, l.global, "global"); !d.Allowed {
		return d
	}
	if rule, ok := l.routes[route]; ok {
		if d := l.admit("route:"+route, rule, "route"); !d.Allowed {
			return d
		}
	}
	return Decision{Allowed: true}
}

// CheckIdentity runs the per-identity tier.
func (l *Limiter) CheckIdentity(route, identity string) Decision {
	return l.admit("id:"+route+":"+identity, l.identity, "identity")
}

// admit performs the atomic fixed-window check-then-increment for one key.
func (l *Limiter) admit(key string, rule Rule, tier string) Decision {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		s.windows[key] = &window{count: 1, resetAt: now.Add(rule.Window)}
		return Decision{Allowed: true, Tier: tier}
	}
	if w.count < rule.Max {
		w.count++
		return Decision{Allowed: true, Tier: tier}
	}

	remaining := w.resetAt.Sub(now)
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	l.logger.Warn("rate limit exceeded", "tier", tier, "key", key, "retry_after", retryAfter)
	return Decision{Allowed: false, Tier: tier, RetryAfter: retryAfter}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Sweep runs until ctx is done, periodically removing windows whose reset
// time has passed. Independent of request traffic so idle keys still expire.
func (l *Limiter) Sweep(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweepOnce()
		}
	}
}

func (l *Limiter) sweepOnce() {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			if now.After(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		l.logger.Debug("rate limiter sweep", "removed", removed)
	}
}

// size reports the number of live windows; used by tests.
func (l *Limiter) size() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
