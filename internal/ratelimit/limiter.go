package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL         = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSec  float64
	Burst           int
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store manages one token bucket per client key. Buckets idle for longer
// than IdleTTL are evicted by a background loop.
type Store struct {
	cfg      Config
	limiters map[string]*entry
	mu       sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewStore creates a new rate limiter store
func NewStore(cfg Config) *Store {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}

	s := &Store{
		cfg:      cfg,
		limiters: make(map[string]*entry),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go s.cleanupLoop()
	return s
}

// Allow reports whether a request from key may proceed now.
func (s *Store) Allow(key string) bool {
	return s.Reserve(key).OK
}

// Decision is the outcome of a single throttle check.
type Decision struct {
	OK         bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Reserve consumes a token for key if one is available and describes the
// bucket state for response headers.
func (s *Store) Reserve(key string) Decision {
	now := s.now()
	lim := s.get(key, now)

	d := Decision{Limit: s.cfg.Burst}
	if lim.AllowN(now, 1) {
		d.OK = true
	} else {
		r := lim.ReserveN(now, 1)
		if r.OK() {
			d.RetryAfter = r.DelayFrom(now)
			r.CancelAt(now)
		}
	}

	if remaining := int(lim.TokensAt(now)); remaining > 0 {
		d.Remaining = remaining
	}
	return d
}

func (s *Store) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSec), s.cfg.Burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Reset forgets the bucket of key.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, key)
}

// Count returns the number of tracked clients
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// Close stops the cleanup loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) evictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.cfg.IdleTTL {
			delete(s.limiters, key)
			evicted++
		}
	}
	return evicted
}
