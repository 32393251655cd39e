package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"storefront-payments/internal/dto"
)

const unknownClient = "unknown"

// SlidingWindowStore allows at most limit hits per key within window. It
// satisfies echo's RateLimiterStore. State is process local; keys idle for a
// whole window are swept at most once per window.
type SlidingWindowStore struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewSlidingWindowStore(limit int, window time.Duration) *SlidingWindowStore {
	return &SlidingWindowStore{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *SlidingWindowStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *SlidingWindowStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)
	if now.Sub(s.lastSweep) >= s.window {
		s.sweep(cutoff)
		s.lastSweep = now
	}

	recent := s.hits[identifier][:0]
	for _, ts := range s.hits[identifier] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= s.limit {
		if len(recent) == 0 {
			delete(s.hits, identifier)
		} else {
			s.hits[identifier] = recent
		}
		return false, nil
	}

	s.hits[identifier] = append(recent, now)
	return true, nil
}

func (s *SlidingWindowStore) sweep(cutoff time.Time) {
	for key, ts := range s.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(s.hits, key)
		}
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(c echo.Context) (string, error) {
	if fwd := c.Request().Header.Get(echo.HeaderXForwardedFor); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip, nil
		}
	}
	if ip := strings.TrimSpace(c.Request().Header.Get(echo.HeaderXRealIP)); ip != "" {
		return ip, nil
	}
	return unknownClient, nil
}

func RateLimit(store echomw.RateLimiterStore) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method == http.MethodOptions
		},
		Store:               store,
		IdentifierExtractor: ClientIP,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error: "Too many requests. Please try again later.",
			})
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "Unable to identify client"})
		},
	})
}
