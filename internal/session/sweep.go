package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweep deletes every session idle for longer than maxAge and returns how
// many were removed. A session idle for exactly maxAge is kept.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) int {
	now := s.now()

	s.mu.RLock()
	candidates := make([]string, 0)
	for id, e := range s.sessions {
		e.mu.RLock()
		idle := e.session.IdleFor(now)
		e.mu.RUnlock()
		if idle > maxAge {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		// Re-check: a message may have arrived since the scan.
		e, ok := s.lookup(id)
		if !ok {
			continue
		}
		e.mu.RLock()
		idle := e.session.IdleFor(now)
		e.mu.RUnlock()
		if idle <= maxAge {
			continue
		}
		if s.Delete(ctx, id) {
			removed++
		}
	}

	if removed > 0 {
		log.Info().Str("component", "session").Int("count", removed).Dur("max_age", maxAge).Msg("swept idle sessions")
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. It blocks, so
// callers usually run it in its own goroutine.
func (s *Store) StartSweeper(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 || maxAge <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx, maxAge)
		}
	}
}
