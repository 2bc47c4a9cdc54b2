package persistence

import (
	"sort"
	"time"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

// AddToWatchlist persists a new WATCHING entry and returns its generated ID.
func (s *Store) AddToWatchlist(entry domain.WatchlistEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = newID("wl")
	entry.Status = domain.WatchlistWatching
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.watchlist[entry.ID] = &entry
	return entry.ID, s.saveJSON("watchlist.json", s.watchlist)
}

// GetWatchingItems returns every entry still in the WATCHING state.
func (s *Store) GetWatchingItems() ([]domain.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WatchlistEntry, 0)
	for _, entry := range s.watchlist {
		if entry.Status == domain.WatchlistWatching {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ActiveSignalExists reports whether an ACTIVE signal already exists for the
// given symbol/direction, the dedup check the Watchlist Loop runs before
// anything else per tick (spec §4.3 "new setup check" — dedup vs ACTIVE).
func (s *Store) ActiveSignalExists(symbol string, direction domain.Bias) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sig := range s.signals {
		if sig.Status == domain.SignalActive && sig.Symbol == symbol && sig.Direction == direction {
			return true, nil
		}
	}
	return false, nil
}

// UpdateWatchlistItem persists the Watchlist Loop's per-tick bookkeeping.
func (s *Store) UpdateWatchlistItem(id string, candlesWatched int, last5mCandleTS time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.watchlist[id]
	if !ok {
		return nil
	}
	entry.CandlesWatched = candlesWatched
	entry.Last5mCandleTS = last5mCandleTS
	entry.UpdatedAt = time.Now()
	return s.saveJSON("watchlist.json", s.watchlist)
}

// PromoteWatchlistItem marks an entry PROMOTED; the caller is responsible for
// creating the resulting Signal via AddSignal.
func (s *Store) PromoteWatchlistItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.watchlist[id]
	if !ok {
		return nil
	}
	entry.Status = domain.WatchlistPromoted
	entry.UpdatedAt = time.Now()
	return s.saveJSON("watchlist.json", s.watchlist)
}

// ExpireWatchlistItem marks an entry EXPIRED with a named reason.
func (s *Store) ExpireWatchlistItem(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.watchlist[id]
	if !ok {
		return nil
	}
	entry.Status = domain.WatchlistExpired
	entry.ExpireReason = reason
	entry.UpdatedAt = time.Now()
	return s.saveJSON("watchlist.json", s.watchlist)
}

// GetWatchlistExpiryBreakdown counts expired entries by reason since the
// given time, mirroring original_source/analyze_watchlist.py's grouped
// expire-reason report. Ambient operational query; no C-component consumes
// it directly.
func (s *Store) GetWatchlistExpiryBreakdown(since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, entry := range s.watchlist {
		if entry.Status != domain.WatchlistExpired || entry.UpdatedAt.Before(since) {
			continue
		}
		reason := entry.ExpireReason
		if reason == "" {
			reason = "unknown"
		}
		out[reason]++
	}
	return out, nil
}
