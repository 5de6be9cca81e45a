// Package leaderboard projects all profile accounts into a ranked top list.
// Read-only; nothing here mutates ledger state.
package leaderboard

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/platform/ledger"
)

// TopN caps the projection length.
const TopN = 10

// Cache stores leaderboard snapshots; a MISS is a NOT_FOUND error.
type Cache interface {
	Get(ctx context.Context) ([]models.LeaderboardEntry, error)
	Set(ctx context.Context, entries []models.LeaderboardEntry) error
}

// Project ranks profiles by check-in count, descending, ties kept in fetch
// order, truncated to TopN.
func Project(profiles []models.Profile) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, models.LeaderboardEntry{
			DisplayName:  p.DisplayName,
			CheckInCount: p.CheckInCount,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CheckInCount > entries[j].CheckInCount
	})

	if len(entries) > TopN {
		entries = entries[:TopN]
	}
	return entries
}

type Projector struct {
	gateway ledger.Gateway
	cache   Cache
	logger  zerolog.Logger
}

// NewProjector creates a projector; cache may be nil.
func NewProjector(gateway ledger.Gateway, cache Cache, logger zerolog.Logger) *Projector {
	return &Projector{gateway: gateway, cache: cache, logger: logger}
}

// Leaderboard fetches and ranks all profiles. A fetch failure never yields
// partial data: it falls back to the last cached snapshot (flagged stale), or
// surfaces the error with an empty result.
func (p *Projector) Leaderboard(ctx context.Context) (*models.LeaderboardResponse, error) {
	profiles, err := p.gateway.FetchAllProfiles(ctx)
	if err != nil {
		if p.cache != nil {
			cached, cacheErr := p.cache.Get(ctx)
			if cacheErr == nil {
				p.logger.Warn().Err(err).Msg("Leaderboard fetch failed, serving cached snapshot")
				return &models.LeaderboardResponse{Entries: cached, Stale: true}, nil
			}
		}
		return &models.LeaderboardResponse{Entries: []models.LeaderboardEntry{}}, err
	}

	entries := Project(profiles)

	if p.cache != nil {
		if err := p.cache.Set(ctx, entries); err != nil {
			p.logger.Debug().Err(err).Msg("Failed to cache leaderboard snapshot")
		}
	}

	return &models.LeaderboardResponse{Entries: entries}, nil
}
