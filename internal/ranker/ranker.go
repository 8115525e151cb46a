// Package ranker turns a raw snapshot list into the top gainers: deduplicate,
// filter, sort, truncate. Pure functions, no I/O.
package ranker

import (
	"sort"

	"github.com/vvarelai/coinscan/pkg/models"
)

// MinVolumeUSD is the 24h volume floor a coin must clear to be ranked.
const MinVolumeUSD = 1_000_000

// TopN is the maximum number of ranked gainers.
const TopN = 10

// Rank produces the top gainers from raw snapshots.
//
// Steps, in order: deduplicate by ID with the later occurrence winning
// (paginated fetches can repeat a coin across pages and the later page is
// fresher), drop snapshots without a 24h percentage change, drop snapshots
// with absent or insufficient volume, stable-sort by percentage change
// descending, truncate to TopN.
//
// An empty result means no coin qualified; the caller distinguishes that
// from "nothing fetched".
func Rank(snapshots []models.CoinSnapshot) []models.RankedCoin {
	deduped := dedupe(snapshots)

	qualified := deduped[:0]
	for _, s := range deduped {
		if s.PriceChangePct24h == nil {
			continue
		}
		if s.Volume24h == nil || *s.Volume24h <= MinVolumeUSD {
			continue
		}
		qualified = append(qualified, s)
	}

	// Stable: ties keep post-dedup order, there is no secondary key.
	sort.SliceStable(qualified, func(i, j int) bool {
		return *qualified[i].PriceChangePct24h > *qualified[j].PriceChangePct24h
	})

	if len(qualified) > TopN {
		qualified = qualified[:TopN]
	}

	ranked := make([]models.RankedCoin, 0, len(qualified))
	for i, s := range qualified {
		ranked = append(ranked, models.RankedCoin{CoinSnapshot: s, Rank: i})
	}
	return ranked
}

// dedupe removes duplicate IDs, keeping input order of first occurrence but
// the field values of the last.
func dedupe(snapshots []models.CoinSnapshot) []models.CoinSnapshot {
	index := make(map[string]int, len(snapshots))
	out := make([]models.CoinSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if i, seen := index[s.ID]; seen {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}
