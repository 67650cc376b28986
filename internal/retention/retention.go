// package retention decides which snapshots of a server to delete under a [models.RetentionPolicy].
//
// Complete snapshots are bucketed hourly, daily, per ISO week, monthly and yearly. Each tier keeps the
// newest snapshot of its most recent buckets and only considers snapshots no earlier tier kept.
// Incomplete snapshots survive a grace period so a pull in progress is never removed.
package retention

import (
	"cmp"
	"slices"
	"time"

	"github.com/desertthunder/plsync/internal/models"
)

// IncompleteGrace is how long an unfinished snapshot is kept.
const IncompleteGrace = 30 * 24 * time.Hour

type tier struct {
	limit int
	key   func(time.Time) int64
}

func tiers(p models.RetentionPolicy) []tier {
	return []tier{
		{p.KeepHourly, func(t time.Time) int64 { return t.Truncate(time.Hour).Unix() }},
		{p.KeepDaily, func(t time.Time) int64 { return int64(t.Year()*10000 + int(t.Month())*100 + t.Day()) }},
		{p.KeepWeekly, func(t time.Time) int64 {
			y, w := t.ISOWeek()
			return int64(y*100 + w)
		}},
		{p.KeepMonthly, func(t time.Time) int64 { return int64(t.Year()*100 + int(t.Month())) }},
		{p.KeepYearly, func(t time.Time) int64 { return int64(t.Year()) }},
	}
}

// PlanDeletions returns the ids of the snapshots to delete, in input order.
//
// now anchors the grace period of incomplete snapshots.
func PlanDeletions(snapshots []models.Snapshot, policy models.RetentionPolicy, now time.Time) []string {
	keep := make(map[string]bool)
	for _, t := range tiers(policy) {
		for _, id := range keepTier(snapshots, keep, t) {
			keep[id] = true
		}
	}

	for _, s := range snapshots {
		if !s.IsComplete && now.Sub(s.CreatedAt) < IncompleteGrace {
			keep[s.ID] = true
		}
	}

	var remove []string
	seen := make(map[string]bool)
	for _, s := range snapshots {
		if keep[s.ID] || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		remove = append(remove, s.ID)
	}
	return remove
}

// keepTier returns the newest snapshot of each of the limit most recent buckets.
func keepTier(snapshots []models.Snapshot, kept map[string]bool, t tier) []string {
	if t.limit <= 0 {
		return nil
	}

	candidates := make([]models.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.IsComplete && !kept[s.ID] {
			candidates = append(candidates, s)
		}
	}
	slices.SortStableFunc(candidates, func(a, b models.Snapshot) int { return b.CreatedAt.Compare(a.CreatedAt) })

	newest := make(map[int64]string)
	var keys []int64
	for _, s := range candidates {
		k := t.key(s.CreatedAt)
		if _, ok := newest[k]; ok {
			continue
		}
		newest[k] = s.ID
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b int64) int { return cmp.Compare(b, a) })

	ids := make([]string, 0, min(t.limit, len(keys)))
	for _, k := range keys[:min(t.limit, len(keys))] {
		ids = append(ids, newest[k])
	}
	return ids
}
