// package reorder converges a destination playlist to the order of its source playlist,
// one move at a time, against a backend that can only move single entries.
package reorder

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// MaxMovingPlaylistTracksLoop caps how often the same entry may be moved to the same position.
const MaxMovingPlaylistTracksLoop = 10

// Mover moves one playlist entry to a new 1-based position on the destination backend.
//
// current is the destination entry list as the reconciler believes it to be before the move.
// Returning false means the backend cannot reorder this playlist.
type Mover interface {
	SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error)
}

// MoverFunc adapts a function to [Mover].
type MoverFunc func(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error)

func (f MoverFunc) SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error) {
	return f(ctx, playlist, track, current, newOrder)
}

// Result summarizes one reconciliation.
type Result struct {
	Moves       int  // mover calls made
	Converged   bool // every pair ended at its desired position
	Skipped     bool // pair count did not cover the source playlist
	Aborted     bool // an entry was moved to the same position too often
	Unsupported bool // the mover declined to reorder
}

// ShouldReconcile reports whether order reconciliation may run for a playlist.
//
// Every source track must have a matched pair, and the destination must be a sortable regular playlist.
func ShouldReconcile(pairs, fromTracks int, isLikePlaylist, canSortTracks bool) bool {
	return pairs == fromTracks && !isLikePlaylist && canSortTracks
}

// Reconcile moves destination entries until every pair sits at its desired position.
//
// Each round moves the out-of-place pair with the largest desired position, then mirrors the move locally:
// moving later decrements the positions in (old, new], moving earlier increments the positions in [new, old).
// Pair positions are updated in place. When len(pairs) differs from fromTracks nothing is moved.
func Reconcile(ctx context.Context, playlist models.GenericPlaylist, pairs []*models.UpdatePlaylistTrackOrder, fromTracks int, mover Mover, logger *log.Logger) (Result, error) {
	var res Result
	if len(pairs) != fromTracks {
		res.Skipped = true
		return res, nil
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	attempts := make(map[string]map[int]int)
	for {
		next := nextOutOfPlace(pairs)
		if next == nil {
			res.Converged = true
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: %v", shared.ErrReorderAborted, err)
		}

		desired := next.NewPlaylistSortOrder
		ok, err := mover.SetTrackPlaylistOrder(ctx, playlist, next.ToTrack, currentTracks(pairs), desired)
		res.Moves++
		if err != nil {
			return res, fmt.Errorf("%w: moving %q to %d: %v", shared.ErrReorderAborted, next.ToTrack.Title, desired, err)
		}
		if !ok {
			res.Unsupported = true
			return res, nil
		}

		shift(pairs, next, desired)

		key := next.ToTrack.EntryKey()
		if attempts[key] == nil {
			attempts[key] = make(map[int]int)
		}
		attempts[key][desired]++
		if attempts[key][desired] >= MaxMovingPlaylistTracksLoop {
			logger.Warn("track order not converging, giving up", "playlist", playlist.Name, "track", next.ToTrack.Title, "position", desired)
			res.Aborted = true
			return res, nil
		}
	}
}

// AnchorFor returns the entry the moved track must be placed directly after to land on newOrder,
// or false when it must go to the top of the playlist.
func AnchorFor(track models.GenericTrack, current []models.GenericTrack, newOrder int) (models.GenericTrack, bool) {
	anchorPos := newOrder - 1
	if newOrder > track.PlaylistSortOrder {
		anchorPos = newOrder
	}
	if anchorPos < 1 {
		return models.GenericTrack{}, false
	}
	for _, t := range current {
		if t.PlaylistSortOrder == anchorPos && t.EntryKey() != track.EntryKey() {
			return t, true
		}
	}
	return models.GenericTrack{}, false
}

func nextOutOfPlace(pairs []*models.UpdatePlaylistTrackOrder) *models.UpdatePlaylistTrackOrder {
	var next *models.UpdatePlaylistTrackOrder
	for _, p := range pairs {
		if p.ToTrack.PlaylistSortOrder == p.NewPlaylistSortOrder {
			continue
		}
		if next == nil || p.NewPlaylistSortOrder > next.NewPlaylistSortOrder {
			next = p
		}
	}
	return next
}

func shift(pairs []*models.UpdatePlaylistTrackOrder, moved *models.UpdatePlaylistTrackOrder, desired int) {
	old := moved.ToTrack.PlaylistSortOrder
	for _, p := range pairs {
		if p == moved {
			continue
		}
		pos := p.ToTrack.PlaylistSortOrder
		switch {
		case desired > old && pos > old && pos <= desired:
			p.ToTrack.PlaylistSortOrder--
		case desired < old && pos >= desired && pos < old:
			p.ToTrack.PlaylistSortOrder++
		}
	}
	moved.ToTrack.PlaylistSortOrder = desired
}

func currentTracks(pairs []*models.UpdatePlaylistTrackOrder) []models.GenericTrack {
	tracks := make([]models.GenericTrack, 0, len(pairs))
	for _, p := range pairs {
		tracks = append(tracks, p.ToTrack)
	}
	slices.SortStableFunc(tracks, func(a, b models.GenericTrack) int {
		return a.PlaylistSortOrder - b.PlaylistSortOrder
	})
	return tracks
}
