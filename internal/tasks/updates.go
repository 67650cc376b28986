package tasks

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ResolveSnapshots Phase = iota
	LoadPlaylists
	SyncPlaylist
	ResolveTrack
	ReorderTracks
	PruneSnapshots
	FetchPlaylists
	SavePlaylist
	CompleteSnapshot
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case ResolveSnapshots:
		return "resolve_snapshots"
	case LoadPlaylists:
		return "load_playlists"
	case SyncPlaylist:
		return "sync_playlist"
	case ResolveTrack:
		return "resolve_track"
	case ReorderTracks:
		return "reorder_tracks"
	case PruneSnapshots:
		return "prune_snapshots"
	case FetchPlaylists:
		return "fetch_playlists"
	case SavePlaylist:
		return "save_playlist"
	case CompleteSnapshot:
		return "complete_snapshot"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func snapshotsUpdate(from, to *models.Snapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveSnapshots,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Using snapshots %d (%s) and %d (%s)", from.Sequence, from.ServiceName, to.Sequence, to.ServiceName),
	}
}

func loadPlaylistsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d playlists to sync", count),
	}
}

func playlistDoneUpdate(step, total int, res *PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Processing Playlists %d of %d processed (%s)", step, total, res.Source.Name),
		Data:    res,
	}
}

func trackUpdate(step, total int, playlist string, tr *TrackResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTrack,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%s %d/%d] %s: %s", playlist, step, total, tr.Outcome, tr.Source),
		Data:    tr,
	}
}

func reorderUpdate(playlist string, moves int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReorderTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Reordered '%s' with %d moves", playlist, moves),
	}
}

func pruneUpdate(planned int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PruneSnapshots,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Pruning %d snapshots", planned),
	}
}

func fetchPlaylistsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d playlists", count),
	}
}

func savePlaylistUpdate(step, total int, name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SavePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%d tracks)", step, total, name, tracks),
	}
}

func completeUpdate(snapshot *models.Snapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CompleteSnapshot,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Snapshot %d complete", snapshot.Sequence),
		Data:    snapshot,
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
