package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/parallel"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/retention"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// PullOptions tunes one pull.
type PullOptions struct {
	LikedPlaylistName string // captures liked tracks as a pseudo playlist when set
	Retention         models.RetentionPolicy
	Threads           int
	TrackLimit        int // playlists with more tracks are skipped, 0 keeps everything
}

// PullResult summarizes a pull.
type PullResult struct {
	Server    *models.Server
	Snapshot  *models.Snapshot
	Pruned    int64
	Playlists int
	Tracks    int
	Failed    int
	Skipped   int // over PullOptions.TrackLimit
}

// PullEngine captures the playlists of a backend account into a new snapshot.
type PullEngine struct {
	servers   *repositories.ServerRepository
	snapshots *repositories.SnapshotRepository
	library   *repositories.LibraryRepository
	logger    *log.Logger
	now       func() time.Time
}

// NewPullEngine creates a PullEngine storing snapshots in db.
func NewPullEngine(db *sql.DB, logger *log.Logger) *PullEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PullEngine{
		servers:   repositories.NewServerRepository(db),
		snapshots: repositories.NewSnapshotRepository(db),
		library:   repositories.NewLibraryRepository(db),
		logger:    logger,
		now:       time.Now,
	}
}

// Pull creates a snapshot of every playlist of client.
//
// Retention runs right after the new snapshot is created, before any playlist is written. A playlist
// whose tracks cannot be fetched is logged and left out. The snapshot is only marked complete when the
// pull was not cancelled.
func (e *PullEngine) Pull(ctx context.Context, client services.Client, opts PullOptions, progress chan<- ProgressUpdate) (*PullResult, error) {
	if err := opts.Retention.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	account, err := client.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s account: %w", client.Name(), err)
	}
	logger := shared.WithLogger(e.logger, "service", client.Name(), "account", account)

	server, err := e.servers.Upsert(client.Name(), account)
	if err != nil {
		return nil, err
	}
	snapshot, err := e.snapshots.Create(server, e.now())
	if err != nil {
		return nil, err
	}
	result := &PullResult{Server: server, Snapshot: snapshot}
	logger.Info("pulling", "snapshot", snapshot.Sequence)

	pruned, err := e.prune(server, opts.Retention, progress)
	if err != nil {
		return result, err
	}
	result.Pruned = pruned

	playlists, err := client.FetchPlaylists(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch playlists: %w", err)
	}
	if opts.LikedPlaylistName != "" {
		liked := models.GenericPlaylist{ID: models.LikedPlaylistID(opts.LikedPlaylistName), Name: opts.LikedPlaylistName, CanAddTracks: true}
		playlists = append([]models.GenericPlaylist{liked}, playlists...)
	}
	if opts.TrackLimit > 0 {
		kept := playlists[:0]
		for _, p := range playlists {
			if p.TrackCount > opts.TrackLimit {
				logger.Info("skipping playlist over the track limit", "playlist", p.Name, "tracks", p.TrackCount, "limit", opts.TrackLimit)
				result.Skipped++
				continue
			}
			kept = append(kept, p)
		}
		playlists = kept
	}
	sendProgress(progress, fetchPlaylistsUpdate(len(playlists)))

	var done, tracks, oversized atomic.Int64
	result.Failed = parallel.RunEach(ctx, logger, playlists, opts.Threads, func(ctx context.Context, p models.GenericPlaylist) error {
		var items []models.GenericTrack
		var err error
		liked := opts.LikedPlaylistName != "" && p.ID == models.LikedPlaylistID(opts.LikedPlaylistName)
		if liked {
			items, err = client.FetchLikedTracks(ctx)
		} else {
			items, err = client.FetchPlaylistTracks(ctx, p.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch tracks of %q: %w", p.Name, err)
		}
		if opts.TrackLimit > 0 && !liked && len(items) > opts.TrackLimit {
			logger.Info("skipping playlist over the track limit", "playlist", p.Name, "tracks", len(items), "limit", opts.TrackLimit)
			oversized.Add(1)
			return nil
		}

		if err := e.library.SavePlaylist(snapshot.ID, p, items); err != nil {
			return err
		}
		tracks.Add(int64(len(items)))
		sendProgress(progress, savePlaylistUpdate(int(done.Add(1)), len(playlists), p.Name, len(items)))
		return nil
	})
	result.Skipped += int(oversized.Load())
	result.Playlists = len(playlists) - result.Failed - int(oversized.Load())
	result.Tracks = int(tracks.Load())

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("pull of %s interrupted: %w", client.Name(), err)
	}

	if err := e.servers.TouchLastSync(server.ID, e.now()); err != nil {
		return result, err
	}
	if err := e.snapshots.Complete(snapshot.ID); err != nil {
		return result, err
	}
	snapshot.IsComplete = true
	sendProgress(progress, completeUpdate(snapshot))
	logger.Info("pull complete", "snapshot", snapshot.Sequence, "playlists", result.Playlists, "tracks", result.Tracks, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// Prune applies a retention policy to every snapshot of the account (service, url) without pulling.
func (e *PullEngine) Prune(service, url string, policy models.RetentionPolicy) (int64, error) {
	if err := policy.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	server, err := e.servers.GetByURL(service, url)
	if err != nil {
		return 0, err
	}
	return e.prune(server, policy, nil)
}

func (e *PullEngine) prune(server *models.Server, policy models.RetentionPolicy, progress chan<- ProgressUpdate) (int64, error) {
	snapshots, err := e.snapshots.ListByServer(server.ID)
	if err != nil {
		return 0, err
	}

	ids := retention.PlanDeletions(snapshots, policy, e.now())
	if len(ids) == 0 {
		return 0, nil
	}
	sendProgress(progress, pruneUpdate(len(ids)))

	deleted, err := e.snapshots.DeleteMany(ids)
	if err != nil {
		return 0, err
	}
	e.logger.Info("pruned snapshots", "server", server.URL, "deleted", deleted)
	return deleted, nil
}
