package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/parallel"
	"github.com/desertthunder/plsync/internal/reorder"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// SnapshotIndex resolves the snapshot a sync reads from.
type SnapshotIndex interface {
	LatestComplete(service, url string) (*models.Snapshot, error)
}

// TrackOutcome is what happened to one source track.
type TrackOutcome int

const (
	TrackPending  TrackOutcome = iota // never attempted, the run was cancelled first
	TrackExisting                     // already in the destination playlist
	TrackAdded
	TrackLiked
	TrackNotFound
	TrackFailed
)

func (o TrackOutcome) String() string {
	switch o {
	case TrackPending:
		return "pending"
	case TrackExisting:
		return "existing"
	case TrackAdded:
		return "added"
	case TrackLiked:
		return "liked"
	case TrackNotFound:
		return "not found"
	case TrackFailed:
		return "failed"
	default:
		return ""
	}
}

// TrackResult records the resolution of one source track.
type TrackResult struct {
	Source     models.GenericTrack
	Match      models.GenericTrack
	Outcome    TrackOutcome
	DeepSearch bool // matched through the artist catalog walk
	Rated      bool
	Err        error
}

// PlaylistResult records the sync of one source playlist.
type PlaylistResult struct {
	Source     models.GenericPlaylist
	Target     models.GenericPlaylist
	Created    bool
	Skipped    bool
	SkipReason string
	Tracks     []TrackResult
	Reorder    reorder.Result
	ReorderErr error
	Err        error
}

// SyncResult summarizes a sync run.
type SyncResult struct {
	FromSnapshot *models.Snapshot
	ToSnapshot   *models.Snapshot
	Playlists    []PlaylistResult

	Existing        int
	Added           int
	Liked           int
	Rated           int
	NotFound        int
	Failed          int
	FailedPlaylists int
}

// SyncEngine copies playlists from one provider to another.
//
// Both sides are read from their latest complete snapshot; searches and writes reach the destination backend.
type SyncEngine struct {
	from      services.Provider
	to        services.Provider
	snapshots SnapshotIndex
	logger    *log.Logger
}

// NewSyncEngine creates a SyncEngine between two providers.
func NewSyncEngine(from, to services.Provider, snapshots SnapshotIndex, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncEngine{from: from, to: to, snapshots: snapshots, logger: logger}
}

type counters struct {
	existing, added, liked, rated, notFound, failed atomic.Int64
}

// syncRun holds the state shared by the playlists of one run.
type syncRun struct {
	*SyncEngine
	cfg      models.SyncConfiguration
	fromSnap *models.Snapshot
	toSnap   *models.Snapshot
	progress chan<- ProgressUpdate
	counts   counters

	targetsMu sync.Mutex
	targets   []models.GenericPlaylist
}

type playlistJob struct {
	index    int
	playlist models.GenericPlaylist
}

// Run syncs every selected source playlist to the destination.
//
// Only configuration problems return an error: an invalid configuration, a side without a complete snapshot,
// or no source playlist left after filtering. Playlist and track failures are logged and reported in the result.
func (e *SyncEngine) Run(ctx context.Context, cfg models.SyncConfiguration, progress chan<- ProgressUpdate) (*SyncResult, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	fromSnap, err := e.snapshots.LatestComplete(e.from.Name(), cfg.FromName)
	if err != nil {
		return nil, err
	}
	toSnap, err := e.snapshots.LatestComplete(e.to.Name(), cfg.ToName)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, snapshotsUpdate(fromSnap, toSnap))

	fromPlaylists, err := e.from.GetPlaylists(ctx, cfg.FromName, fromSnap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlists of %s: %w", e.from.Name(), err)
	}
	toPlaylists, err := e.to.GetPlaylists(ctx, cfg.ToName, toSnap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlists of %s: %w", e.to.Name(), err)
	}

	sources := selectSources(fromPlaylists, cfg)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no playlists in %s named %q", shared.ErrPlaylistNotFound, e.from.Name(), cfg.FromPlaylistName)
	}
	sendProgress(progress, loadPlaylistsUpdate(len(sources)))

	run := &syncRun{
		SyncEngine: e,
		cfg:        cfg,
		fromSnap:   fromSnap,
		toSnap:     toSnap,
		progress:   progress,
		targets:    selectTargets(toPlaylists, cfg),
	}
	result := &SyncResult{
		FromSnapshot: fromSnap,
		ToSnapshot:   toSnap,
		Playlists:    make([]PlaylistResult, len(sources)),
	}

	jobs := make([]playlistJob, len(sources))
	for i, p := range sources {
		jobs[i] = playlistJob{index: i, playlist: p}
	}

	var done atomic.Int64
	result.FailedPlaylists = parallel.RunEach(ctx, e.logger, jobs, cfg.PlaylistThreads, func(ctx context.Context, job playlistJob) error {
		res := &result.Playlists[job.index]
		defer func() {
			sendProgress(progress, playlistDoneUpdate(int(done.Add(1)), len(jobs), res))
		}()
		return run.syncPlaylist(ctx, job.playlist, res)
	})

	result.Existing = int(run.counts.existing.Load())
	result.Added = int(run.counts.added.Load())
	result.Liked = int(run.counts.liked.Load())
	result.Rated = int(run.counts.rated.Load())
	result.NotFound = int(run.counts.notFound.Load())
	result.Failed = int(run.counts.failed.Load())
	return result, nil
}

func selectSources(playlists []models.GenericPlaylist, cfg models.SyncConfiguration) []models.GenericPlaylist {
	var out []models.GenericPlaylist
	for _, p := range playlists {
		if cfg.FromPlaylistName != "" && p.Name != cfg.FromPlaylistName {
			continue
		}
		if cfg.SkipsSource(p.Name) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func selectTargets(playlists []models.GenericPlaylist, cfg models.SyncConfiguration) []models.GenericPlaylist {
	if cfg.ToPlaylistName == "" {
		return playlists
	}
	var out []models.GenericPlaylist
	for _, p := range playlists {
		if p.Name == cfg.ToPlaylistPrefix+cfg.ToPlaylistName {
			out = append(out, p)
		}
	}
	return out
}

// target finds the destination playlist by name, creating it when missing.
// The like playlist is never created; its tracks are liked instead of added.
func (r *syncRun) target(ctx context.Context, name string, isLike bool) (models.GenericPlaylist, bool, error) {
	r.targetsMu.Lock()
	defer r.targetsMu.Unlock()

	for _, p := range r.targets {
		if p.Name == name {
			return p, false, nil
		}
	}
	if isLike {
		return models.GenericPlaylist{Name: r.cfg.ToLikePlaylistName}, false, nil
	}

	created, err := r.to.CreatePlaylist(ctx, r.cfg.ToName, name)
	if err != nil {
		return models.GenericPlaylist{}, false, fmt.Errorf("failed to create playlist %q: %w", name, err)
	}
	r.targets = append(r.targets, created)
	return created, true, nil
}

func (r *syncRun) syncPlaylist(ctx context.Context, src models.GenericPlaylist, res *PlaylistResult) error {
	res.Source = src
	name := r.cfg.TargetName(src.Name)
	isLike := r.cfg.IsLikePlaylist(src.Name)
	logger := shared.WithLogger(r.logger, "playlist", src.Name)

	if r.cfg.SkipsTarget(name) {
		res.Skipped, res.SkipReason = true, "destination skipped"
		logger.Info("skipping playlist", "reason", res.SkipReason, "target", name)
		return nil
	}

	target, created, err := r.target(ctx, name, isLike)
	if err != nil {
		res.Err = err
		return err
	}
	res.Target, res.Created = target, created

	if !target.CanAddTracks && !isLike {
		res.Skipped, res.SkipReason = true, "destination is read-only"
		logger.Info("skipping playlist", "reason", res.SkipReason, "target", name)
		return nil
	}
	if created {
		logger.Info("created playlist", "target", target.Name, "id", target.ID)
	}

	fromTracks, err := r.from.GetPlaylistTracks(ctx, r.cfg.FromName, src.ID, r.fromSnap.ID)
	if err != nil {
		res.Err = fmt.Errorf("failed to load tracks of %q: %w", src.Name, err)
		return res.Err
	}

	var toTracks []models.GenericTrack
	switch {
	case isLike:
		toTracks, err = r.to.GetPlaylistTracksByName(ctx, r.cfg.ToName, r.cfg.ToLikePlaylistName, r.toSnap.ID)
	case !created:
		toTracks, err = r.to.GetPlaylistTracks(ctx, r.cfg.ToName, target.ID, r.toSnap.ID)
	}
	if err != nil {
		res.Err = fmt.Errorf("failed to load tracks of %q: %w", target.Name, err)
		return res.Err
	}

	ps := &playlistSync{
		syncRun:  r,
		logger:   logger,
		result:   res,
		target:   target,
		isLike:   isLike,
		toTracks: toTracks,
	}
	res.Tracks = make([]TrackResult, len(fromTracks))

	jobs := make([]trackJob, len(fromTracks))
	for i, t := range fromTracks {
		jobs[i] = trackJob{index: i, track: t}
	}
	parallel.RunEach(ctx, logger, jobs, r.cfg.TrackThreads, ps.syncTrack)

	if r.cfg.SyncTrackOrder && reorder.ShouldReconcile(len(ps.pairs), len(fromTracks), isLike, target.CanSortTracks) {
		ps.reconcile(ctx, len(fromTracks))
	}
	return nil
}

type trackJob struct {
	index int
	track models.GenericTrack
}

// playlistSync holds the state shared by the tracks of one playlist.
type playlistSync struct {
	*syncRun
	logger   *log.Logger
	result   *PlaylistResult
	target   models.GenericPlaylist
	isLike   bool
	toTracks []models.GenericTrack

	pairsMu sync.Mutex
	pairs   []*models.UpdatePlaylistTrackOrder

	addMu    sync.Mutex
	appended int

	done atomic.Int64
}

func (ps *playlistSync) syncTrack(ctx context.Context, job trackJob) error {
	tr := &ps.result.Tracks[job.index]
	tr.Source = job.track
	defer func() {
		ps.count(tr)
		sendProgress(ps.progress, trackUpdate(int(ps.done.Add(1)), len(ps.result.Tracks), ps.result.Source.Name, tr))
	}()

	if !ps.cfg.ForceAddTrack {
		if match, ok := ps.findExisting(job.track); ok {
			tr.Outcome, tr.Match = TrackExisting, match
			ps.pair(job.track, match)
			return nil
		}
	}

	found, deep, ok, err := ps.search(ctx, job.track)
	if err != nil {
		tr.Outcome, tr.Err = TrackFailed, err
		return fmt.Errorf("search failed for %s: %w", job.track, err)
	}
	if !ok {
		tr.Outcome = TrackNotFound
		ps.logger.Info("track not found", "service", ps.to.Name(), "track", job.track.String())
		return nil
	}
	tr.Match, tr.DeepSearch = found, deep

	rated, err := ps.to.RateTrack(ctx, ps.cfg.ToName, found, job.track.LikeRating)
	switch {
	case err != nil:
		ps.logger.Warn("failed to rate track", "track", found.String(), "error", err)
	case rated:
		tr.Rated = true
		ps.logger.Info("rated track", "rating", job.track.LikeRating, "track", found.String(), "deep", deep)
	}

	if ps.isLike {
		liked, err := ps.to.LikeTrack(ctx, ps.cfg.ToName, found, job.track.LikeRating)
		if err != nil || !liked {
			tr.Outcome = TrackFailed
			if err == nil {
				err = fmt.Errorf("%w: like rejected", shared.ErrAPIRequest)
			}
			tr.Err = err
			return fmt.Errorf("failed to like %s: %w", found, err)
		}
		tr.Outcome = TrackLiked
		ps.logger.Info("liked track", "rating", job.track.LikeRating, "track", found.String(), "deep", deep)
		return nil
	}

	position, err := ps.add(ctx, found)
	if err != nil {
		tr.Outcome, tr.Err = TrackFailed, err
		return fmt.Errorf("failed to add %s: %w", found, err)
	}
	tr.Outcome = TrackAdded
	ps.logger.Info("added track", "track", found.String(), "deep", deep)

	found.PlaylistSortOrder = position
	ps.pair(job.track, found)
	return nil
}

// findExisting matches a source track against the destination playlist as captured by its snapshot.
func (ps *playlistSync) findExisting(track models.GenericTrack) (models.GenericTrack, bool) {
	if match, ok := matcher.FindMatch(ps.toTracks, track, false, ps.cfg.MatchPercentage); ok {
		return match, true
	}
	if ps.cfg.SecondSearchWithoutAlbum {
		return matcher.FindMatch(ps.toTracks, track, true, ps.cfg.MatchPercentage)
	}
	return models.GenericTrack{}, false
}

// search runs the remote tiers in order of cost: narrow search, narrow search without album, then the
// artist catalog walk with and without album. It stops at the first accepted candidate.
func (ps *playlistSync) search(ctx context.Context, track models.GenericTrack) (models.GenericTrack, bool, bool, error) {
	cfg := ps.cfg

	results, err := ps.to.SearchTrack(ctx, cfg.ToName, track.ArtistName, track.AlbumName, track.Title)
	if err != nil {
		return models.GenericTrack{}, false, false, err
	}
	if m, ok := matcher.FindMatch(results, track, false, cfg.MatchPercentage); ok {
		return m, false, true, nil
	}

	if cfg.SecondSearchWithoutAlbum {
		results, err = ps.to.SearchTrack(ctx, cfg.ToName, track.ArtistName, "", track.Title)
		if err != nil {
			return models.GenericTrack{}, false, false, err
		}
		if m, ok := matcher.FindMatch(results, track, true, cfg.MatchPercentage); ok {
			return m, false, true, nil
		}
	}

	if !cfg.DeepSearchThroughArtist {
		return models.GenericTrack{}, false, false, nil
	}

	results, err = ps.to.DeepSearchTrack(ctx, cfg.ToName, track.ArtistName, track.AlbumName, track.Title, ps.toSnap.ID)
	if err != nil {
		return models.GenericTrack{}, false, false, err
	}
	if m, ok := matcher.FindMatch(results, track, false, cfg.MatchPercentage); ok {
		return m, true, true, nil
	}

	if cfg.SecondSearchWithoutAlbum {
		results, err = ps.to.DeepSearchTrack(ctx, cfg.ToName, track.ArtistName, "", track.Title, ps.toSnap.ID)
		if err != nil {
			return models.GenericTrack{}, false, false, err
		}
		if m, ok := matcher.FindMatch(results, track, true, cfg.MatchPercentage); ok {
			return m, true, true, nil
		}
	}
	return models.GenericTrack{}, false, false, nil
}

// add appends a track to the destination and returns the position it landed on.
// Adds are serialized so positions follow the order the backend received them.
func (ps *playlistSync) add(ctx context.Context, track models.GenericTrack) (int, error) {
	ps.addMu.Lock()
	defer ps.addMu.Unlock()

	ok, err := ps.to.AddTrackToPlaylist(ctx, ps.cfg.ToName, ps.target.ID, track)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: add rejected", shared.ErrAPIRequest)
	}
	ps.appended++
	return len(ps.toTracks) + ps.appended, nil
}

func (ps *playlistSync) pair(from, to models.GenericTrack) {
	if !ps.cfg.SyncTrackOrder {
		return
	}
	ps.pairsMu.Lock()
	defer ps.pairsMu.Unlock()

	ps.pairs = append(ps.pairs, &models.UpdatePlaylistTrackOrder{
		ToPlaylist:           ps.target,
		FromTrack:            from,
		ToTrack:              to,
		NewPlaylistSortOrder: from.PlaylistSortOrder,
	})
}

func (ps *playlistSync) count(tr *TrackResult) {
	c := &ps.counts
	switch tr.Outcome {
	case TrackExisting:
		c.existing.Add(1)
	case TrackAdded:
		c.added.Add(1)
	case TrackLiked:
		c.liked.Add(1)
	case TrackNotFound:
		c.notFound.Add(1)
	case TrackFailed:
		c.failed.Add(1)
	}
	if tr.Rated {
		c.rated.Add(1)
	}
}

func (ps *playlistSync) reconcile(ctx context.Context, fromTracks int) {
	mover := reorder.MoverFunc(func(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error) {
		return ps.to.SetTrackPlaylistOrder(ctx, ps.cfg.ToName, playlist, track, current, newOrder)
	})

	res, err := reorder.Reconcile(ctx, ps.target, ps.pairs, fromTracks, mover, ps.logger)
	ps.result.Reorder, ps.result.ReorderErr = res, err
	switch {
	case err != nil:
		ps.logger.Warn("track reordering aborted", "moves", res.Moves, "error", err)
	case res.Unsupported:
		ps.logger.Info("track reordering not supported", "service", ps.to.Name())
	case res.Moves > 0:
		ps.logger.Info("reordered tracks", "moves", res.Moves, "converged", res.Converged)
		sendProgress(ps.progress, reorderUpdate(ps.target.Name, res.Moves))
	}
}
