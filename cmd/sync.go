package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// syncConfiguration merges the [sync] defaults with the flags that were set.
func (r *Runner) syncConfiguration(cmd *cli.Command) models.SyncConfiguration {
	defaults := r.config.Sync
	cfg := models.SyncConfiguration{
		FromService:             cmd.String("from-service"),
		FromName:                cmd.String("from-name"),
		ToService:               cmd.String("to-service"),
		ToName:                  cmd.String("to-name"),
		FromPlaylistName:        cmd.String("from-playlist-name"),
		ToPlaylistName:          cmd.String("to-playlist-name"),
		ToPlaylistPrefix:        cmd.String("to-playlist-prefix"),
		FromSkipPlaylists:       cmd.StringSlice("from-skip-playlist"),
		FromSkipPrefixPlaylists: cmd.StringSlice("from-skip-prefix"),
		ToSkipPlaylists:         cmd.StringSlice("to-skip-playlist"),
		ToSkipPrefixPlaylists:   cmd.StringSlice("to-skip-prefix"),
		FromLikePlaylistName:    cmd.String("from-like-playlist-name"),
		ToLikePlaylistName:      cmd.String("to-like-playlist-name"),

		MatchPercentage:          defaults.MatchPercentage,
		ForceAddTrack:            defaults.ForceAddTrack,
		DeepSearchThroughArtist:  defaults.DeepSearchThroughArtist,
		SecondSearchWithoutAlbum: defaults.SecondSearchWithoutAlbum,
		SyncTrackOrder:           defaults.SyncTrackOrder,
		PlaylistThreads:          defaults.PlaylistThreads,
		TrackThreads:             defaults.TrackThreads,
	}

	for flag, field := range map[string]*int{
		"match-percentage": &cfg.MatchPercentage,
		"playlist-threads": &cfg.PlaylistThreads,
		"track-threads":    &cfg.TrackThreads,
	} {
		if cmd.IsSet(flag) {
			*field = int(cmd.Int(flag))
		}
	}
	for flag, field := range map[string]*bool{
		"force-add-track":             &cfg.ForceAddTrack,
		"deep-search-through-artist":  &cfg.DeepSearchThroughArtist,
		"second-search-without-album": &cfg.SecondSearchWithoutAlbum,
		"sync-track-order":            &cfg.SyncTrackOrder,
	} {
		if cmd.IsSet(flag) {
			*field = cmd.Bool(flag)
		}
	}

	return cfg.WithDefaults()
}

// Sync copies playlists between the latest complete snapshots of two accounts.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	cfg := r.syncConfiguration(cmd)

	var err error
	if cfg.FromName, err = r.resolveAccount(ctx, cfg.FromService, cfg.FromName); err != nil {
		return err
	}
	if cfg.ToName, err = r.resolveAccount(ctx, cfg.ToService, cfg.ToName); err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	library := repositories.NewLibraryRepository(db)
	from, err := r.registry.Provider(cfg.FromService, cfg.FromName, library, r.deps(cfg.MatchPercentage))
	if err != nil {
		return err
	}
	to, err := r.registry.Provider(cfg.ToService, cfg.ToName, library, r.deps(cfg.MatchPercentage))
	if err != nil {
		return err
	}

	logger := shared.WithLogger(r.logger, "from", cfg.FromService, "to", cfg.ToService)
	engine := tasks.NewSyncEngine(from, to, repositories.NewSnapshotRepository(db), logger)

	r.writeHeader(fmt.Sprintf("Syncing %s (%s) → %s (%s)", cfg.FromService, cfg.FromName, cfg.ToService, cfg.ToName))

	progress, wait := r.watchProgress()
	res, err := engine.Run(ctx, cfg, progress)
	wait()
	if err != nil {
		return err
	}

	r.printSyncSummary(res)

	if path := cmd.String("report"); path != "" {
		if err := formatter.WriteReport(path, res.ReportRows()); err != nil {
			return err
		}
		r.writePlain("Report written to %s\n", path)
	}
	return nil
}

// resolveAccount returns account, or the account of the configured client for service when it is empty.
func (r *Runner) resolveAccount(ctx context.Context, service, account string) (string, error) {
	if account != "" {
		return account, nil
	}
	_, resolved, err := r.client(ctx, service, "")
	return resolved, err
}

func (r *Runner) printSyncSummary(res *tasks.SyncResult) {
	r.writePlainln("%s", r.palette.Title("Sync complete"))
	r.writePlain("%s", r.palette.KeyValue(
		[2]string{"Snapshots", fmt.Sprintf("%d → %d", res.FromSnapshot.Sequence, res.ToSnapshot.Sequence)},
		[2]string{"Playlists", fmt.Sprint(len(res.Playlists))},
		[2]string{"Existing", fmt.Sprint(res.Existing)},
		[2]string{"Added", r.palette.Success(fmt.Sprint(res.Added))},
		[2]string{"Liked", r.palette.Success(fmt.Sprint(res.Liked))},
		[2]string{"Rated", fmt.Sprint(res.Rated)},
		[2]string{"Not found", r.palette.Warn(fmt.Sprint(res.NotFound))},
		[2]string{"Failed", r.palette.Error(fmt.Sprint(res.Failed))},
	))

	for _, p := range res.Playlists {
		if p.Reorder.Moves > 0 || p.ReorderErr != nil {
			status := fmt.Sprintf("%d moves", p.Reorder.Moves)
			if p.ReorderErr != nil {
				status = r.palette.Error(p.ReorderErr.Error())
			}
			r.writePlain("Reordered %s: %s\n", p.Target.Name, status)
		}
	}
	if res.FailedPlaylists > 0 {
		r.writePlain("%s\n", r.palette.Warn(fmt.Sprintf("%d playlists failed, see the log", res.FailedPlaylists)))
	}
}
