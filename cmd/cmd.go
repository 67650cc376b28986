// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("PLSYNC_CONFIG"),
	}
}

func retentionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "keep-hourly", Usage: "Hourly snapshots to keep (default from [retention])"},
		&cli.IntFlag{Name: "keep-daily", Usage: "Daily snapshots to keep (default from [retention])"},
		&cli.IntFlag{Name: "keep-weekly", Usage: "Weekly snapshots to keep (default from [retention])"},
		&cli.IntFlag{Name: "keep-monthly", Usage: "Monthly snapshots to keep (default from [retention])"},
		&cli.IntFlag{Name: "keep-yearly", Usage: "Yearly snapshots to keep (default from [retention])"},
	}
}

func accountFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "account",
		Usage: "Server url or owner id (default: the configured url, or the authorized Spotify or Tidal user)",
	}
}

// setupCommand handles setup operations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize the database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "rollback", Usage: "Undo the latest applied migration instead"},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

func authFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "no-browser", Usage: "Print the authorization url instead of opening a browser"},
		&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for the callback", Value: 2 * time.Minute},
	}
}

// authCommand handles interactive authorization.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize streaming services",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Run the Spotify OAuth2 flow and store the token in the config file",
				Flags:  authFlags(),
				Action: r.AuthSpotify,
			},
			{
				Name:   "tidal",
				Usage:  "Run the Tidal OAuth2 flow (PKCE) and store the token in the config file",
				Flags:  authFlags(),
				Action: r.AuthTidal,
			},
		},
	}
}

func pullCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Capture a snapshot of every playlist of one account",
		ArgsUsage: "<subsonic|navidrome|plex|jellyfin|spotify|tidal>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "service"},
		},
		Flags: append([]cli.Flag{
			accountFlag(),
			&cli.StringFlag{
				Name:  "liked-playlist-name",
				Usage: "Also capture liked tracks as a playlist with this name",
			},
			&cli.IntFlag{Name: "threads", Usage: "Playlists fetched concurrently", Value: 1},
			&cli.IntFlag{Name: "limit", Usage: "Skip playlists with more tracks than this (0 keeps all)", Sources: cli.EnvVars("PLSYNC_PULL_LIMIT")},
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "Cron expression (e.g. \"@hourly\" or \"0 */6 * * *\"); pulls repeatedly until interrupted",
			},
		}, retentionFlags()...),
		Action: r.Pull,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync playlists from one snapshot to another account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from-service", Usage: "Source service", Required: true, Sources: cli.EnvVars("PLSYNC_FROM_SERVICE")},
			&cli.StringFlag{Name: "from-name", Usage: "Source server url or owner id", Sources: cli.EnvVars("PLSYNC_FROM_NAME")},
			&cli.StringFlag{Name: "to-service", Usage: "Destination service", Required: true, Sources: cli.EnvVars("PLSYNC_TO_SERVICE")},
			&cli.StringFlag{Name: "to-name", Usage: "Destination server url or owner id", Sources: cli.EnvVars("PLSYNC_TO_NAME")},
			&cli.StringFlag{Name: "from-playlist-name", Usage: "Only sync the source playlist with this name", Sources: cli.EnvVars("PLSYNC_FROM_PLAYLIST_NAME")},
			&cli.StringFlag{Name: "to-playlist-name", Usage: "Only sync into the destination playlist with this name", Sources: cli.EnvVars("PLSYNC_TO_PLAYLIST_NAME")},
			&cli.StringFlag{Name: "to-playlist-prefix", Usage: "Prefix added to destination playlist names", Sources: cli.EnvVars("PLSYNC_TO_PLAYLIST_PREFIX")},
			&cli.StringSliceFlag{Name: "from-skip-playlist", Usage: "Source playlist to skip (repeatable)", Sources: cli.EnvVars("PLSYNC_FROM_SKIP_PLAYLISTS")},
			&cli.StringSliceFlag{Name: "from-skip-prefix", Usage: "Skip source playlists starting with this prefix (repeatable)", Sources: cli.EnvVars("PLSYNC_FROM_SKIP_PREFIX_PLAYLISTS")},
			&cli.StringSliceFlag{Name: "to-skip-playlist", Usage: "Destination playlist to leave untouched (repeatable)", Sources: cli.EnvVars("PLSYNC_TO_SKIP_PLAYLISTS")},
			&cli.StringSliceFlag{Name: "to-skip-prefix", Usage: "Leave destination playlists starting with this prefix untouched (repeatable)", Sources: cli.EnvVars("PLSYNC_TO_SKIP_PREFIX_PLAYLISTS")},
			&cli.StringFlag{Name: "from-like-playlist-name", Usage: "Source playlist holding liked tracks", Sources: cli.EnvVars("PLSYNC_FROM_LIKE_PLAYLIST_NAME")},
			&cli.StringFlag{Name: "to-like-playlist-name", Usage: "Destination liked-tracks playlist name", Sources: cli.EnvVars("PLSYNC_TO_LIKE_PLAYLIST_NAME")},
			&cli.IntFlag{Name: "match-percentage", Usage: "Fuzzy match threshold (default from [sync])", Sources: cli.EnvVars("PLSYNC_MATCH_PERCENTAGE")},
			&cli.BoolFlag{Name: "force-add-track", Usage: "Add tracks even when the destination already has them", Sources: cli.EnvVars("PLSYNC_FORCE_ADD_TRACK")},
			&cli.BoolFlag{Name: "deep-search-through-artist", Usage: "Fall back to walking the artist catalog", Sources: cli.EnvVars("PLSYNC_DEEP_SEARCH_THROUGH_ARTIST")},
			&cli.BoolFlag{Name: "second-search-without-album", Usage: "Retry each search without the album", Sources: cli.EnvVars("PLSYNC_SECOND_SEARCH_WITHOUT_ALBUM")},
			&cli.BoolFlag{Name: "sync-track-order", Usage: "Reorder destination playlists to match the source", Sources: cli.EnvVars("PLSYNC_SYNC_TRACK_ORDER")},
			&cli.IntFlag{Name: "playlist-threads", Usage: "Playlists synced concurrently (default from [sync])", Sources: cli.EnvVars("PLSYNC_PLAYLIST_THREADS")},
			&cli.IntFlag{Name: "track-threads", Usage: "Tracks resolved concurrently per playlist (default from [sync])", Sources: cli.EnvVars("PLSYNC_TRACK_THREADS")},
			&cli.StringFlag{Name: "report", Usage: "Write a per-track report (.csv, .json or text)"},
		},
		Action: r.Sync,
	}
}

func snapshotsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "snapshots",
		Aliases: []string{"snap"},
		Usage:   "Inspect and maintain stored snapshots",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List snapshots, optionally for one service",
				ArgsUsage: "[service]",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.SnapshotsList,
			},
			{
				Name:      "prune",
				Usage:     "Apply the retention policy to one account without pulling",
				ArgsUsage: "<service>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags:  append([]cli.Flag{accountFlag()}, retentionFlags()...),
				Action: r.SnapshotsPrune,
			},
			{
				Name:      "export",
				Usage:     "Write the latest complete snapshot of one account to files",
				ArgsUsage: "<service>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					accountFlag(),
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, csv, markdown or txt", Value: "json"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
					&cli.IntFlag{Name: "workers", Usage: "Playlists written concurrently", Value: 4},
				},
				Action: r.SnapshotsExport,
			},
		},
	}
}
