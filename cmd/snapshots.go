package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

type snapshotRow struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	Service    string    `json:"service"`
	Account    string    `json:"account"`
	CreatedAt  time.Time `json:"created_at"`
	IsComplete bool      `json:"is_complete"`
	Tracks     int       `json:"tracks"`
}

// SnapshotsList prints every stored snapshot, oldest first, optionally for one service.
func (r *Runner) SnapshotsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	servers, err := repositories.NewServerRepository(db).List()
	if err != nil {
		return err
	}
	accounts := make(map[string]string, len(servers))
	for _, s := range servers {
		accounts[s.ID] = s.URL
	}

	snapshots, err := repositories.NewSnapshotRepository(db).List(cmd.StringArg("service"))
	if err != nil {
		return err
	}

	library := repositories.NewLibraryRepository(db)
	rows := make([]snapshotRow, 0, len(snapshots))
	for _, s := range snapshots {
		tracks, err := library.CountTracks(s.ID)
		if err != nil {
			return err
		}
		rows = append(rows, snapshotRow{
			ID:         s.ID,
			Sequence:   s.Sequence,
			Service:    s.ServiceName,
			Account:    accounts[s.ServerID],
			CreatedAt:  s.CreatedAt,
			IsComplete: s.IsComplete,
			Tracks:     tracks,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows)
	}

	if len(rows) == 0 {
		r.writePlain("No snapshots found. Run 'plsync pull <service>' first.\n")
		return nil
	}

	r.writePlain("Found %d snapshots:\n\n", len(rows))
	for _, row := range rows {
		status := r.palette.Success("complete")
		if !row.IsComplete {
			status = r.palette.Warn("incomplete")
		}
		r.writePlain("%4d  %-10s %-35s %s  %6d tracks  %s\n", row.Sequence, row.Service, row.Account, row.CreatedAt.Local().Format(time.DateTime), row.Tracks, status)
	}
	return nil
}

// SnapshotsPrune applies the retention policy to one account.
func (r *Runner) SnapshotsPrune(ctx context.Context, cmd *cli.Command) error {
	service, err := serviceArg(cmd)
	if err != nil {
		return err
	}
	account, err := r.resolveAccount(ctx, service, cmd.String("account"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	deleted, err := tasks.NewPullEngine(db, r.logger).Prune(service, account, r.retention(cmd))
	if err != nil {
		return err
	}

	r.writePlain("%s pruned %d snapshots of %s (%s)\n", r.palette.Success("✓"), deleted, service, account)
	return nil
}

// SnapshotsExport writes the latest complete snapshot of one account to files.
func (r *Runner) SnapshotsExport(ctx context.Context, cmd *cli.Command) error {
	service, err := serviceArg(cmd)
	if err != nil {
		return err
	}
	account, err := r.resolveAccount(ctx, service, cmd.String("account"))
	if err != nil {
		return err
	}

	format := cmd.String("format")
	switch format {
	case "json", "csv", "markdown", "txt":
	default:
		return fmt.Errorf("%w: format must be json, csv, markdown or txt, got %q", shared.ErrInvalidFlag, format)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	snapshot, err := repositories.NewSnapshotRepository(db).LatestComplete(service, account)
	if err != nil {
		return err
	}

	r.writeHeader(fmt.Sprintf("Exporting snapshot %d of %s (%s)", snapshot.Sequence, service, account))

	progress, wait := r.watchProgress()
	res, err := tasks.BulkExport(ctx, repositories.NewLibraryRepository(db), snapshot, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
	}, progress, r.logger)
	wait()
	if err != nil {
		return err
	}

	r.writePlain("\n%s", r.palette.KeyValue(
		[2]string{"Exported", fmt.Sprintf("%d/%d", res.SuccessfulExports, res.TotalPlaylists)},
		[2]string{"Directory", res.OutputDirectory},
		[2]string{"Manifest", res.ManifestPath},
	))
	if res.FailedExports > 0 {
		r.writePlain("%s\n", r.palette.Warn(fmt.Sprintf("%d playlists failed, see the manifest", res.FailedExports)))
	}
	return nil
}
