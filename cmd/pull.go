package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

// Pull captures a snapshot of one account, once or on a cron schedule.
func (r *Runner) Pull(ctx context.Context, cmd *cli.Command) error {
	service, err := serviceArg(cmd)
	if err != nil {
		return err
	}

	opts := tasks.PullOptions{
		LikedPlaylistName: cmd.String("liked-playlist-name"),
		Retention:         r.retention(cmd),
		Threads:           int(cmd.Int("threads")),
		TrackLimit:        int(cmd.Int("limit")),
	}
	if err := opts.Retention.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	client, account, err := r.client(ctx, service, cmd.String("account"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	schedule := cmd.String("schedule")
	if schedule == "" {
		return r.pullOnce(ctx, db, client, account, opts)
	}
	return r.pullScheduled(ctx, schedule, db, client, account, opts)
}

func (r *Runner) pullOnce(ctx context.Context, db *sql.DB, client services.Client, account string, opts tasks.PullOptions) error {
	logger := shared.WithLogger(r.logger, "service", client.Name(), "account", account)
	engine := tasks.NewPullEngine(db, logger)

	r.writeHeader(fmt.Sprintf("Pulling %s (%s)", client.Name(), account))

	progress, wait := r.watchProgress()
	res, err := engine.Pull(ctx, client, opts, progress)
	wait()
	if err != nil {
		return err
	}

	r.writePlain("\n%s", r.palette.KeyValue(
		[2]string{"Snapshot", fmt.Sprintf("%d (%s)", res.Snapshot.Sequence, res.Snapshot.ID)},
		[2]string{"Playlists", fmt.Sprint(res.Playlists)},
		[2]string{"Tracks", fmt.Sprint(res.Tracks)},
		[2]string{"Failed", fmt.Sprint(res.Failed)},
		[2]string{"Skipped", fmt.Sprint(res.Skipped)},
		[2]string{"Pruned", fmt.Sprint(res.Pruned)},
	))
	if res.Failed > 0 {
		r.writePlain("%s\n", r.palette.Warn(fmt.Sprintf("%d playlists could not be fetched, see the log", res.Failed)))
	}
	return nil
}

// pullScheduled pulls immediately, then on every tick of schedule until ctx is done.
// A tick that arrives while a pull is still running is skipped.
func (r *Runner) pullScheduled(ctx context.Context, schedule string, db *sql.DB, client services.Client, account string, opts tasks.PullOptions) error {
	logger := cronLogger{r.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	if _, err := c.AddFunc(schedule, func() {
		if err := r.pullOnce(ctx, db, client, account, opts); err != nil {
			r.logger.Error("scheduled pull failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", shared.ErrInvalidFlag, schedule, err)
	}

	if err := r.pullOnce(ctx, db, client, account, opts); err != nil {
		r.logger.Error("pull failed", "error", err)
	}

	c.Start()
	r.logger.Info("scheduled pulls started", "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("scheduled pulls stopped")
	return nil
}

// cronLogger adapts a [log.Logger] to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

// watchProgress prints updates until the returned wait function is called.
func (r *Runner) watchProgress() (chan<- tasks.ProgressUpdate, func()) {
	progress := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			r.printProgress(update)
		}
	}()

	return progress, func() {
		close(progress)
		<-done
	}
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch data := update.Data.(type) {
	case *tasks.TrackResult:
		r.writePlain("  %s %s\n", r.palette.Outcome(data.Outcome.String()), r.palette.Progress(update.Step, update.Total, data.Source.String()))
	case *tasks.PlaylistResult:
		line := update.Message
		switch {
		case data.Err != nil:
			line = r.palette.Error(line + ": " + data.Err.Error())
		case data.Skipped:
			line = r.palette.Warn(line + ": " + data.SkipReason)
		}
		r.writePlain("%s\n", line)
	default:
		r.writePlain("%s\n", update.Message)
	}
}
