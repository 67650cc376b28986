package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newPullFixture(t *testing.T) (*PullEngine, *tu.MockClient, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)

	lib := tu.NewMockLibrary()
	lib.AddPlaylist(models.GenericPlaylist{ID: "p1", Name: "Mix", CanAddTracks: true}, alpha, bravo)
	lib.AddPlaylist(models.GenericPlaylist{ID: "p2", Name: "Chill", CanAddTracks: true}, charlie)
	lib.Liked = []models.GenericTrack{track("s4", "Delta")}

	engine := NewPullEngine(db, shared.NewLogger(io.Discard))
	return engine, tu.NewMockClient(models.ServiceNavidrome, "http://navidrome:4533", lib), db
}

func noRetention() models.RetentionPolicy {
	return models.RetentionPolicy{KeepHourly: 100, KeepDaily: 100, KeepWeekly: 100, KeepMonthly: 100, KeepYearly: 100}
}

func TestPullEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("captures playlists and liked tracks", func(t *testing.T) {
		engine, client, db := newPullFixture(t)

		res, err := engine.Pull(ctx, client, PullOptions{LikedPlaylistName: "Loved", Retention: noRetention()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Playlists != 3 || res.Tracks != 4 || res.Failed != 0 {
			t.Errorf("unexpected result %+v", res)
		}
		if !res.Snapshot.IsComplete {
			t.Error("expected a complete snapshot")
		}

		snap, err := repositories.NewSnapshotRepository(db).LatestComplete(models.ServiceNavidrome, "http://navidrome:4533")
		if err != nil {
			t.Fatalf("expected a complete snapshot, got %v", err)
		}

		library := repositories.NewLibraryRepository(db)
		playlists, err := library.Playlists(snap.ID)
		if err != nil || len(playlists) != 3 {
			t.Fatalf("expected 3 stored playlists, got %v %v", playlists, err)
		}

		loved, err := library.PlaylistTracksByName(snap.ID, "Loved")
		if err != nil || len(loved) != 1 || loved[0].Title != "Delta" {
			t.Errorf("expected the liked track, got %v %v", loved, err)
		}

		mix, err := library.PlaylistTracks(snap.ID, "p1")
		if err != nil || len(mix) != 2 || mix[0].PlaylistSortOrder != 1 || mix[1].Title != "Bravo" {
			t.Errorf("expected Mix in order, got %+v %v", mix, err)
		}

		server, err := repositories.NewServerRepository(db).GetByURL(models.ServiceNavidrome, "http://navidrome:4533")
		if err != nil || server.LastSyncAt == nil {
			t.Errorf("expected last sync to be set, got %+v %v", server, err)
		}
	})

	t.Run("failed playlist is left out", func(t *testing.T) {
		engine, client, db := newPullFixture(t)
		client.FailFetch = map[string]error{"p2": errors.New("timeout")}

		res, err := engine.Pull(ctx, client, PullOptions{Retention: noRetention()}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Failed != 1 || res.Playlists != 1 {
			t.Errorf("expected 1 failed and 1 saved, got %+v", res)
		}

		playlists, _ := repositories.NewLibraryRepository(db).Playlists(res.Snapshot.ID)
		if len(playlists) != 1 || playlists[0].Name != "Mix" {
			t.Errorf("expected only Mix, got %+v", playlists)
		}
	})

	t.Run("playlists over the track limit are skipped", func(t *testing.T) {
		engine, client, db := newPullFixture(t)
		client.AddPlaylist(models.GenericPlaylist{ID: "p3", Name: "Everything", CanAddTracks: true, TrackCount: 5000})

		res, err := engine.Pull(ctx, client, PullOptions{Retention: noRetention(), TrackLimit: 1}, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Playlists != 1 || res.Skipped != 2 || res.Failed != 0 || res.Tracks != 1 {
			t.Errorf("expected only Chill to be kept, got %+v", res)
		}
		if !res.Snapshot.IsComplete {
			t.Error("expected a complete snapshot")
		}

		playlists, _ := repositories.NewLibraryRepository(db).Playlists(res.Snapshot.ID)
		if len(playlists) != 1 || playlists[0].Name != "Chill" {
			t.Errorf("expected only Chill, got %+v", playlists)
		}
	})

	t.Run("cancelled pull stays incomplete", func(t *testing.T) {
		engine, client, db := newPullFixture(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := engine.Pull(cancelled, client, PullOptions{Retention: noRetention()}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}

		_, err = repositories.NewSnapshotRepository(db).LatestComplete(models.ServiceNavidrome, "http://navidrome:4533")
		if !errors.Is(err, shared.ErrSnapshotNotFound) {
			t.Errorf("expected no complete snapshot, got %v", err)
		}
	})

	t.Run("applies retention before writing", func(t *testing.T) {
		engine, client, db := newPullFixture(t)
		policy := models.RetentionPolicy{KeepHourly: 1}
		start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		var last *PullResult
		for i := range 3 {
			engine.now = func() time.Time { return start.Add(time.Duration(i) * 2 * time.Hour) }
			res, err := engine.Pull(ctx, client, PullOptions{Retention: policy}, nil)
			if err != nil {
				t.Fatalf("pull %d failed: %v", i, err)
			}
			last = res
		}

		if last.Pruned != 1 {
			t.Errorf("expected the third pull to prune 1 snapshot, got %d", last.Pruned)
		}
		snapshots, err := repositories.NewSnapshotRepository(db).ListByServer(last.Server.ID)
		if err != nil || len(snapshots) != 2 {
			t.Errorf("expected 2 snapshots left, got %d %v", len(snapshots), err)
		}
	})

	t.Run("rejects a negative policy", func(t *testing.T) {
		engine, client, _ := newPullFixture(t)

		_, err := engine.Pull(ctx, client, PullOptions{Retention: models.RetentionPolicy{KeepDaily: -1}}, nil)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Prune without pulling", func(t *testing.T) {
		engine, client, _ := newPullFixture(t)
		start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		for i := range 3 {
			engine.now = func() time.Time { return start.Add(time.Duration(i) * time.Hour) }
			if _, err := engine.Pull(ctx, client, PullOptions{Retention: noRetention()}, nil); err != nil {
				t.Fatalf("pull %d failed: %v", i, err)
			}
		}

		deleted, err := engine.Prune(models.ServiceNavidrome, "http://navidrome:4533", models.RetentionPolicy{KeepHourly: 1})
		if err != nil || deleted != 2 {
			t.Errorf("expected 2 deleted, got %d %v", deleted, err)
		}

		if _, err := engine.Prune(models.ServicePlex, "http://nowhere", noRetention()); !errors.Is(err, shared.ErrServerNotFound) {
			t.Errorf("expected ErrServerNotFound, got %v", err)
		}
	})
}

func TestBulkExport(t *testing.T) {
	ctx := context.Background()
	engine, client, db := newPullFixture(t)

	res, err := engine.Pull(ctx, client, PullOptions{LikedPlaylistName: "Loved", Retention: noRetention()}, nil)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	library := repositories.NewLibraryRepository(db)

	for _, format := range []string{"csv", "markdown", "txt", "json"} {
		t.Run(format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			progress := make(chan ProgressUpdate, 10)

			result, err := BulkExport(ctx, library, res.Snapshot, BulkExportOpts{Format: format, OutputDir: dir, NumWorkers: 2}, progress, shared.NewLogger(io.Discard))
			if err != nil {
				t.Fatalf("BulkExport failed: %v", err)
			}
			if result.SuccessfulExports != 3 || result.FailedExports != 0 {
				t.Errorf("expected 3 exports, got %+v", result)
			}
			tu.AssertFileExists(t, result.ManifestPath)

			for _, r := range result.Results {
				for _, f := range r.Files {
					tu.AssertFileExists(t, f)
				}
			}
			if len(progress) != 3 {
				t.Errorf("expected 3 progress updates, got %d", len(progress))
			}
		})
	}

	t.Run("unwritable output", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := BulkExport(ctx, library, res.Snapshot, BulkExportOpts{OutputDir: filepath.Join(file, "out")}, nil, nil); err == nil {
			t.Error("expected an error")
		}
	})
}
