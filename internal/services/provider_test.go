package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

// stubReader serves one fixed snapshot.
type stubReader struct {
	playlists []models.GenericPlaylist
	tracks    map[string][]models.GenericTrack
	byArtist  []models.GenericTrack
	err       error
}

func (s *stubReader) Playlists(string) ([]models.GenericPlaylist, error) {
	return s.playlists, s.err
}

func (s *stubReader) PlaylistTracks(_, playlistID string) ([]models.GenericTrack, error) {
	return s.tracks[playlistID], s.err
}

func (s *stubReader) PlaylistTracksByName(_, name string) ([]models.GenericTrack, error) {
	for _, p := range s.playlists {
		if p.Name == name {
			return s.tracks[p.ID], s.err
		}
	}
	return nil, s.err
}

func (s *stubReader) TracksByArtist(string, string) ([]models.GenericTrack, error) {
	return s.byArtist, s.err
}

// unsupportedDeep wraps a client whose deep search is not available.
type unsupportedDeep struct {
	*tu.MockClient
}

func (unsupportedDeep) DeepSearchTrack(context.Context, string, string, string) ([]models.GenericTrack, error) {
	return nil, shared.ErrUnsupported
}

func TestSnapshotProvider(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("reads come from the snapshot", func(t *testing.T) {
		lib := tu.NewMockLibrary()
		lib.AddPlaylist(models.GenericPlaylist{ID: "live", Name: "Live"})

		store := &stubReader{
			playlists: []models.GenericPlaylist{{ID: "snap", Name: "Snap"}},
			tracks:    map[string][]models.GenericTrack{"snap": {{ID: "t1", PlaylistSortOrder: 1}}},
		}
		p := NewSnapshotProvider(tu.NewMockClient("mock", "acct", lib), store, logger)

		playlists, err := p.GetPlaylists(ctx, "acct", "s1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 1 || playlists[0].ID != "snap" {
			t.Errorf("expected snapshot playlists, got %+v", playlists)
		}

		tracks, err := p.GetPlaylistTracksByName(ctx, "acct", "Snap", "s1")
		if err != nil || len(tracks) != 1 {
			t.Errorf("expected 1 snapshot track, got %v %v", tracks, err)
		}
	})

	t.Run("writes go to the backend", func(t *testing.T) {
		lib := tu.NewMockLibrary()
		p := NewSnapshotProvider(tu.NewMockClient("mock", "acct", lib), &stubReader{}, logger)

		created, err := p.CreatePlaylist(ctx, "acct", "New")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok, err := p.AddTrackToPlaylist(ctx, "acct", created.ID, models.GenericTrack{ID: "t1"}); !ok || err != nil {
			t.Fatalf("expected add to succeed, got %v %v", ok, err)
		}
		if ok, _ := p.LikeTrack(ctx, "acct", models.GenericTrack{ID: "t2"}, 10); !ok {
			t.Error("expected like to succeed")
		}

		if got := lib.TrackIDs(created.ID); len(got) != 1 || got[0] != "t1" {
			t.Errorf("expected t1 in new playlist, got %v", got)
		}
		if len(lib.LikeIDs) != 1 {
			t.Errorf("expected 1 like, got %d", len(lib.LikeIDs))
		}
	})

	t.Run("deep search merges snapshot tracks", func(t *testing.T) {
		lib := tu.NewMockLibrary()
		lib.Catalog = []models.GenericTrack{{ID: "r1", ArtistName: "Artist"}}
		store := &stubReader{byArtist: []models.GenericTrack{{ID: "r1", ArtistName: "Artist"}, {ID: "s1", ArtistName: "Artist"}}}

		p := NewSnapshotProvider(tu.NewMockClient("mock", "acct", lib), store, logger)
		tracks, err := p.DeepSearchTrack(ctx, "acct", "Artist", "", "Song", "snap")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "r1" || tracks[1].ID != "s1" {
			t.Errorf("expected remote then snapshot tracks without duplicates, got %+v", tracks)
		}
	})

	t.Run("deep search tolerates unsupported backends", func(t *testing.T) {
		store := &stubReader{byArtist: []models.GenericTrack{{ID: "s1"}}}
		p := NewSnapshotProvider(unsupportedDeep{tu.NewMockClient("mock", "acct", nil)}, store, logger)

		tracks, err := p.DeepSearchTrack(ctx, "acct", "Artist", "", "Song", "snap")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 {
			t.Errorf("expected snapshot fallback, got %+v", tracks)
		}
	})

	t.Run("deep search keeps remote results when the store fails", func(t *testing.T) {
		lib := tu.NewMockLibrary()
		lib.Catalog = []models.GenericTrack{{ID: "r1", ArtistName: "Artist"}}
		store := &stubReader{err: errors.New("db closed")}

		p := NewSnapshotProvider(tu.NewMockClient("mock", "acct", lib), store, logger)
		tracks, err := p.DeepSearchTrack(ctx, "acct", "Artist", "", "Song", "snap")
		if err != nil || len(tracks) != 1 {
			t.Errorf("expected remote results, got %v %v", tracks, err)
		}
	})
}
