package models

import (
	"strings"
	"testing"
)

func TestSyncConfiguration(t *testing.T) {
	t.Run("WithDefaults", func(t *testing.T) {
		c := SyncConfiguration{}.WithDefaults()
		if c.MatchPercentage != 90 {
			t.Errorf("expected match percentage 90, got %d", c.MatchPercentage)
		}
		if c.PlaylistThreads != 1 || c.TrackThreads != 1 {
			t.Errorf("expected parallelism 1/1, got %d/%d", c.PlaylistThreads, c.TrackThreads)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			cfg     SyncConfiguration
			wantErr bool
		}{
			{name: "complete", cfg: SyncConfiguration{FromService: "plex", FromName: "a", ToService: "subsonic", ToName: "b", MatchPercentage: 90}},
			{name: "missing from", cfg: SyncConfiguration{ToService: "subsonic", FromName: "a", ToName: "b"}, wantErr: true},
			{name: "missing to name", cfg: SyncConfiguration{FromService: "plex", ToService: "subsonic", FromName: "a"}, wantErr: true},
			{name: "threshold above 100", cfg: SyncConfiguration{FromService: "plex", FromName: "a", ToService: "subsonic", ToName: "b", MatchPercentage: 101}, wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.cfg.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("SkipsSource", func(t *testing.T) {
		c := SyncConfiguration{
			FromSkipPlaylists:       []string{"Recently Added"},
			FromSkipPrefixPlaylists: []string{"tmp_", ""},
		}

		tc := []struct {
			name string
			want bool
		}{
			{"Recently Added", true},
			{"tmp_scratch", true},
			{"Road Trip", false},
			{"Recently", false},
		}
		for _, tt := range tc {
			if got := c.SkipsSource(tt.name); got != tt.want {
				t.Errorf("SkipsSource(%q) = %v, want %v", tt.name, got, tt.want)
			}
		}
	})

	t.Run("TargetName and like playlist", func(t *testing.T) {
		c := SyncConfiguration{ToPlaylistPrefix: "sync_", FromLikePlaylistName: "Liked"}
		if got := c.TargetName("Road Trip"); got != "sync_Road Trip" {
			t.Errorf("expected sync_Road Trip, got %s", got)
		}
		c.ToPlaylistName = "Mix"
		if got := c.TargetName("Road Trip"); got != "sync_Road Trip" {
			t.Errorf("expected ToPlaylistName to keep the source name, got %s", got)
		}
		if !c.IsLikePlaylist("Liked") {
			t.Error("expected Liked to be the like playlist")
		}
		if (SyncConfiguration{}).IsLikePlaylist("") {
			t.Error("empty like playlist name should never match")
		}
	})
}

func TestRetentionPolicy(t *testing.T) {
	if err := DefaultRetentionPolicy().Validate(); err != nil {
		t.Errorf("default policy should be valid: %v", err)
	}
	if err := (RetentionPolicy{KeepDaily: -1}).Validate(); err == nil {
		t.Error("expected negative keep_daily to be rejected")
	}
}

func TestGenericTrack(t *testing.T) {
	t.Run("EntryKey prefers playlist item id", func(t *testing.T) {
		tr := GenericTrack{ID: "42", PlaylistItemID: "7"}
		if tr.EntryKey() != "7" {
			t.Errorf("expected 7, got %s", tr.EntryKey())
		}
		tr.PlaylistItemID = ""
		if tr.EntryKey() != "42" {
			t.Errorf("expected 42, got %s", tr.EntryKey())
		}
	})

	t.Run("LikedPlaylistID", func(t *testing.T) {
		id := LikedPlaylistID("Liked Songs")
		if !strings.HasPrefix(id, "#") || len(id) != 65 {
			t.Errorf("expected # followed by 64 hex chars, got %q", id)
		}
		if id != LikedPlaylistID("Liked Songs") {
			t.Error("expected liked playlist id to be stable")
		}
	})
}
