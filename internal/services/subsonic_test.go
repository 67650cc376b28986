package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

func subsonicOK(body string) string {
	if body != "" {
		body = "," + body
	}
	return `{"subsonic-response":{"status":"ok","version":"1.16.1"` + body + `}}`
}

func newSubsonicServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("u") != "alice" || r.URL.Query().Get("t") == "" || r.URL.Query().Get("s") == "" {
			t.Errorf("missing token auth on %s", r.URL.Path)
		}
		body, ok := routes[strings.TrimPrefix(r.URL.Path, "/rest/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSubsonicClient(t *testing.T) {
	ctx := context.Background()

	t.Run("FetchPlaylists", func(t *testing.T) {
		server := newSubsonicServer(t, map[string]string{
			"getPlaylists": subsonicOK(`"playlists":{"playlist":[
				{"id":"1","name":"Mine","owner":"alice"},
				{"id":"2","name":"Theirs","owner":"bob"}]}`),
		})

		c := NewSubsonicClient(server.URL, "alice", "secret", false, testDeps(server))
		playlists, err := c.FetchPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if !playlists[0].CanAddTracks || playlists[0].CanSortTracks {
			t.Errorf("own subsonic playlist should be writable but not sortable: %+v", playlists[0])
		}
		if playlists[1].CanAddTracks {
			t.Errorf("foreign playlist should not be writable: %+v", playlists[1])
		}
	})

	t.Run("Navidrome playlists are sortable", func(t *testing.T) {
		server := newSubsonicServer(t, map[string]string{
			"getPlaylists": subsonicOK(`"playlists":{"playlist":[{"id":"1","name":"Mine","owner":"alice"}]}`),
		})

		c := NewSubsonicClient(server.URL, "alice", "secret", true, testDeps(server))
		playlists, err := c.FetchPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !playlists[0].CanSortTracks {
			t.Error("expected navidrome playlist to be sortable")
		}
		if c.Name() != models.ServiceNavidrome {
			t.Errorf("expected name navidrome, got %s", c.Name())
		}
	})

	t.Run("FetchPlaylistTracks doubles ratings", func(t *testing.T) {
		server := newSubsonicServer(t, map[string]string{
			"getPlaylist": subsonicOK(`"playlist":{"id":"1","name":"Mine","entry":[
				{"id":"s1","title":"Song","artist":"Artist","album":"Album","userRating":4,"path":"Album Artist/Album/01.flac"}]}`),
		})

		c := NewSubsonicClient(server.URL, "alice", "secret", false, testDeps(server))
		tracks, err := c.FetchPlaylistTracks(ctx, "1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(tracks))
		}
		if tracks[0].LikeRating != 8 {
			t.Errorf("expected rating 8, got %v", tracks[0].LikeRating)
		}
		if tracks[0].AlbumArtist != "Album Artist" {
			t.Errorf("expected album artist from path, got %q", tracks[0].AlbumArtist)
		}
	})

	t.Run("auth failure maps to sentinel", func(t *testing.T) {
		server := newSubsonicServer(t, map[string]string{
			"getPlaylists": `{"subsonic-response":{"status":"failed","error":{"code":40,"message":"Wrong username or password"}}}`,
		})

		c := NewSubsonicClient(server.URL, "alice", "wrong", false, testDeps(server))
		_, err := c.FetchPlaylists(ctx)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("RateTrack converts to stars", func(t *testing.T) {
		var got string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("rating")
			io.WriteString(w, subsonicOK(""))
		}))
		defer server.Close()

		c := NewSubsonicClient(server.URL, "alice", "secret", false, testDeps(server))

		tc := []struct {
			rating float64
			want   string
		}{
			{rating: 10, want: "5"},
			{rating: 7, want: "4"},
			{rating: 1, want: "1"},
		}
		for _, tt := range tc {
			ok, err := c.RateTrack(ctx, models.GenericTrack{ID: "s1"}, tt.rating)
			if err != nil || !ok {
				t.Fatalf("expected rating to succeed, got %v %v", ok, err)
			}
			if got != tt.want {
				t.Errorf("rating %v: expected %s stars, got %s", tt.rating, tt.want, got)
			}
		}

		ok, err := c.RateTrack(ctx, models.GenericTrack{ID: "s1"}, 0)
		if ok || err != nil {
			t.Errorf("expected zero rating to be skipped, got %v %v", ok, err)
		}
	})

	t.Run("DeepSearchTrack walks artist albums", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch strings.TrimPrefix(r.URL.Path, "/rest/") {
			case "search3":
				if q.Get("artistCount") != "0" && q.Get("artistOffset") == "0" {
					io.WriteString(w, subsonicOK(`"searchResult3":{"artist":[{"id":"a1","name":"Daft Punk"},{"id":"a2","name":"Someone Else"}]}`))
					return
				}
				io.WriteString(w, subsonicOK(`"searchResult3":{}`))
			case "getArtist":
				if q.Get("id") != "a1" {
					t.Errorf("unexpected artist lookup %s", q.Get("id"))
				}
				io.WriteString(w, subsonicOK(`"artist":{"id":"a1","name":"Daft Punk","album":[
					{"id":"al1","name":"Discovery","artist":"Daft Punk"},
					{"id":"al2","name":"Homework","artist":"Daft Punk"}]}`))
			case "getAlbum":
				if q.Get("id") != "al1" {
					io.WriteString(w, subsonicOK(`"album":{"id":"al2","name":"Homework","song":[{"id":"s9","title":"Da Funk","artist":"Daft Punk","album":"Homework"}]}`))
					return
				}
				io.WriteString(w, subsonicOK(`"album":{"id":"al1","name":"Discovery","song":[
					{"id":"s1","title":"One More Time","artist":"Daft Punk","album":"Discovery"},
					{"id":"s2","title":"Digital Love","artist":"Daft Punk","album":"Discovery"}]}`))
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		c := NewSubsonicClient(server.URL, "alice", "secret", false, testDeps(server))
		tracks, err := c.DeepSearchTrack(ctx, "Daft Punk", "", "One More Time")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "s1" {
			t.Errorf("expected only s1, got %+v", tracks)
		}
	})

	t.Run("Navidrome reorder logs in once", func(t *testing.T) {
		logins := 0
		var moves []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/auth/login":
				logins++
				io.WriteString(w, `{"id":"client","token":"jwt"}`)
			case strings.HasPrefix(r.URL.Path, "/api/playlist/"):
				if r.Header.Get("X-Nd-Authorization") != "Bearer jwt" {
					t.Errorf("missing navidrome auth header")
				}
				body, _ := io.ReadAll(r.Body)
				moves = append(moves, r.URL.Path+" "+string(body))
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		c := NewSubsonicClient(server.URL, "alice", "secret", true, testDeps(server))
		playlist := models.GenericPlaylist{ID: "p1"}
		for range 2 {
			ok, err := c.SetTrackPlaylistOrder(ctx, playlist, models.GenericTrack{ID: "s1", PlaylistSortOrder: 3}, nil, 1)
			if err != nil || !ok {
				t.Fatalf("expected move to succeed, got %v %v", ok, err)
			}
		}
		if logins != 1 {
			t.Errorf("expected 1 login, got %d", logins)
		}
		if len(moves) != 2 || moves[0] != `/api/playlist/p1/tracks/3 {"insert_before":"1"}` {
			t.Errorf("unexpected moves %v", moves)
		}
	})

	t.Run("Subsonic does not reorder", func(t *testing.T) {
		c := NewSubsonicClient("http://unused", "alice", "secret", false, Deps{})
		ok, err := c.SetTrackPlaylistOrder(ctx, models.GenericPlaylist{}, models.GenericTrack{}, nil, 1)
		if ok || err != nil {
			t.Errorf("expected unsupported, got %v %v", ok, err)
		}
	})
}
