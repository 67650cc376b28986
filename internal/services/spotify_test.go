package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	json "github.com/goccy/go-json"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

func newSpotifyTestClient(t *testing.T, handler http.HandlerFunc) *SpotifyClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	api := spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/"))
	return NewSpotifyClient(api, testDeps(server))
}

func TestSpotifyClient(t *testing.T) {
	ctx := context.Background()

	t.Run("FetchPlaylists uses ownership for capabilities", func(t *testing.T) {
		c := newSpotifyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/me":
				io.WriteString(w, `{"id":"me1"}`)
			case "/me/playlists":
				io.WriteString(w, `{"items":[
					{"id":"p1","name":"Mine","owner":{"id":"me1"}},
					{"id":"p2","name":"Shared","owner":{"id":"other"},"collaborative":true},
					{"id":"p3","name":"Followed","owner":{"id":"other"}}],"next":""}`)
			default:
				http.NotFound(w, r)
			}
		})

		playlists, err := c.FetchPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 3 {
			t.Fatalf("expected 3 playlists, got %d", len(playlists))
		}

		want := []models.GenericPlaylist{
			{ID: "p1", Name: "Mine", CanAddTracks: true, CanSortTracks: true},
			{ID: "p2", Name: "Shared", CanAddTracks: true},
			{ID: "p3", Name: "Followed"},
		}
		for i := range want {
			if playlists[i] != want[i] {
				t.Errorf("playlist %d: expected %+v, got %+v", i, want[i], playlists[i])
			}
		}
	})

	t.Run("FetchLikedTracks rates max", func(t *testing.T) {
		c := newSpotifyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"items":[{"track":{"id":"t1","name":"Song","uri":"spotify:track:t1",
				"artists":[{"name":"Artist"}],"album":{"name":"Album","artists":[{"name":"Band"}]}}}]}`)
		})

		tracks, err := c.FetchLikedTracks(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := models.GenericTrack{ID: "t1", Title: "Song", URI: "spotify:track:t1", ArtistName: "Artist", AlbumName: "Album", AlbumArtist: "Band", LikeRating: models.MaxRating}
		if len(tracks) != 1 || tracks[0] != want {
			t.Errorf("expected %+v, got %+v", want, tracks)
		}
	})

	t.Run("SetTrackPlaylistOrder converts positions", func(t *testing.T) {
		var bodies []map[string]any
		c := newSpotifyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			bodies = append(bodies, body)
			io.WriteString(w, `{"snapshot_id":"s"}`)
		})

		playlist := models.GenericPlaylist{ID: "p1"}
		tc := []struct {
			name       string
			from, to   int
			wantStart  float64
			wantBefore float64
		}{
			{name: "later", from: 1, to: 3, wantStart: 0, wantBefore: 3},
			{name: "earlier", from: 4, to: 2, wantStart: 3, wantBefore: 1},
		}
		for i, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				ok, err := c.SetTrackPlaylistOrder(ctx, playlist, models.GenericTrack{ID: "t", PlaylistSortOrder: tt.from}, nil, tt.to)
				if err != nil || !ok {
					t.Fatalf("expected move to succeed, got %v %v", ok, err)
				}
				if bodies[i]["range_start"] != tt.wantStart || bodies[i]["insert_before"] != tt.wantBefore || bodies[i]["range_length"] != float64(1) {
					t.Errorf("unexpected body %v", bodies[i])
				}
			})
		}
	})

	t.Run("unauthorized maps to sentinel", func(t *testing.T) {
		c := newSpotifyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"status":401,"message":"The access token expired"}}`)
		})

		_, err := c.Account(ctx)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("factory requires a token", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.Credentials.Spotify.ClientID = "id"
		cfg.Credentials.Spotify.ClientSecret = "secret"

		_, err := NewSpotifyFactory()("", Deps{Config: cfg})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestNotifyingSource(t *testing.T) {
	t.Run("calls back when token changes", func(t *testing.T) {
		var captured []*oauth2.Token
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		source := &notifyingSource{service: "spotify", src: mock, onToken: func(service string, tok *oauth2.Token) {
			if service != "spotify" {
				t.Errorf("expected service spotify, got %s", service)
			}
			captured = append(captured, tok)
		}}

		source.Token()
		source.Token()
		mock.token = &oauth2.Token{AccessToken: "token2"}
		tok, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(captured) != 2 {
			t.Errorf("expected 2 callbacks, got %d", len(captured))
		}
		if tok.AccessToken != "token2" {
			t.Errorf("expected token2, got %s", tok.AccessToken)
		}
	})

	t.Run("skips the initial token", func(t *testing.T) {
		calls := 0
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "seed"}}
		source := &notifyingSource{src: mock, last: "seed", onToken: func(string, *oauth2.Token) { calls++ }}

		source.Token()
		if calls != 0 {
			t.Errorf("expected no callback, got %d", calls)
		}
	})

	t.Run("propagates errors", func(t *testing.T) {
		mock := &mockTokenSource{err: errors.New("refresh failed")}
		source := &notifyingSource{src: mock}
		if _, err := source.Token(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("handles nil callback", func(t *testing.T) {
		source := &notifyingSource{src: &mockTokenSource{token: &oauth2.Token{AccessToken: "x"}}}
		if _, err := source.Token(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestSpotifyOAuthConfig(t *testing.T) {
	cfg := SpotifyOAuthConfig(shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:3000/callback"})
	if cfg.ClientID != "id" || cfg.RedirectURL != "http://127.0.0.1:3000/callback" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if len(cfg.Scopes) != len(SpotifyScopes) {
		t.Errorf("expected %d scopes, got %d", len(SpotifyScopes), len(cfg.Scopes))
	}
}
