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
	"golang.org/x/oauth2"
)

func newTidalTestClient(t *testing.T, handler http.HandlerFunc) *TidalClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("countryCode"); got != "NL" {
			t.Errorf("expected countryCode NL on %s, got %q", r.URL.Path, got)
		}
		if got := r.Header.Get("Accept"); got != tidalMediaType {
			t.Errorf("expected accept %s, got %q", tidalMediaType, got)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewTidalClient(server.URL+"/v2", "NL", testDeps(server))
}

func TestTidalClient(t *testing.T) {
	ctx := context.Background()

	t.Run("FetchPlaylists filters by owner and follows next links", func(t *testing.T) {
		c := newTidalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/users/me":
				io.WriteString(w, `{"data":{"id":"u1","type":"users","attributes":{"username":"me"}}}`)
			case "/v2/playlists":
				if r.URL.Query().Get("filter[r.owners.id]") != "u1" {
					t.Errorf("expected owner filter u1, got %q", r.URL.RawQuery)
				}
				if r.URL.Query().Get("page[cursor]") == "" {
					io.WriteString(w, `{"data":[{"id":"p1","type":"playlists","attributes":{"name":"Mix"}}],
						"links":{"next":"/playlists?countryCode=NL&filter%5Br.owners.id%5D=u1&page%5Bcursor%5D=c2"}}`)
					return
				}
				io.WriteString(w, `{"data":[{"id":"p2","type":"playlists","attributes":{"name":"Chill"}}],"links":{}}`)
			default:
				http.NotFound(w, r)
			}
		})

		playlists, err := c.FetchPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []models.GenericPlaylist{
			{ID: "p1", Name: "Mix", CanAddTracks: true},
			{ID: "p2", Name: "Chill", CanAddTracks: true},
		}
		if len(playlists) != len(want) {
			t.Fatalf("expected %d playlists, got %+v", len(want), playlists)
		}
		for i := range want {
			if playlists[i] != want[i] {
				t.Errorf("playlist %d: expected %+v, got %+v", i, want[i], playlists[i])
			}
		}
	})

	t.Run("FetchPlaylistTracks pages items and skips incomplete tracks", func(t *testing.T) {
		lookups := map[string]int{}
		c := newTidalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v2/playlists/p1":
				io.WriteString(w, `{"data":{"id":"p1","type":"playlists","relationships":{"items":{
					"data":[{"id":"t1","type":"tracks","meta":{"itemId":"i1"}},{"id":"v1","type":"videos"}],
					"links":{"next":"/playlists/p1/relationships/items?countryCode=NL&page%5Bcursor%5D=c2"}}}}}`)
			case "/v2/playlists/p1/relationships/items":
				io.WriteString(w, `{"data":[{"id":"t2","type":"tracks","meta":{"itemId":"i2"}},{"id":"t1","type":"tracks","meta":{"itemId":"i3"}}],"links":{}}`)
			case "/v2/tracks/t1":
				lookups["t1"]++
				if r.URL.Query().Get("include") != "albums,artists" {
					t.Errorf("expected albums and artists included, got %q", r.URL.Query().Get("include"))
				}
				io.WriteString(w, `{"data":{"id":"t1","type":"tracks","attributes":{"title":"Alpha"}},"included":[
					{"id":"al1","type":"albums","attributes":{"title":"Record"}},
					{"id":"ar1","type":"artists","attributes":{"name":"The Band"}},
					{"id":"ar2","type":"artists","attributes":{"name":"Guest"}}]}`)
			case "/v2/tracks/t2":
				lookups["t2"]++
				io.WriteString(w, `{"data":{"id":"t2","type":"tracks","attributes":{"title":"No Album"}},"included":[
					{"id":"ar1","type":"artists","attributes":{"name":"The Band"}}]}`)
			default:
				http.NotFound(w, r)
			}
		})

		tracks, err := c.FetchPlaylistTracks(ctx, "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		base := models.GenericTrack{ID: "t1", Title: "Alpha", ArtistName: "The Band", AlbumName: "Record", AlbumArtist: "The Band", URI: "tidal:track:t1"}
		first, second := base, base
		first.PlaylistItemID = "i1"
		second.PlaylistItemID = "i3"
		if len(tracks) != 2 || tracks[0] != first || tracks[1] != second {
			t.Errorf("expected [%+v %+v], got %+v", first, second, tracks)
		}
		if lookups["t1"] != 1 || lookups["t2"] != 1 {
			t.Errorf("expected one lookup per track, got %v", lookups)
		}
	})

	t.Run("SearchTrack keeps close titles", func(t *testing.T) {
		c := newTidalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.EscapedPath() {
			case "/v2/searchResults/The%20Band%20Alpha":
				io.WriteString(w, `{"data":{"id":"The Band Alpha","type":"searchResults"},"included":[
					{"id":"t1","type":"tracks","attributes":{"title":"Alpha"}},
					{"id":"t9","type":"tracks","attributes":{"title":"Something Else Entirely"}},
					{"id":"ar1","type":"artists","attributes":{"name":"The Band"}}]}`)
			case "/v2/tracks/t1":
				io.WriteString(w, `{"data":{"id":"t1","type":"tracks","attributes":{"title":"Alpha"}},"included":[
					{"id":"al1","type":"albums","attributes":{"title":"Record"}},
					{"id":"ar1","type":"artists","attributes":{"name":"The Band"}}]}`)
			default:
				t.Errorf("unexpected request %s", r.URL)
				http.NotFound(w, r)
			}
		})

		tracks, err := c.SearchTrack(ctx, "The Band", "Record", "Alpha")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "t1" || tracks[0].AlbumName != "Record" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
	})

	t.Run("CreatePlaylist and AddTrackToPlaylist post JSON:API bodies", func(t *testing.T) {
		var bodies []map[string]any
		c := newTidalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Content-Type"); got != tidalMediaType {
				t.Errorf("expected content type %s, got %q", tidalMediaType, got)
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			bodies = append(bodies, body)

			switch r.URL.Path {
			case "/v2/playlists":
				w.WriteHeader(http.StatusCreated)
				io.WriteString(w, `{"data":{"id":"new1","type":"playlists","attributes":{"name":"sync_Mix"}}}`)
			case "/v2/playlists/new1/relationships/items":
				w.WriteHeader(http.StatusCreated)
			default:
				http.NotFound(w, r)
			}
		})

		p, err := c.CreatePlaylist(ctx, "sync_Mix")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.ID != "new1" || !p.CanAddTracks || p.CanSortTracks {
			t.Errorf("unexpected playlist %+v", p)
		}
		added, err := c.AddTrackToPlaylist(ctx, p.ID, models.GenericTrack{ID: "t1"})
		if err != nil || !added {
			t.Fatalf("expected the track to be added, got %v %v", added, err)
		}

		if len(bodies) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(bodies))
		}
		attrs := bodies[0]["data"].(map[string]any)["attributes"].(map[string]any)
		if attrs["name"] != "sync_Mix" || attrs["accessType"] != "PUBLIC" {
			t.Errorf("unexpected create body %v", bodies[0])
		}
		items := bodies[1]["data"].([]any)
		if ref := items[0].(map[string]any); ref["id"] != "t1" || ref["type"] != "tracks" {
			t.Errorf("unexpected items body %v", bodies[1])
		}
	})

	t.Run("unsupported operations report false", func(t *testing.T) {
		c := newTidalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request %s", r.URL)
		})

		liked, err := c.FetchLikedTracks(ctx)
		if err != nil || liked != nil {
			t.Errorf("expected no liked tracks, got %v %v", liked, err)
		}
		for name, op := range map[string]func() (bool, error){
			"like":    func() (bool, error) { return c.LikeTrack(ctx, models.GenericTrack{ID: "t1"}, 10) },
			"rate":    func() (bool, error) { return c.RateTrack(ctx, models.GenericTrack{ID: "t1"}, 10) },
			"reorder": func() (bool, error) { return c.SetTrackPlaylistOrder(ctx, models.GenericPlaylist{}, models.GenericTrack{}, nil, 1) },
		} {
			if ok, err := op(); ok || err != nil {
				t.Errorf("%s: expected false without error, got %v %v", name, ok, err)
			}
		}
	})
}

func TestTidalFactory(t *testing.T) {
	t.Run("requires a country code", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.Credentials.Tidal.CountryCode = ""

		_, err := NewTidalFactory()("", Deps{Config: cfg})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		_, err := NewTidalFactory()("", Deps{Config: shared.DefaultConfig()})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("binds the given account", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.Credentials.Tidal.Update(&oauth2.Token{AccessToken: "access", RefreshToken: "refresh"})

		c, err := NewTidalFactory()("u42", Deps{Config: cfg})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got, _ := c.Account(context.Background()); got != "u42" {
			t.Errorf("expected account u42, got %s", got)
		}
	})
}

func TestTidalOAuthConfig(t *testing.T) {
	cfg := TidalOAuthConfig(shared.TidalConfig{ClientID: "id", RedirectURI: "http://127.0.0.1:3000/callback", CountryCode: "NL"})
	if cfg.ClientID != "id" || cfg.Endpoint.TokenURL != tidalTokenURL {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Endpoint.AuthStyle != oauth2.AuthStyleInParams {
		t.Errorf("expected client id in params, got %v", cfg.Endpoint.AuthStyle)
	}
}
