package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const (
	subsonicAPIVersion = "1.16.1"
	subsonicClientName = "plsync"
	subsonicSongCount  = 200
	subsonicPageSize   = 50
	subsonicMaxOffset  = 500
)

type subsonicEnvelope struct {
	Response subsonicResponse `json:"subsonic-response"`
}

type subsonicResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`

	Playlists *struct {
		Playlist []subsonicPlaylist `json:"playlist"`
	} `json:"playlists,omitempty"`
	Playlist      *subsonicPlaylist `json:"playlist,omitempty"`
	Starred2      *subsonicStarred  `json:"starred2,omitempty"`
	SearchResult3 *subsonicSearch   `json:"searchResult3,omitempty"`
	Artist        *subsonicArtist   `json:"artist,omitempty"`
	Album         *subsonicAlbum    `json:"album,omitempty"`
}

type subsonicPlaylist struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Owner     string         `json:"owner"`
	SongCount int            `json:"songCount"`
	Readonly  bool           `json:"readonly"`
	Entry     []subsonicSong `json:"entry"`
}

type subsonicSong struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Path       string `json:"path"`
	UserRating int    `json:"userRating"`
	Starred    string `json:"starred"`
}

type subsonicStarred struct {
	Song []subsonicSong `json:"song"`
}

type subsonicSearch struct {
	Artist []subsonicArtist `json:"artist"`
	Album  []subsonicAlbum  `json:"album"`
	Song   []subsonicSong   `json:"song"`
}

type subsonicArtist struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Album []subsonicAlbum `json:"album"`
}

type subsonicAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Artist string         `json:"artist"`
	Song   []subsonicSong `json:"song"`
}

func (s subsonicSong) generic() models.GenericTrack {
	t := models.GenericTrack{
		ID:         s.ID,
		Title:      s.Title,
		ArtistName: s.Artist,
		AlbumName:  s.Album,
		LikeRating: float64(s.UserRating) * 2,
	}
	if first, _, ok := strings.Cut(strings.TrimPrefix(s.Path, "/"), "/"); ok {
		t.AlbumArtist = first
	}
	return t
}

// navidromeSession is the token returned by Navidrome's native login.
type navidromeSession struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// SubsonicClient talks to a Subsonic compatible server.
//
// With navidrome set it also logs into Navidrome's native API, which is the only way to reorder playlist entries.
type SubsonicClient struct {
	http      *requester
	serverURL string
	username  string
	password  string
	navidrome bool
	threshold int

	mu      sync.Mutex
	session *navidromeSession

	salt func() string
}

// NewSubsonicFactory returns a [Factory] for plain Subsonic servers or, with navidrome set, Navidrome.
func NewSubsonicFactory(navidrome bool) Factory {
	return func(account string, deps Deps) (Client, error) {
		creds := deps.Config.Credentials.Subsonic
		if navidrome {
			creds = deps.Config.Credentials.Navidrome
		}
		if account == "" {
			account = creds.URL
		}
		if account == "" || creds.Username == "" {
			return nil, fmt.Errorf("%w: subsonic url and username are required", shared.ErrMissingCredentials)
		}
		return NewSubsonicClient(account, creds.Username, creds.Password, navidrome, deps), nil
	}
}

// NewSubsonicClient creates a client for the server at serverURL.
func NewSubsonicClient(serverURL, username, password string, navidrome bool, deps Deps) *SubsonicClient {
	deps = deps.withDefaults()
	name := models.ServiceSubsonic
	if navidrome {
		name = models.ServiceNavidrome
	}
	return &SubsonicClient{
		http:      newRequester(name, serverURL, deps),
		serverURL: strings.TrimRight(serverURL, "/"),
		username:  username,
		password:  password,
		navidrome: navidrome,
		threshold: deps.MatchPercentage,
		salt: func() string {
			return strings.ReplaceAll(shared.GenerateID(), "-", "")[:12]
		},
	}
}

func (c *SubsonicClient) Name() string {
	if c.navidrome {
		return models.ServiceNavidrome
	}
	return models.ServiceSubsonic
}

func (c *SubsonicClient) Account(context.Context) (string, error) {
	return c.serverURL, nil
}

// call invokes a Subsonic REST endpoint with token authentication.
func (c *SubsonicClient) call(ctx context.Context, endpoint string, params url.Values) (*subsonicResponse, error) {
	if params == nil {
		params = url.Values{}
	}
	salt := c.salt()
	sum := md5.Sum([]byte(c.password + salt))
	params.Set("u", c.username)
	params.Set("t", hex.EncodeToString(sum[:]))
	params.Set("s", salt)
	params.Set("v", subsonicAPIVersion)
	params.Set("c", subsonicClientName)
	params.Set("f", "json")

	var env subsonicEnvelope
	if err := c.http.do(ctx, http.MethodGet, "/rest/"+endpoint, params, nil, &env, nil); err != nil {
		return nil, err
	}

	resp := &env.Response
	if resp.Status != "ok" {
		if resp.Error != nil {
			if resp.Error.Code == 40 || resp.Error.Code == 41 {
				return nil, fmt.Errorf("%w: %s", shared.ErrAuthFailed, resp.Error.Message)
			}
			return nil, fmt.Errorf("%w: %s: subsonic error %d: %s", shared.ErrAPIRequest, endpoint, resp.Error.Code, resp.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s: status %q", shared.ErrAPIRequest, endpoint, resp.Status)
	}
	return resp, nil
}

func (c *SubsonicClient) FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error) {
	resp, err := c.call(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return nil, nil
	}

	playlists := make([]models.GenericPlaylist, 0, len(resp.Playlists.Playlist))
	for _, p := range resp.Playlists.Playlist {
		owned := p.Owner == "" || p.Owner == c.username
		playlists = append(playlists, models.GenericPlaylist{
			ID:            p.ID,
			Name:          p.Name,
			CanAddTracks:  owned && !p.Readonly,
			CanSortTracks: c.navidrome && owned && !p.Readonly,
		})
	}
	return playlists, nil
}

func (c *SubsonicClient) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error) {
	resp, err := c.call(ctx, "getPlaylist", url.Values{"id": {playlistID}})
	if err != nil {
		return nil, err
	}
	if resp.Playlist == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return songs(resp.Playlist.Entry), nil
}

func (c *SubsonicClient) FetchLikedTracks(ctx context.Context) ([]models.GenericTrack, error) {
	resp, err := c.call(ctx, "getStarred2", nil)
	if err != nil {
		return nil, err
	}
	if resp.Starred2 == nil {
		return nil, nil
	}
	return songs(resp.Starred2.Song), nil
}

func (c *SubsonicClient) CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error) {
	resp, err := c.call(ctx, "createPlaylist", url.Values{"name": {name}})
	if err != nil {
		return models.GenericPlaylist{}, err
	}
	if resp.Playlist == nil {
		return models.GenericPlaylist{}, fmt.Errorf("%w: createPlaylist returned no playlist", shared.ErrAPIRequest)
	}
	return models.GenericPlaylist{ID: resp.Playlist.ID, Name: resp.Playlist.Name, CanAddTracks: true, CanSortTracks: c.navidrome}, nil
}

// SearchTrack runs search3 on "artist title"; the album only matters to the matcher.
func (c *SubsonicClient) SearchTrack(ctx context.Context, artist, _, title string) ([]models.GenericTrack, error) {
	query := strings.TrimSpace(strings.ReplaceAll(artist+" "+title, "-", ""))
	resp, err := c.call(ctx, "search3", url.Values{
		"query":       {query},
		"songCount":   {strconv.Itoa(subsonicSongCount)},
		"artistCount": {"0"},
		"albumCount":  {"0"},
	})
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil {
		return nil, nil
	}
	return songs(resp.SearchResult3.Song), nil
}

// DeepSearchTrack pages through artists matching artist, then through albums matching album, and collects
// the songs whose titles are close to title.
func (c *SubsonicClient) DeepSearchTrack(ctx context.Context, artist, album, title string) ([]models.GenericTrack, error) {
	if strings.TrimSpace(artist) == "" || strings.TrimSpace(title) == "" {
		return nil, nil
	}

	var found []models.GenericTrack
	for offset := 0; offset < subsonicMaxOffset; offset += subsonicPageSize {
		resp, err := c.call(ctx, "search3", url.Values{
			"query":        {artist},
			"songCount":    {"0"},
			"albumCount":   {"0"},
			"artistCount":  {strconv.Itoa(subsonicPageSize)},
			"artistOffset": {strconv.Itoa(offset)},
		})
		if err != nil {
			return found, err
		}
		if resp.SearchResult3 == nil || len(resp.SearchResult3.Artist) == 0 {
			break
		}

		for _, a := range resp.SearchResult3.Artist {
			if !c.near(a.Name, artist, true) {
				continue
			}
			tracks, err := c.artistTracks(ctx, a.ID, artist, album, title)
			if err != nil {
				return found, err
			}
			found = append(found, tracks...)
		}
	}

	if strings.TrimSpace(album) == "" {
		return found, nil
	}

	for offset := 0; offset < subsonicMaxOffset; offset += subsonicPageSize {
		resp, err := c.call(ctx, "search3", url.Values{
			"query":       {album},
			"songCount":   {"0"},
			"artistCount": {"0"},
			"albumCount":  {strconv.Itoa(subsonicPageSize)},
			"albumOffset": {strconv.Itoa(offset)},
		})
		if err != nil {
			return found, err
		}
		if resp.SearchResult3 == nil || len(resp.SearchResult3.Album) == 0 {
			break
		}

		for _, al := range resp.SearchResult3.Album {
			if !c.near(al.Artist, artist, true) || !c.near(al.Name, album, false) {
				continue
			}
			tracks, err := c.albumTracks(ctx, al.ID, title)
			if err != nil {
				return found, err
			}
			found = append(found, tracks...)
		}
	}
	return found, nil
}

func (c *SubsonicClient) artistTracks(ctx context.Context, artistID, artist, album, title string) ([]models.GenericTrack, error) {
	resp, err := c.call(ctx, "getArtist", url.Values{"id": {artistID}})
	if err != nil {
		return nil, err
	}
	if resp.Artist == nil {
		return nil, nil
	}

	var found []models.GenericTrack
	for _, al := range resp.Artist.Album {
		if matcher.PartialRatio(strings.ToLower(al.Artist), strings.ToLower(artist)) < c.threshold {
			continue
		}
		if album != "" && !c.near(al.Name, album, false) {
			continue
		}
		tracks, err := c.albumTracks(ctx, al.ID, title)
		if err != nil {
			return nil, err
		}
		found = append(found, tracks...)
	}
	return found, nil
}

func (c *SubsonicClient) albumTracks(ctx context.Context, albumID, title string) ([]models.GenericTrack, error) {
	resp, err := c.call(ctx, "getAlbum", url.Values{"id": {albumID}})
	if err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, nil
	}

	var found []models.GenericTrack
	for _, s := range resp.Album.Song {
		if c.near(s.Title, title, true) {
			found = append(found, s.generic())
		}
	}
	return found, nil
}

// near applies the deep-search filter: a partial or full ratio over the threshold and matching digits.
func (c *SubsonicClient) near(got, want string, partial bool) bool {
	score := matcher.Ratio(strings.ToLower(got), strings.ToLower(want))
	if partial {
		score = matcher.PartialRatio(strings.ToLower(got), strings.ToLower(want))
	}
	return score >= c.threshold && matcher.NumbersMatch(got, want)
}

func (c *SubsonicClient) AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	if _, err := c.call(ctx, "updatePlaylist", url.Values{"playlistId": {playlistID}, "songIdToAdd": {track.ID}}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SubsonicClient) LikeTrack(ctx context.Context, track models.GenericTrack, _ float64) (bool, error) {
	if _, err := c.call(ctx, "star", url.Values{"id": {track.ID}}); err != nil {
		return false, err
	}
	return true, nil
}

// RateTrack converts a 0..10 rating to 1..5 stars. A zero rating is left alone.
func (c *SubsonicClient) RateTrack(ctx context.Context, track models.GenericTrack, rating float64) (bool, error) {
	if rating <= 0 {
		return false, nil
	}
	stars := int(math.Round(rating / 2))
	stars = min(max(stars, 1), 5)

	if _, err := c.call(ctx, "setRating", url.Values{"id": {track.ID}, "rating": {strconv.Itoa(stars)}}); err != nil {
		return false, err
	}
	return true, nil
}

// SetTrackPlaylistOrder is only supported on Navidrome, through its native playlist API.
func (c *SubsonicClient) SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, _ []models.GenericTrack, newOrder int) (bool, error) {
	if !c.navidrome {
		return false, nil
	}

	session, err := c.login(ctx)
	if err != nil {
		return false, err
	}

	path := fmt.Sprintf("/api/playlist/%s/tracks/%d", url.PathEscape(playlist.ID), track.PlaylistSortOrder)
	body := map[string]string{"insert_before": strconv.Itoa(newOrder)}
	header := http.Header{
		"X-Nd-Authorization":    {"Bearer " + session.Token},
		"X-Nd-Client-Unique-Id": {session.ID},
	}
	if err := c.http.do(ctx, http.MethodPut, path, nil, body, nil, header); err != nil {
		return false, err
	}
	return true, nil
}

// login authenticates against Navidrome's native API once per client.
func (c *SubsonicClient) login(ctx context.Context) (*navidromeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	var session navidromeSession
	body := map[string]string{"username": c.username, "password": c.password}
	if err := c.http.do(ctx, http.MethodPost, "/auth/login", nil, body, &session, nil); err != nil {
		return nil, fmt.Errorf("%w: navidrome login: %v", shared.ErrAuthFailed, err)
	}
	if session.Token == "" {
		return nil, fmt.Errorf("%w: navidrome login returned no token", shared.ErrAuthFailed)
	}
	c.session = &session
	return c.session, nil
}

func songs(in []subsonicSong) []models.GenericTrack {
	out := make([]models.GenericTrack, 0, len(in))
	for _, s := range in {
		out = append(out, s.generic())
	}
	return out
}
