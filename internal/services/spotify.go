package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const spotifyPageSize = 50

// SpotifyScopes are the scopes requested by `auth spotify`.
var SpotifyScopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserLibraryModify,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// SpotifyOAuthConfig builds the authorization code flow config for the configured app.
func SpotifyOAuthConfig(creds shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       SpotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}
}

// notifyingSource reports every new access token of service to onToken.
type notifyingSource struct {
	service string
	src     oauth2.TokenSource
	onToken func(string, *oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed && s.onToken != nil {
		s.onToken(s.service, tok)
	}
	return tok, nil
}

// oauthHTTPClient authorizes requests with tok, refreshing it through config and reporting new tokens to deps.OnToken.
func oauthHTTPClient(service string, config *oauth2.Config, tok *oauth2.Token, deps Deps) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, deps.HTTPClient)
	src := &notifyingSource{
		service: service,
		src:     config.TokenSource(ctx, tok),
		onToken: deps.OnToken,
		last:    tok.AccessToken,
	}
	return &http.Client{
		Timeout: deps.HTTPClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(tok, src),
			Base:   deps.HTTPClient.Transport,
		},
	}
}

// SpotifyClient talks to the Spotify Web API on behalf of the authorized user.
type SpotifyClient struct {
	api       *spotify.Client
	threshold int

	mu     sync.Mutex
	userID string
}

// NewSpotifyFactory returns a [Factory] for Spotify. account, when set, must be the authorized user's id.
func NewSpotifyFactory() Factory {
	return func(account string, deps Deps) (Client, error) {
		deps = deps.withDefaults()
		creds := deps.Config.Credentials.Spotify
		tok := creds.Token()
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("%w: spotify client id and secret are required", shared.ErrMissingCredentials)
		}
		if tok == nil {
			return nil, fmt.Errorf("%w: run `plsync auth spotify` first", shared.ErrNotAuthenticated)
		}

		httpClient := oauthHTTPClient(models.ServiceSpotify, SpotifyOAuthConfig(creds), tok, deps)
		c := NewSpotifyClient(spotify.New(httpClient, spotify.WithRetry(true)), deps)
		if account != "" {
			c.userID = account
		}
		return c, nil
	}
}

// NewSpotifyClient wraps an authenticated API client.
func NewSpotifyClient(api *spotify.Client, deps Deps) *SpotifyClient {
	deps = deps.withDefaults()
	return &SpotifyClient{api: api, threshold: deps.MatchPercentage}
}

func (c *SpotifyClient) Name() string { return models.ServiceSpotify }

// Account returns the current user's id, looked up once.
func (c *SpotifyClient) Account(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", spotifyError("current user", err)
	}
	c.userID = user.ID
	return c.userID, nil
}

func (c *SpotifyClient) FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error) {
	owner, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyPageSize))
	if err != nil {
		return nil, spotifyError("playlists", err)
	}

	var playlists []models.GenericPlaylist
	for {
		for _, p := range page.Playlists {
			owned := p.Owner.ID == owner
			playlists = append(playlists, models.GenericPlaylist{
				ID:            p.ID.String(),
				Name:          p.Name,
				CanAddTracks:  owned || p.Collaborative,
				CanSortTracks: owned,
			})
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return nil, spotifyError("playlists", err)
		}
	}
	return playlists, nil
}

func (c *SpotifyClient) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(spotifyPageSize))
	if err != nil {
		return nil, spotifyError("playlist items", err)
	}

	var tracks []models.GenericTrack
	for {
		for _, item := range page.Items {
			if item.Track.Track == nil {
				continue
			}
			tracks = append(tracks, spotifyTrack(*item.Track.Track))
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return nil, spotifyError("playlist items", err)
		}
	}
	return tracks, nil
}

// FetchLikedTracks returns the saved tracks of the user's library, rated [models.MaxRating].
func (c *SpotifyClient) FetchLikedTracks(ctx context.Context) ([]models.GenericTrack, error) {
	page, err := c.api.CurrentUsersTracks(ctx, spotify.Limit(spotifyPageSize))
	if err != nil {
		return nil, spotifyError("saved tracks", err)
	}

	var tracks []models.GenericTrack
	for {
		for _, saved := range page.Tracks {
			t := spotifyTrack(saved.FullTrack)
			t.LikeRating = models.MaxRating
			tracks = append(tracks, t)
		}
		if err := c.api.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				break
			}
			return nil, spotifyError("saved tracks", err)
		}
	}
	return tracks, nil
}

func (c *SpotifyClient) CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error) {
	owner, err := c.Account(ctx)
	if err != nil {
		return models.GenericPlaylist{}, err
	}

	p, err := c.api.CreatePlaylistForUser(ctx, owner, name, "", false, false)
	if err != nil {
		return models.GenericPlaylist{}, spotifyError("create playlist", err)
	}
	return models.GenericPlaylist{ID: p.ID.String(), Name: p.Name, CanAddTracks: true, CanSortTracks: true}, nil
}

// SearchTrack uses field filters; an empty album is left out of the query.
func (c *SpotifyClient) SearchTrack(ctx context.Context, artist, album, title string) ([]models.GenericTrack, error) {
	query := fmt.Sprintf("artist:%q track:%q", artist, title)
	if album != "" {
		query += fmt.Sprintf(" album:%q", album)
	}

	res, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(spotifyPageSize))
	if err != nil {
		return nil, spotifyError("search", err)
	}
	if res.Tracks == nil {
		return nil, nil
	}

	tracks := make([]models.GenericTrack, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		tracks = append(tracks, spotifyTrack(t))
	}
	return tracks, nil
}

// DeepSearchTrack walks the albums and singles of the artists close to artist.
func (c *SpotifyClient) DeepSearchTrack(ctx context.Context, artist, album, _ string) ([]models.GenericTrack, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, nil
	}

	res, err := c.api.Search(ctx, fmt.Sprintf("artist:%q", artist), spotify.SearchTypeArtist, spotify.Limit(10))
	if err != nil {
		return nil, spotifyError("search artist", err)
	}
	if res.Artists == nil {
		return nil, nil
	}

	var found []models.GenericTrack
	for _, a := range res.Artists.Artists {
		if matcher.Ratio(strings.ToLower(a.Name), strings.ToLower(artist)) < c.threshold {
			continue
		}

		albums, err := c.api.GetArtistAlbums(ctx, a.ID, []spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle}, spotify.Limit(spotifyPageSize))
		if err != nil {
			return found, spotifyError("artist albums", err)
		}
		for _, al := range albums.Albums {
			if album != "" && matcher.Ratio(strings.ToLower(al.Name), strings.ToLower(album)) < c.threshold {
				continue
			}
			page, err := c.api.GetAlbumTracks(ctx, al.ID, spotify.Limit(spotifyPageSize))
			if err != nil {
				return found, spotifyError("album tracks", err)
			}
			for _, t := range page.Tracks {
				g := spotifySimpleTrack(t)
				g.AlbumName = al.Name
				found = append(found, g)
			}
		}
	}
	return found, nil
}

func (c *SpotifyClient) AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), spotify.ID(track.ID)); err != nil {
		return false, spotifyError("add track", err)
	}
	return true, nil
}

func (c *SpotifyClient) LikeTrack(ctx context.Context, track models.GenericTrack, _ float64) (bool, error) {
	if err := c.api.AddTracksToLibrary(ctx, spotify.ID(track.ID)); err != nil {
		return false, spotifyError("save track", err)
	}
	return true, nil
}

// RateTrack is not supported: Spotify has no ratings.
func (c *SpotifyClient) RateTrack(context.Context, models.GenericTrack, float64) (bool, error) {
	return false, nil
}

// SetTrackPlaylistOrder moves one entry with a range reorder. insert_before is 0-based and counts the
// entry itself, so moves to a later position insert before newOrder and moves to an earlier position
// before newOrder-1.
func (c *SpotifyClient) SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, _ []models.GenericTrack, newOrder int) (bool, error) {
	old := track.PlaylistSortOrder
	if old < 1 || newOrder < 1 || old == newOrder {
		return old == newOrder, nil
	}

	insertBefore := newOrder - 1
	if newOrder > old {
		insertBefore = newOrder
	}
	opts := spotify.PlaylistReorderOptions{
		RangeStart:   spotify.Numeric(old - 1),
		RangeLength:  1,
		InsertBefore: spotify.Numeric(insertBefore),
	}
	if _, err := c.api.ReorderPlaylistTracks(ctx, spotify.ID(playlist.ID), opts); err != nil {
		return false, spotifyError("reorder", err)
	}
	return true, nil
}

func spotifyTrack(t spotify.FullTrack) models.GenericTrack {
	g := spotifySimpleTrack(t.SimpleTrack)
	g.AlbumName = t.Album.Name
	if len(t.Album.Artists) > 0 {
		g.AlbumArtist = t.Album.Artists[0].Name
	}
	return g
}

func spotifySimpleTrack(t spotify.SimpleTrack) models.GenericTrack {
	g := models.GenericTrack{
		ID:    t.ID.String(),
		Title: t.Name,
		URI:   string(t.URI),
	}
	if len(t.Artists) > 0 {
		g.ArtistName = t.Artists[0].Name
	}
	return g
}

// spotifyError maps API failures onto the shared sentinels.
func spotifyError(op string, err error) error {
	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		apiErr = *apiErrPtr
	}
	if errors.As(err, &apiErr) || apiErrPtr != nil {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return fmt.Errorf("%w: spotify %s: %s", shared.ErrAuthFailed, op, apiErr.Message)
		case apiErr.Status == http.StatusNotFound:
			return fmt.Errorf("%w: spotify %s: %s", shared.ErrPlaylistNotFound, op, apiErr.Message)
		case apiErr.Status >= 500:
			return fmt.Errorf("%w: spotify %s: %s", shared.ErrServiceUnavailable, op, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: spotify %s: %v", shared.ErrAPIRequest, op, err)
}
