package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const jellyfinSearchLimit = 100

type jellyfinItems struct {
	Items            []jellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

type jellyfinItem struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	Type           string   `json:"Type"`
	PlaylistItemID string   `json:"PlaylistItemId"`
	Artists        []string `json:"Artists"`
	Album          string   `json:"Album"`
	AlbumArtist    string   `json:"AlbumArtist"`
	CanDelete      bool     `json:"CanDelete"`
	UserData       *struct {
		IsFavorite bool `json:"IsFavorite"`
	} `json:"UserData"`
}

func (i jellyfinItem) generic() models.GenericTrack {
	t := models.GenericTrack{
		ID:             i.ID,
		Title:          i.Name,
		AlbumName:      i.Album,
		AlbumArtist:    i.AlbumArtist,
		ArtistName:     i.AlbumArtist,
		PlaylistItemID: i.PlaylistItemID,
	}
	if len(i.Artists) > 0 {
		t.ArtistName = i.Artists[0]
	}
	if i.UserData != nil && i.UserData.IsFavorite {
		t.LikeRating = models.MaxRating
	}
	return t
}

// JellyfinClient talks to a Jellyfin server with an API key, on behalf of one user.
type JellyfinClient struct {
	http      *requester
	serverURL string
	userID    string
	threshold int
}

// NewJellyfinFactory returns a [Factory] for Jellyfin servers.
func NewJellyfinFactory() Factory {
	return func(account string, deps Deps) (Client, error) {
		creds := deps.Config.Credentials.Jellyfin
		if account == "" {
			account = creds.URL
		}
		if account == "" || creds.APIKey == "" || creds.UserID == "" {
			return nil, fmt.Errorf("%w: jellyfin url, api key and user id are required", shared.ErrMissingCredentials)
		}
		return NewJellyfinClient(account, creds.APIKey, creds.UserID, deps), nil
	}
}

// NewJellyfinClient creates a client for the server at serverURL.
func NewJellyfinClient(serverURL, apiKey, userID string, deps Deps) *JellyfinClient {
	deps = deps.withDefaults()
	r := newRequester(models.ServiceJellyfin, serverURL, deps)
	r.header.Set("Authorization", fmt.Sprintf(`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="1.0.0", Token="%s"`,
		subsonicClientName, subsonicClientName, subsonicClientName, apiKey))
	return &JellyfinClient{
		http:      r,
		serverURL: strings.TrimRight(serverURL, "/"),
		userID:    userID,
		threshold: deps.MatchPercentage,
	}
}

func (c *JellyfinClient) Name() string { return models.ServiceJellyfin }

func (c *JellyfinClient) Account(context.Context) (string, error) {
	return c.serverURL, nil
}

func (c *JellyfinClient) items(ctx context.Context, path string, query url.Values) ([]jellyfinItem, error) {
	var resp jellyfinItems
	if err := c.http.do(ctx, http.MethodGet, path, query, nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *JellyfinClient) userItems(ctx context.Context, query url.Values) ([]jellyfinItem, error) {
	query.Set("Recursive", "true")
	query.Set("SortBy", "SortName")
	query.Set("SortOrder", "Ascending")
	return c.items(ctx, "/Users/"+url.PathEscape(c.userID)+"/Items", query)
}

func (c *JellyfinClient) FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error) {
	items, err := c.userItems(ctx, url.Values{"IncludeItemTypes": {"Playlist"}, "Fields": {"SortName,CanDelete"}})
	if err != nil {
		return nil, err
	}

	playlists := make([]models.GenericPlaylist, 0, len(items))
	for _, p := range items {
		playlists = append(playlists, models.GenericPlaylist{
			ID:            p.ID,
			Name:          p.Name,
			CanAddTracks:  true,
			CanSortTracks: true,
		})
	}
	return playlists, nil
}

func (c *JellyfinClient) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error) {
	items, err := c.items(ctx, "/Playlists/"+url.PathEscape(playlistID)+"/Items", url.Values{"UserId": {c.userID}})
	if err != nil {
		return nil, err
	}
	return jellyfinTracks(items), nil
}

func (c *JellyfinClient) FetchLikedTracks(ctx context.Context) ([]models.GenericTrack, error) {
	items, err := c.userItems(ctx, url.Values{"IncludeItemTypes": {"Audio"}, "Filters": {"IsFavorite"}})
	if err != nil {
		return nil, err
	}
	return jellyfinTracks(items), nil
}

func (c *JellyfinClient) CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error) {
	body := map[string]any{
		"Name":      name,
		"Ids":       []string{},
		"UserId":    c.userID,
		"MediaType": "Audio",
	}
	var resp struct {
		ID string `json:"Id"`
	}
	if err := c.http.do(ctx, http.MethodPost, "/Playlists", nil, body, &resp, nil); err != nil {
		return models.GenericPlaylist{}, err
	}
	if resp.ID == "" {
		return models.GenericPlaylist{}, fmt.Errorf("%w: jellyfin returned no playlist id for %q", shared.ErrAPIRequest, name)
	}
	return models.GenericPlaylist{ID: resp.ID, Name: name, CanAddTracks: true, CanSortTracks: true}, nil
}

func (c *JellyfinClient) SearchTrack(ctx context.Context, artist, _, title string) ([]models.GenericTrack, error) {
	items, err := c.items(ctx, "/Items", url.Values{
		"UserId":                {c.userID},
		"searchTerm":            {strings.TrimSpace(artist + " " + title)},
		"includeItemTypes":      {"Audio"},
		"recursive":             {"true"},
		"limit":                 {strconv.Itoa(jellyfinSearchLimit)},
		"enableTotalRecordCount": {"false"},
	})
	if err != nil {
		return nil, err
	}
	return jellyfinTracks(items), nil
}

// DeepSearchTrack lists the audio of every artist close to artist, keeping albums close to album.
func (c *JellyfinClient) DeepSearchTrack(ctx context.Context, artist, album, _ string) ([]models.GenericTrack, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, nil
	}

	artists, err := c.items(ctx, "/Artists", url.Values{"UserId": {c.userID}, "searchTerm": {artist}})
	if err != nil {
		return nil, err
	}

	var found []models.GenericTrack
	for _, a := range artists {
		if matcher.Ratio(strings.ToLower(a.Name), strings.ToLower(artist)) < c.threshold {
			continue
		}
		items, err := c.userItems(ctx, url.Values{"IncludeItemTypes": {"Audio"}, "ArtistIds": {a.ID}})
		if err != nil {
			return nil, err
		}
		for _, t := range jellyfinTracks(items) {
			if album != "" && matcher.Ratio(strings.ToLower(t.AlbumName), strings.ToLower(album)) < c.threshold {
				continue
			}
			found = append(found, t)
		}
	}
	return found, nil
}

func (c *JellyfinClient) AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	query := url.Values{"ids": {track.ID}, "userId": {c.userID}}
	if err := c.http.do(ctx, http.MethodPost, "/Playlists/"+url.PathEscape(playlistID)+"/Items", query, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *JellyfinClient) LikeTrack(ctx context.Context, track models.GenericTrack, _ float64) (bool, error) {
	path := fmt.Sprintf("/Users/%s/FavoriteItems/%s", url.PathEscape(c.userID), url.PathEscape(track.ID))
	if err := c.http.do(ctx, http.MethodPost, path, nil, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// RateTrack is not supported: Jellyfin only knows favorites.
func (c *JellyfinClient) RateTrack(context.Context, models.GenericTrack, float64) (bool, error) {
	return false, nil
}

// SetTrackPlaylistOrder moves an entry to the 0-based index newOrder-1.
func (c *JellyfinClient) SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, _ []models.GenericTrack, newOrder int) (bool, error) {
	if track.PlaylistItemID == "" {
		return false, nil
	}

	path := fmt.Sprintf("/Playlists/%s/Items/%s/Move/%d", url.PathEscape(playlist.ID), url.PathEscape(track.PlaylistItemID), newOrder-1)
	if err := c.http.do(ctx, http.MethodPost, path, nil, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func jellyfinTracks(items []jellyfinItem) []models.GenericTrack {
	out := make([]models.GenericTrack, 0, len(items))
	for _, i := range items {
		if i.Type != "" && i.Type != "Audio" {
			continue
		}
		out = append(out, i.generic())
	}
	return out
}
