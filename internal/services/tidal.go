package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	tidalAPIURL      = "https://openapi.tidal.com/v2"
	tidalAuthURL     = "https://login.tidal.com/authorize"
	tidalTokenURL    = "https://auth.tidal.com/v1/oauth2/token"
	tidalMediaType   = "application/vnd.api+json"
	tidalSearchLimit = 10
)

// TidalScopes are the scopes requested by `auth tidal`.
var TidalScopes = []string{"collection.read", "collection.write", "playlists.read", "playlists.write", "user.read"}

// TidalOAuthConfig builds the authorization code flow config for the configured app.
//
// Tidal apps are public clients: the client id goes in the form body and the flow relies on PKCE.
func TidalOAuthConfig(creds shared.TidalConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       TidalScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   tidalAuthURL,
			TokenURL:  tidalTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tidalResource is one JSON:API resource object. Attributes cover the types read here.
type tidalResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"attributes"`
	Relationships struct {
		Items tidalRelationship `json:"items"`
	} `json:"relationships"`
}

type tidalRelationship struct {
	Data  []tidalRef `json:"data"`
	Links tidalLinks `json:"links"`
}

type tidalRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Meta struct {
		ItemID string `json:"itemId"`
	} `json:"meta"`
}

type tidalLinks struct {
	Next string `json:"next"`
}

type tidalDocument struct {
	Data     tidalResource   `json:"data"`
	Included []tidalResource `json:"included"`
}

type tidalList struct {
	Data  []tidalResource `json:"data"`
	Links tidalLinks      `json:"links"`
}

type tidalItemsPage struct {
	Data  []tidalRef `json:"data"`
	Links tidalLinks `json:"links"`
}

// TidalClient talks to the Tidal open API for the authorized user, in one catalog country.
type TidalClient struct {
	http        *requester
	countryCode string
	threshold   int

	mu     sync.Mutex
	userID string
	tracks map[string]models.GenericTrack
}

// NewTidalFactory returns a [Factory] for Tidal. account, when set, must be the authorized user's id.
func NewTidalFactory() Factory {
	return func(account string, deps Deps) (Client, error) {
		deps = deps.withDefaults()
		creds := deps.Config.Credentials.Tidal
		if creds.ClientID == "" || creds.CountryCode == "" {
			return nil, fmt.Errorf("%w: tidal client id and country code are required", shared.ErrMissingCredentials)
		}
		tok := creds.Token()
		if tok == nil {
			return nil, fmt.Errorf("%w: run `plsync auth tidal` first", shared.ErrNotAuthenticated)
		}

		deps.HTTPClient = oauthHTTPClient(models.ServiceTidal, TidalOAuthConfig(creds), tok, deps)
		c := NewTidalClient(tidalAPIURL, creds.CountryCode, deps)
		if account != "" {
			c.userID = account
		}
		return c, nil
	}
}

// NewTidalClient creates a client for the API at baseURL. deps.HTTPClient must already authorize requests.
func NewTidalClient(baseURL, countryCode string, deps Deps) *TidalClient {
	deps = deps.withDefaults()
	r := newRequester(models.ServiceTidal, baseURL, deps)
	r.header.Set("Accept", tidalMediaType)
	r.header.Set("Content-Type", tidalMediaType)
	return &TidalClient{
		http:        r,
		countryCode: countryCode,
		threshold:   deps.MatchPercentage,
		tracks:      make(map[string]models.GenericTrack),
	}
}

func (c *TidalClient) Name() string { return models.ServiceTidal }

// Account returns the current user's id, looked up once.
func (c *TidalClient) Account(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}
	var doc tidalDocument
	if err := c.get(ctx, "/users/me", nil, &doc); err != nil {
		return "", err
	}
	if doc.Data.ID == "" {
		return "", fmt.Errorf("%w: tidal returned no user id", shared.ErrAuthFailed)
	}
	c.userID = doc.Data.ID
	return c.userID, nil
}

// get adds the country code every catalog request needs.
func (c *TidalClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("countryCode", c.countryCode)
	return c.http.do(ctx, http.MethodGet, path, query, nil, out, nil)
}

// tidalNext splits a links.next value, relative to the API root or absolute, into a path and query.
func tidalNext(link string) (string, url.Values, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad tidal next link %q: %v", shared.ErrAPIRequest, link, err)
	}
	path := u.Path
	if i := strings.Index(path, "/v2/"); u.IsAbs() && i >= 0 {
		path = path[i+len("/v2"):]
	}
	return path, u.Query(), nil
}

// FetchPlaylists lists the playlists owned by the user. Tidal playlists cannot be reordered through the API.
func (c *TidalClient) FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error) {
	owner, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	path, query := "/playlists", url.Values{"filter[r.owners.id]": {owner}}
	var playlists []models.GenericPlaylist
	for {
		var page tidalList
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Data {
			playlists = append(playlists, models.GenericPlaylist{
				ID:           p.ID,
				Name:         p.Attributes.Name,
				CanAddTracks: true,
			})
		}
		if page.Links.Next == "" {
			return playlists, nil
		}
		if path, query, err = tidalNext(page.Links.Next); err != nil {
			return nil, err
		}
	}
}

// FetchPlaylistTracks walks the item pages of a playlist and resolves every track through [TidalClient.track].
func (c *TidalClient) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error) {
	var doc tidalDocument
	if err := c.get(ctx, "/playlists/"+url.PathEscape(playlistID), url.Values{"include": {"items"}}, &doc); err != nil {
		return nil, err
	}

	refs := doc.Data.Relationships.Items.Data
	link := doc.Data.Relationships.Items.Links.Next
	for link != "" {
		path, query, err := tidalNext(link)
		if err != nil {
			return nil, err
		}
		var page tidalItemsPage
		if err := c.get(ctx, path, query, &page); err != nil {
			return nil, err
		}
		refs = append(refs, page.Data...)
		link = page.Links.Next
	}

	var tracks []models.GenericTrack
	for _, ref := range refs {
		if ref.Type != "tracks" {
			continue
		}
		t, ok, err := c.track(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		t.PlaylistItemID = ref.Meta.ItemID
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// track resolves the title, first artist and album of a track. Tracks without both are skipped.
func (c *TidalClient) track(ctx context.Context, id string) (models.GenericTrack, bool, error) {
	c.mu.Lock()
	cached, ok := c.tracks[id]
	c.mu.Unlock()
	if ok {
		return cached, true, nil
	}

	var doc tidalDocument
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), url.Values{"include": {"albums,artists"}}, &doc); err != nil {
		return models.GenericTrack{}, false, err
	}

	var artist, album string
	for _, inc := range doc.Included {
		switch {
		case inc.Type == "artists" && artist == "":
			artist = inc.Attributes.Name
		case inc.Type == "albums" && album == "":
			album = inc.Attributes.Title
		}
	}
	if artist == "" || album == "" {
		c.http.logger.Debug("skipping track without artist or album", "id", id)
		return models.GenericTrack{}, false, nil
	}

	t := models.GenericTrack{
		ID:          doc.Data.ID,
		Title:       doc.Data.Attributes.Title,
		ArtistName:  artist,
		AlbumName:   album,
		AlbumArtist: artist,
		URI:         "tidal:track:" + doc.Data.ID,
	}
	c.mu.Lock()
	c.tracks[id] = t
	c.mu.Unlock()
	return t, true, nil
}

// FetchLikedTracks is not supported: only playlists are pulled from Tidal.
func (c *TidalClient) FetchLikedTracks(context.Context) ([]models.GenericTrack, error) {
	return nil, nil
}

func (c *TidalClient) CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "playlists",
			"attributes": map[string]any{
				"name":        name,
				"description": "",
				"accessType":  "PUBLIC",
			},
		},
	}
	var doc tidalDocument
	query := url.Values{"countryCode": {c.countryCode}}
	if err := c.http.do(ctx, http.MethodPost, "/playlists", query, body, &doc, nil); err != nil {
		return models.GenericPlaylist{}, err
	}
	if doc.Data.ID == "" {
		return models.GenericPlaylist{}, fmt.Errorf("%w: tidal returned no playlist id for %q", shared.ErrAPIRequest, name)
	}
	return models.GenericPlaylist{ID: doc.Data.ID, Name: name, CanAddTracks: true}, nil
}

// SearchTrack searches "artist title" and resolves the tracks whose title is close to title.
func (c *TidalClient) SearchTrack(ctx context.Context, artist, _, title string) ([]models.GenericTrack, error) {
	term := strings.TrimSpace(artist + " " + title)
	if term == "" {
		return nil, nil
	}

	var doc tidalDocument
	if err := c.get(ctx, "/searchResults/"+url.PathEscape(term), url.Values{"include": {"tracks,artists,albums"}}, &doc); err != nil {
		return nil, err
	}

	var found []models.GenericTrack
	for _, inc := range doc.Included {
		if inc.Type != "tracks" {
			continue
		}
		if title != "" && matcher.Ratio(strings.ToLower(inc.Attributes.Title), strings.ToLower(title)) < c.threshold {
			continue
		}
		t, ok, err := c.track(ctx, inc.ID)
		if err != nil {
			return found, err
		}
		if ok {
			found = append(found, t)
		}
		if len(found) == tidalSearchLimit {
			break
		}
	}
	return found, nil
}

// DeepSearchTrack is not supported.
func (c *TidalClient) DeepSearchTrack(context.Context, string, string, string) ([]models.GenericTrack, error) {
	return nil, nil
}

func (c *TidalClient) AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	body := map[string]any{
		"data": []map[string]string{{"id": track.ID, "type": "tracks"}},
	}
	query := url.Values{"countryCode": {c.countryCode}}
	if err := c.http.do(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/relationships/items", query, body, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// LikeTrack is not supported.
func (c *TidalClient) LikeTrack(context.Context, models.GenericTrack, float64) (bool, error) {
	return false, nil
}

// RateTrack is not supported: Tidal has no ratings.
func (c *TidalClient) RateTrack(context.Context, models.GenericTrack, float64) (bool, error) {
	return false, nil
}

// SetTrackPlaylistOrder is not supported.
func (c *TidalClient) SetTrackPlaylistOrder(context.Context, models.GenericPlaylist, models.GenericTrack, []models.GenericTrack, int) (bool, error) {
	return false, nil
}
