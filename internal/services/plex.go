package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/plsync/internal/matcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reorder"
	"github.com/desertthunder/plsync/internal/shared"
)

const plexLibraryIdentifier = "com.plexapp.plugins.library"

type plexEnvelope struct {
	MediaContainer plexContainer `json:"MediaContainer"`
}

type plexContainer struct {
	Size              int                `json:"size"`
	MachineIdentifier string             `json:"machineIdentifier"`
	Metadata          []plexMetadata     `json:"Metadata"`
	SearchResult      []plexSearchResult `json:"SearchResult"`
	Directory         []plexDirectory    `json:"Directory"`
}

type plexMetadata struct {
	RatingKey        string  `json:"ratingKey"`
	Type             string  `json:"type"`
	Title            string  `json:"title"`
	ParentTitle      string  `json:"parentTitle"`
	GrandparentTitle string  `json:"grandparentTitle"`
	OriginalTitle    string  `json:"originalTitle"`
	UserRating       float64 `json:"userRating"`
	PlaylistItemID   int64   `json:"playlistItemID"`
	Smart            bool    `json:"smart"`
	PlaylistType     string  `json:"playlistType"`
	LeafCount        int     `json:"leafCount"`
}

type plexSearchResult struct {
	Score    float64      `json:"score"`
	Metadata plexMetadata `json:"Metadata"`
}

type plexDirectory struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

func (m plexMetadata) generic() models.GenericTrack {
	t := models.GenericTrack{
		ID:          m.RatingKey,
		Title:       m.Title,
		ArtistName:  m.GrandparentTitle,
		AlbumName:   m.ParentTitle,
		AlbumArtist: m.GrandparentTitle,
		LikeRating:  m.UserRating,
	}
	if m.OriginalTitle != "" {
		t.ArtistName = m.OriginalTitle
	}
	if m.PlaylistItemID > 0 {
		t.PlaylistItemID = strconv.FormatInt(m.PlaylistItemID, 10)
	}
	return t
}

func (m plexMetadata) complete() bool {
	return m.RatingKey != "" && m.Title != "" && m.ParentTitle != "" && m.GrandparentTitle != ""
}

// PlexClient talks to a Plex Media Server with an X-Plex-Token.
type PlexClient struct {
	http      *requester
	serverURL string
	threshold int

	mu        sync.Mutex
	machineID string
}

// NewPlexFactory returns a [Factory] for Plex servers.
func NewPlexFactory() Factory {
	return func(account string, deps Deps) (Client, error) {
		creds := deps.Config.Credentials.Plex
		if account == "" {
			account = creds.URL
		}
		if account == "" || creds.Token == "" {
			return nil, fmt.Errorf("%w: plex url and token are required", shared.ErrMissingCredentials)
		}
		return NewPlexClient(account, creds.Token, deps), nil
	}
}

// NewPlexClient creates a client for the server at serverURL.
func NewPlexClient(serverURL, token string, deps Deps) *PlexClient {
	deps = deps.withDefaults()
	r := newRequester(models.ServicePlex, serverURL, deps)
	r.header.Set("X-Plex-Token", token)
	r.header.Set("X-Plex-Product", subsonicClientName)
	return &PlexClient{
		http:      r,
		serverURL: strings.TrimRight(serverURL, "/"),
		threshold: deps.MatchPercentage,
	}
}

func (c *PlexClient) Name() string { return models.ServicePlex }

func (c *PlexClient) Account(context.Context) (string, error) {
	return c.serverURL, nil
}

func (c *PlexClient) get(ctx context.Context, path string, query url.Values) (*plexContainer, error) {
	var env plexEnvelope
	if err := c.http.do(ctx, http.MethodGet, path, query, nil, &env, nil); err != nil {
		return nil, err
	}
	return &env.MediaContainer, nil
}

// machineIdentifier fetches the server's identifier once; later calls reuse it.
func (c *PlexClient) machineIdentifier(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machineID != "" {
		return c.machineID, nil
	}

	info, err := c.get(ctx, "/", nil)
	if err != nil {
		return "", err
	}
	if info.MachineIdentifier == "" {
		return "", fmt.Errorf("%w: plex server returned no machine identifier", shared.ErrAPIRequest)
	}
	c.machineID = info.MachineIdentifier
	return c.machineID, nil
}

func (c *PlexClient) FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error) {
	resp, err := c.get(ctx, "/playlists", url.Values{"playlistType": {"audio"}})
	if err != nil {
		return nil, err
	}

	playlists := make([]models.GenericPlaylist, 0, len(resp.Metadata))
	for _, p := range resp.Metadata {
		if p.PlaylistType != "" && p.PlaylistType != "audio" {
			continue
		}
		playlists = append(playlists, models.GenericPlaylist{
			ID:            p.RatingKey,
			Name:          p.Title,
			CanAddTracks:  !p.Smart,
			CanSortTracks: !p.Smart,
			TrackCount:    p.LeafCount,
		})
	}
	return playlists, nil
}

func (c *PlexClient) FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error) {
	resp, err := c.get(ctx, "/playlists/"+url.PathEscape(playlistID)+"/items", nil)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.GenericTrack, 0, len(resp.Metadata))
	for _, m := range resp.Metadata {
		if m.Type != "track" {
			continue
		}
		tracks = append(tracks, m.generic())
	}
	return tracks, nil
}

// FetchLikedTracks returns every rated track of the server's music libraries.
func (c *PlexClient) FetchLikedTracks(ctx context.Context) ([]models.GenericTrack, error) {
	sections, err := c.get(ctx, "/library/sections", nil)
	if err != nil {
		return nil, err
	}

	var liked []models.GenericTrack
	for _, dir := range sections.Directory {
		if dir.Type != "artist" {
			continue
		}
		resp, err := c.get(ctx, "/library/sections/"+url.PathEscape(dir.Key)+"/all", url.Values{"type": {"10"}, "userRating>": {"0"}})
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Metadata {
			if m.Type == "track" && m.UserRating > 0 {
				liked = append(liked, m.generic())
			}
		}
	}
	return liked, nil
}

func (c *PlexClient) CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error) {
	mid, err := c.machineIdentifier(ctx)
	if err != nil {
		return models.GenericPlaylist{}, err
	}

	query := url.Values{
		"type":  {"audio"},
		"title": {name},
		"smart": {"0"},
		"uri":   {fmt.Sprintf("server://%s/%s/library/metadata/", mid, plexLibraryIdentifier)},
	}
	var env plexEnvelope
	if err := c.http.do(ctx, http.MethodPost, "/playlists", query, nil, &env, nil); err != nil {
		return models.GenericPlaylist{}, err
	}
	if len(env.MediaContainer.Metadata) == 0 {
		return models.GenericPlaylist{}, fmt.Errorf("%w: plex returned no playlist for %q", shared.ErrAPIRequest, name)
	}

	p := env.MediaContainer.Metadata[0]
	return models.GenericPlaylist{ID: p.RatingKey, Name: p.Title, CanAddTracks: true, CanSortTracks: true}, nil
}

// SearchTrack searches "artist title". Singles only show up as albums, so album hits are expanded
// into their tracks.
func (c *PlexClient) SearchTrack(ctx context.Context, artist, _, title string) ([]models.GenericTrack, error) {
	resp, err := c.get(ctx, "/library/search", url.Values{
		"query":       {strings.TrimSpace(artist + " " + title)},
		"searchTypes": {"music"},
	})
	if err != nil {
		return nil, err
	}

	var found []plexMetadata
	for _, r := range resp.SearchResult {
		if r.Metadata.Type != "album" {
			continue
		}
		children, err := c.children(ctx, r.Metadata.RatingKey)
		if err != nil {
			return nil, err
		}
		found = append(found, children...)
	}
	for _, r := range resp.SearchResult {
		if r.Metadata.Type == "track" {
			found = append(found, r.Metadata)
		}
	}
	return distinctTracks(found), nil
}

// DeepSearchTrack walks every artist close to artist, then its albums close to album.
func (c *PlexClient) DeepSearchTrack(ctx context.Context, artist, album, _ string) ([]models.GenericTrack, error) {
	if strings.TrimSpace(artist) == "" {
		return nil, nil
	}

	resp, err := c.get(ctx, "/library/search", url.Values{"query": {artist}, "searchTypes": {"music"}})
	if err != nil {
		return nil, err
	}

	var found []plexMetadata
	for _, r := range resp.SearchResult {
		if r.Metadata.Type != "artist" || matcher.Ratio(r.Metadata.Title, artist) < c.threshold {
			continue
		}

		albums, err := c.children(ctx, r.Metadata.RatingKey)
		if err != nil {
			return nil, err
		}
		for _, al := range albums {
			if al.Type != "album" {
				continue
			}
			if album != "" && matcher.Ratio(strings.ToLower(al.Title), strings.ToLower(album)) < c.threshold {
				continue
			}
			tracks, err := c.children(ctx, al.RatingKey)
			if err != nil {
				return nil, err
			}
			found = append(found, tracks...)
		}
	}
	return distinctTracks(found), nil
}

func (c *PlexClient) children(ctx context.Context, ratingKey string) ([]plexMetadata, error) {
	resp, err := c.get(ctx, "/library/metadata/"+url.PathEscape(ratingKey)+"/children", nil)
	if err != nil {
		return nil, err
	}
	return resp.Metadata, nil
}

func (c *PlexClient) AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	mid, err := c.machineIdentifier(ctx)
	if err != nil {
		return false, err
	}

	query := url.Values{"uri": {fmt.Sprintf("server://%s/%s/library/metadata/%s", mid, plexLibraryIdentifier, track.ID)}}
	if err := c.http.do(ctx, http.MethodPut, "/playlists/"+url.PathEscape(playlistID)+"/items", query, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// LikeTrack rates the track; Plex has no separate favorite flag.
func (c *PlexClient) LikeTrack(ctx context.Context, track models.GenericTrack, rating float64) (bool, error) {
	return c.RateTrack(ctx, track, rating)
}

func (c *PlexClient) RateTrack(ctx context.Context, track models.GenericTrack, rating float64) (bool, error) {
	if rating <= 0 {
		return false, nil
	}
	stars := int(math.Round(min(rating, models.MaxRating)))

	query := url.Values{
		"key":        {track.ID},
		"identifier": {plexLibraryIdentifier},
		"rating":     {strconv.Itoa(stars)},
	}
	if err := c.http.do(ctx, http.MethodPut, "/:/rate", query, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// SetTrackPlaylistOrder moves an entry after the entry that must precede it. Without an anchor the
// entry goes to the top.
func (c *PlexClient) SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error) {
	if track.PlaylistItemID == "" {
		return false, nil
	}

	var query url.Values
	if anchor, ok := reorder.AnchorFor(track, current, newOrder); ok {
		if anchor.PlaylistItemID == "" {
			return false, nil
		}
		query = url.Values{"after": {anchor.PlaylistItemID}}
	}

	path := fmt.Sprintf("/playlists/%s/items/%s/move", url.PathEscape(playlist.ID), url.PathEscape(track.PlaylistItemID))
	if err := c.http.do(ctx, http.MethodPut, path, query, nil, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// distinctTracks drops incomplete entries and repeated rating keys.
func distinctTracks(in []plexMetadata) []models.GenericTrack {
	seen := make(map[string]bool, len(in))
	out := make([]models.GenericTrack, 0, len(in))
	for _, m := range in {
		if m.Type != "track" || !m.complete() || seen[m.RatingKey] {
			continue
		}
		seen[m.RatingKey] = true
		out = append(out, m.generic())
	}
	return out
}
