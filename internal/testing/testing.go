// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
)

// MockLibrary is an in-memory music server shared by [MockClient] and [MockProvider].
//
// Writes are applied immediately, so a later read sees them.
type MockLibrary struct {
	mu sync.Mutex

	Playlists []models.GenericPlaylist
	Entries   map[string][]models.GenericTrack // playlist id to entries in playlist order
	Liked     []models.GenericTrack
	Catalog   []models.GenericTrack
	Hidden    []models.GenericTrack // only reachable through deep search

	// Recorded writes.
	Added   map[string][]string // playlist id to added catalog ids
	LikeIDs []string
	Ratings map[string]float64
	Moves   int

	// Failure injection.
	FailSearch  error
	FailAdd     map[string]error // catalog id to error
	FailFetch   map[string]error // playlist id to error
	NoReorder   bool
	SearchCalls int
	DeepCalls   int

	nextID int
}

// NewMockLibrary creates an empty library.
func NewMockLibrary() *MockLibrary {
	return &MockLibrary{
		Entries: make(map[string][]models.GenericTrack),
		Added:   make(map[string][]string),
		Ratings: make(map[string]float64),
	}
}

// AddPlaylist creates a playlist holding tracks, in order.
func (l *MockLibrary) AddPlaylist(p models.GenericPlaylist, tracks ...models.GenericTrack) models.GenericPlaylist {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p.ID == "" {
		l.nextID++
		p.ID = fmt.Sprintf("pl-%d", l.nextID)
	}
	l.Playlists = append(l.Playlists, p)
	for _, t := range tracks {
		l.appendEntry(p.ID, t)
	}
	return p
}

// TrackIDs lists the catalog ids of a playlist in order.
func (l *MockLibrary) TrackIDs(playlistID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.Entries[playlistID]))
	for _, t := range l.Entries[playlistID] {
		ids = append(ids, t.ID)
	}
	return ids
}

// PlaylistByName finds a playlist by exact name.
func (l *MockLibrary) PlaylistByName(name string) (models.GenericPlaylist, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.Playlists {
		if p.Name == name {
			return p, true
		}
	}
	return models.GenericPlaylist{}, false
}

// TotalAdded counts every track added through the mock.
func (l *MockLibrary) TotalAdded() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ids := range l.Added {
		n += len(ids)
	}
	return n
}

func (l *MockLibrary) appendEntry(playlistID string, t models.GenericTrack) {
	l.nextID++
	t.PlaylistItemID = fmt.Sprintf("entry-%d", l.nextID)
	l.Entries[playlistID] = append(l.Entries[playlistID], t)
	renumber(l.Entries[playlistID])
}

func (l *MockLibrary) playlists() []models.GenericPlaylist {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.Playlists)
}

func (l *MockLibrary) tracks(playlistID string) ([]models.GenericTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.FailFetch[playlistID]; err != nil {
		return nil, err
	}
	return slices.Clone(l.Entries[playlistID]), nil
}

func (l *MockLibrary) tracksByName(name string) []models.GenericTrack {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.Playlists {
		if p.Name == name {
			return slices.Clone(l.Entries[p.ID])
		}
	}
	return nil
}

func (l *MockLibrary) liked() []models.GenericTrack {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.Liked)
}

func (l *MockLibrary) create(name string) models.GenericPlaylist {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	p := models.GenericPlaylist{ID: fmt.Sprintf("pl-%d", l.nextID), Name: name, CanAddTracks: true, CanSortTracks: !l.NoReorder}
	l.Playlists = append(l.Playlists, p)
	return p
}

// search returns catalog tracks by artist, and on album too when album is set.
func (l *MockLibrary) search(artist, album string) ([]models.GenericTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.SearchCalls++
	if l.FailSearch != nil {
		return nil, l.FailSearch
	}
	return filterTracks(l.Catalog, artist, album), nil
}

// deepSearch returns every catalog and hidden track of the artist.
func (l *MockLibrary) deepSearch(artist string) ([]models.GenericTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.DeepCalls++
	if l.FailSearch != nil {
		return nil, l.FailSearch
	}
	return append(filterTracks(l.Catalog, artist, ""), filterTracks(l.Hidden, artist, "")...), nil
}

func filterTracks(tracks []models.GenericTrack, artist, album string) []models.GenericTrack {
	var out []models.GenericTrack
	for _, t := range tracks {
		if !strings.EqualFold(t.ArtistName, artist) {
			continue
		}
		if album != "" && !strings.EqualFold(t.AlbumName, album) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (l *MockLibrary) add(playlistID string, t models.GenericTrack) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.FailAdd[t.ID]; err != nil {
		return false, err
	}
	l.Added[playlistID] = append(l.Added[playlistID], t.ID)
	t.PlaylistSortOrder = 0
	l.appendEntry(playlistID, t)
	return true, nil
}

func (l *MockLibrary) like(t models.GenericTrack, rating float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.LikeIDs = append(l.LikeIDs, t.ID)
	t.LikeRating = rating
	l.Liked = append(l.Liked, t)
	return true, nil
}

func (l *MockLibrary) rate(t models.GenericTrack, rating float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rating <= 0 {
		return false, nil
	}
	l.Ratings[t.ID] = rating
	return true, nil
}

// move relocates the entry of track to the 1-based newOrder.
// Entries added without an entry id are found by catalog id.
func (l *MockLibrary) move(playlistID string, track models.GenericTrack, newOrder int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.NoReorder {
		return false, nil
	}
	l.Moves++

	entries := l.Entries[playlistID]
	idx := slices.IndexFunc(entries, func(t models.GenericTrack) bool { return t.EntryKey() == track.EntryKey() })
	if idx < 0 {
		idx = slices.IndexFunc(entries, func(t models.GenericTrack) bool { return t.ID == track.ID })
	}
	if idx < 0 {
		return false, fmt.Errorf("entry %s not in playlist %s", track.EntryKey(), playlistID)
	}
	if newOrder < 1 || newOrder > len(entries) {
		return false, fmt.Errorf("position %d out of range", newOrder)
	}

	moved := entries[idx]
	entries = slices.Delete(entries, idx, idx+1)
	entries = slices.Insert(entries, newOrder-1, moved)
	renumber(entries)
	l.Entries[playlistID] = entries
	return true, nil
}

func renumber(entries []models.GenericTrack) {
	for i := range entries {
		entries[i].PlaylistSortOrder = i + 1
	}
}

// MockClient is a test double for services.Client backed by a [MockLibrary].
type MockClient struct {
	*MockLibrary
	Service     string
	AccountName string
}

// NewMockClient creates a client named service for account.
func NewMockClient(service, account string, lib *MockLibrary) *MockClient {
	if lib == nil {
		lib = NewMockLibrary()
	}
	return &MockClient{MockLibrary: lib, Service: service, AccountName: account}
}

func (m *MockClient) Name() string { return m.Service }

func (m *MockClient) Account(context.Context) (string, error) { return m.AccountName, nil }

func (m *MockClient) FetchPlaylists(context.Context) ([]models.GenericPlaylist, error) {
	return m.playlists(), nil
}

func (m *MockClient) FetchPlaylistTracks(_ context.Context, playlistID string) ([]models.GenericTrack, error) {
	return m.tracks(playlistID)
}

func (m *MockClient) FetchLikedTracks(context.Context) ([]models.GenericTrack, error) {
	return m.liked(), nil
}

func (m *MockClient) CreatePlaylist(_ context.Context, name string) (models.GenericPlaylist, error) {
	return m.create(name), nil
}

func (m *MockClient) SearchTrack(_ context.Context, artist, album, _ string) ([]models.GenericTrack, error) {
	return m.search(artist, album)
}

func (m *MockClient) DeepSearchTrack(_ context.Context, artist, _, _ string) ([]models.GenericTrack, error) {
	return m.deepSearch(artist)
}

func (m *MockClient) AddTrackToPlaylist(_ context.Context, playlistID string, track models.GenericTrack) (bool, error) {
	return m.add(playlistID, track)
}

func (m *MockClient) LikeTrack(_ context.Context, track models.GenericTrack, rating float64) (bool, error) {
	return m.like(track, rating)
}

func (m *MockClient) RateTrack(_ context.Context, track models.GenericTrack, rating float64) (bool, error) {
	return m.rate(track, rating)
}

func (m *MockClient) SetTrackPlaylistOrder(_ context.Context, playlist models.GenericPlaylist, track models.GenericTrack, _ []models.GenericTrack, newOrder int) (bool, error) {
	return m.move(playlist.ID, track, newOrder)
}

// MockProvider is a test double for services.Provider that reads live state instead of a snapshot.
type MockProvider struct {
	*MockLibrary
	Service string
}

// NewMockProvider creates a provider named service.
func NewMockProvider(service string, lib *MockLibrary) *MockProvider {
	if lib == nil {
		lib = NewMockLibrary()
	}
	return &MockProvider{MockLibrary: lib, Service: service}
}

func (m *MockProvider) Name() string { return m.Service }

func (m *MockProvider) GetPlaylists(context.Context, string, string) ([]models.GenericPlaylist, error) {
	return m.playlists(), nil
}

func (m *MockProvider) GetPlaylistTracks(_ context.Context, _, playlistID, _ string) ([]models.GenericTrack, error) {
	return m.tracks(playlistID)
}

func (m *MockProvider) GetPlaylistTracksByName(_ context.Context, _, name, _ string) ([]models.GenericTrack, error) {
	return m.tracksByName(name), nil
}

func (m *MockProvider) CreatePlaylist(_ context.Context, _, name string) (models.GenericPlaylist, error) {
	return m.create(name), nil
}

func (m *MockProvider) SearchTrack(_ context.Context, _, artist, album, _ string) ([]models.GenericTrack, error) {
	return m.search(artist, album)
}

func (m *MockProvider) DeepSearchTrack(_ context.Context, _, artist, _, _, _ string) ([]models.GenericTrack, error) {
	return m.deepSearch(artist)
}

func (m *MockProvider) AddTrackToPlaylist(_ context.Context, _, playlistID string, track models.GenericTrack) (bool, error) {
	return m.add(playlistID, track)
}

func (m *MockProvider) LikeTrack(_ context.Context, _ string, track models.GenericTrack, rating float64) (bool, error) {
	return m.like(track, rating)
}

func (m *MockProvider) RateTrack(_ context.Context, _ string, track models.GenericTrack, rating float64) (bool, error) {
	return m.rate(track, rating)
}

func (m *MockProvider) SetTrackPlaylistOrder(_ context.Context, _ string, playlist models.GenericPlaylist, track models.GenericTrack, _ []models.GenericTrack, newOrder int) (bool, error) {
	return m.move(playlist.ID, track, newOrder)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
