// package services defines the provider boundary used by the sync engine and the backend clients behind it
package services

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
)

// Provider is what the sync engine sees of one side of a sync.
//
// Reads go through a snapshot id; writes and searches reach the live backend.
// account is the server url or owner id the provider was built for.
type Provider interface {
	// Name returns the service name (e.g. "plex").
	Name() string

	GetPlaylists(ctx context.Context, account, snapshotID string) ([]models.GenericPlaylist, error)

	// GetPlaylistTracks returns the tracks of a playlist in ascending sort order.
	GetPlaylistTracks(ctx context.Context, account, playlistID, snapshotID string) ([]models.GenericTrack, error)

	GetPlaylistTracksByName(ctx context.Context, account, name, snapshotID string) ([]models.GenericTrack, error)

	CreatePlaylist(ctx context.Context, account, name string) (models.GenericPlaylist, error)

	// SearchTrack runs the backend's narrow search. An empty album searches without it.
	SearchTrack(ctx context.Context, account, artist, album, title string) ([]models.GenericTrack, error)

	// DeepSearchTrack walks the catalog through the artist, which is slower but finds more.
	DeepSearchTrack(ctx context.Context, account, artist, album, title, snapshotID string) ([]models.GenericTrack, error)

	AddTrackToPlaylist(ctx context.Context, account, playlistID string, track models.GenericTrack) (bool, error)

	// LikeTrack marks a track as liked/favorite. rating is on the 0..[models.MaxRating] scale.
	LikeTrack(ctx context.Context, account string, track models.GenericTrack, rating float64) (bool, error)

	// RateTrack sets the rating of a track. rating is on the 0..[models.MaxRating] scale.
	RateTrack(ctx context.Context, account string, track models.GenericTrack, rating float64) (bool, error)

	// SetTrackPlaylistOrder moves one entry to newOrder (1-based). false means reordering is not supported.
	SetTrackPlaylistOrder(ctx context.Context, account string, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error)
}

// Client talks to one account of a live backend. It serves both pulls and the remote half of a [Provider].
type Client interface {
	Name() string

	// Account resolves the server url or owner id this client is bound to.
	Account(ctx context.Context) (string, error)

	FetchPlaylists(ctx context.Context) ([]models.GenericPlaylist, error)
	FetchPlaylistTracks(ctx context.Context, playlistID string) ([]models.GenericTrack, error)
	FetchLikedTracks(ctx context.Context) ([]models.GenericTrack, error)

	CreatePlaylist(ctx context.Context, name string) (models.GenericPlaylist, error)
	SearchTrack(ctx context.Context, artist, album, title string) ([]models.GenericTrack, error)
	DeepSearchTrack(ctx context.Context, artist, album, title string) ([]models.GenericTrack, error)
	AddTrackToPlaylist(ctx context.Context, playlistID string, track models.GenericTrack) (bool, error)
	LikeTrack(ctx context.Context, track models.GenericTrack, rating float64) (bool, error)
	RateTrack(ctx context.Context, track models.GenericTrack, rating float64) (bool, error)
	SetTrackPlaylistOrder(ctx context.Context, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error)
}
