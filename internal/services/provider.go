package services

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

// SnapshotProvider implements [Provider] over a snapshot store and a live [Client].
type SnapshotProvider struct {
	client Client
	store  repositories.SnapshotReader
	logger *log.Logger
}

// NewSnapshotProvider creates a provider reading playlists from store and sending everything else to client.
func NewSnapshotProvider(client Client, store repositories.SnapshotReader, logger *log.Logger) *SnapshotProvider {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SnapshotProvider{client: client, store: store, logger: shared.WithLogger(logger, "service", client.Name())}
}

func (p *SnapshotProvider) Name() string { return p.client.Name() }

func (p *SnapshotProvider) GetPlaylists(_ context.Context, _, snapshotID string) ([]models.GenericPlaylist, error) {
	return p.store.Playlists(snapshotID)
}

func (p *SnapshotProvider) GetPlaylistTracks(_ context.Context, _, playlistID, snapshotID string) ([]models.GenericTrack, error) {
	return p.store.PlaylistTracks(snapshotID, playlistID)
}

func (p *SnapshotProvider) GetPlaylistTracksByName(_ context.Context, _, name, snapshotID string) ([]models.GenericTrack, error) {
	return p.store.PlaylistTracksByName(snapshotID, name)
}

func (p *SnapshotProvider) CreatePlaylist(ctx context.Context, _, name string) (models.GenericPlaylist, error) {
	return p.client.CreatePlaylist(ctx, name)
}

func (p *SnapshotProvider) SearchTrack(ctx context.Context, _, artist, album, title string) ([]models.GenericTrack, error) {
	return p.client.SearchTrack(ctx, artist, album, title)
}

// DeepSearchTrack walks the remote catalog and adds the snapshot's own tracks by the same artist.
//
// Snapshot tracks are appended after remote results and deduplicated by catalog id. A backend without
// a deep search still answers from the snapshot.
func (p *SnapshotProvider) DeepSearchTrack(ctx context.Context, _, artist, album, title, snapshotID string) ([]models.GenericTrack, error) {
	remote, err := p.client.DeepSearchTrack(ctx, artist, album, title)
	if err != nil && !errors.Is(err, shared.ErrUnsupported) {
		return nil, err
	}

	if snapshotID == "" || artist == "" {
		return remote, nil
	}

	local, lerr := p.store.TracksByArtist(snapshotID, artist)
	if lerr != nil {
		p.logger.Debug("snapshot artist lookup failed", "artist", artist, "error", lerr)
		return remote, nil
	}

	seen := make(map[string]bool, len(remote))
	for _, t := range remote {
		seen[t.ID] = true
	}
	for _, t := range local {
		if !seen[t.ID] {
			seen[t.ID] = true
			remote = append(remote, t)
		}
	}
	return remote, nil
}

func (p *SnapshotProvider) AddTrackToPlaylist(ctx context.Context, _, playlistID string, track models.GenericTrack) (bool, error) {
	return p.client.AddTrackToPlaylist(ctx, playlistID, track)
}

func (p *SnapshotProvider) LikeTrack(ctx context.Context, _ string, track models.GenericTrack, rating float64) (bool, error) {
	return p.client.LikeTrack(ctx, track, rating)
}

func (p *SnapshotProvider) RateTrack(ctx context.Context, _ string, track models.GenericTrack, rating float64) (bool, error) {
	return p.client.RateTrack(ctx, track, rating)
}

func (p *SnapshotProvider) SetTrackPlaylistOrder(ctx context.Context, _ string, playlist models.GenericPlaylist, track models.GenericTrack, current []models.GenericTrack, newOrder int) (bool, error) {
	return p.client.SetTrackPlaylistOrder(ctx, playlist, track, current, newOrder)
}
