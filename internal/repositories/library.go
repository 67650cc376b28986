package repositories

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const trackColumns = `t.id, t.playlist_item_id, t.artist_name, t.album_name, t.album_artist, t.title, t.like_rating, t.uri, t.sort_order`

// LibraryRepository stores the playlists and tracks captured by a snapshot.
//
// Every read is pinned to one snapshot id. It satisfies [SnapshotReader].
type LibraryRepository struct {
	db *sql.DB
}

// SnapshotReader reads the normalized library of one snapshot.
type SnapshotReader interface {
	Playlists(snapshotID string) ([]models.GenericPlaylist, error)
	PlaylistTracks(snapshotID, playlistID string) ([]models.GenericTrack, error)
	PlaylistTracksByName(snapshotID, name string) ([]models.GenericTrack, error)
	TracksByArtist(snapshotID, artist string) ([]models.GenericTrack, error)
}

// NewLibraryRepository creates a new LibraryRepository with the given database connection
func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// SavePlaylist writes a playlist and its tracks into a snapshot in one transaction.
//
// Tracks are stored with sort orders 1..N in the given order; an existing copy of the playlist in the
// snapshot is replaced.
func (r *LibraryRepository) SavePlaylist(snapshotID string, playlist models.GenericPlaylist, tracks []models.GenericTrack) error {
	return inTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM snapshot_playlists WHERE snapshot_id = ? AND id = ?`, snapshotID, playlist.ID); err != nil {
			return fmt.Errorf("failed to replace playlist: %w", err)
		}

		query := `
			INSERT INTO snapshot_playlists (snapshot_id, id, name, can_add_tracks, can_sort_tracks)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := tx.Exec(query, snapshotID, playlist.ID, playlist.Name, playlist.CanAddTracks, playlist.CanSortTracks); err != nil {
			return fmt.Errorf("failed to insert playlist: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO snapshot_tracks (
				snapshot_id, playlist_id, sort_order, id, playlist_item_id,
				artist_name, album_name, album_artist, title, like_rating, uri
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range tracks {
			_, err := stmt.Exec(
				snapshotID,
				playlist.ID,
				i+1,
				t.ID,
				t.PlaylistItemID,
				t.ArtistName,
				t.AlbumName,
				t.AlbumArtist,
				t.Title,
				t.LikeRating,
				t.URI,
			)
			if err != nil {
				return fmt.Errorf("failed to insert track %d of %s: %w", i+1, playlist.Name, err)
			}
		}
		return nil
	})
}

// Playlists lists the playlists of a snapshot ordered by name.
func (r *LibraryRepository) Playlists(snapshotID string) ([]models.GenericPlaylist, error) {
	rows, err := r.db.Query(`
		SELECT id, name, can_add_tracks, can_sort_tracks
		FROM snapshot_playlists
		WHERE snapshot_id = ?
		ORDER BY name, id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.GenericPlaylist
	for rows.Next() {
		var p models.GenericPlaylist
		if err := rows.Scan(&p.ID, &p.Name, &p.CanAddTracks, &p.CanSortTracks); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// PlaylistTracks lists the tracks of a playlist in ascending sort order.
func (r *LibraryRepository) PlaylistTracks(snapshotID, playlistID string) ([]models.GenericTrack, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM snapshot_tracks t
		WHERE t.snapshot_id = ? AND t.playlist_id = ?
		ORDER BY t.sort_order
	`
	return r.tracks(query, snapshotID, playlistID)
}

// PlaylistTracksByName lists the tracks of the first playlist called name, in ascending sort order.
//
// A missing playlist yields no tracks.
func (r *LibraryRepository) PlaylistTracksByName(snapshotID, name string) ([]models.GenericTrack, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM snapshot_tracks t
		WHERE t.snapshot_id = ? AND t.playlist_id = (
			SELECT p.id FROM snapshot_playlists p
			WHERE p.snapshot_id = ? AND p.name = ?
			ORDER BY p.id
			LIMIT 1
		)
		ORDER BY t.sort_order
	`
	return r.tracks(query, snapshotID, snapshotID, name)
}

// TracksByArtist lists distinct catalog tracks of a snapshot whose artist contains artist, case-insensitively.
func (r *LibraryRepository) TracksByArtist(snapshotID, artist string) ([]models.GenericTrack, error) {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return nil, fmt.Errorf("%w: artist is required", shared.ErrInvalidInput)
	}

	query := `
		SELECT ` + trackColumns + `
		FROM snapshot_tracks t
		WHERE t.snapshot_id = ? AND instr(lower(t.artist_name), lower(?)) > 0
		GROUP BY t.id
		ORDER BY t.artist_name, t.album_name, t.title
	`
	tracks, err := r.tracks(query, snapshotID, artist)
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		tracks[i].PlaylistSortOrder = 0
		tracks[i].PlaylistItemID = ""
	}
	return tracks, nil
}

// CountTracks returns the number of track rows in a snapshot.
func (r *LibraryRepository) CountTracks(snapshotID string) (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM snapshot_tracks WHERE snapshot_id = ?`, snapshotID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

func (r *LibraryRepository) tracks(query string, args ...any) ([]models.GenericTrack, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.GenericTrack
	for rows.Next() {
		var t models.GenericTrack
		err := rows.Scan(&t.ID, &t.PlaylistItemID, &t.ArtistName, &t.AlbumName, &t.AlbumArtist, &t.Title, &t.LikeRating, &t.URI, &t.PlaylistSortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
