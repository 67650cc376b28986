// package models defines the normalized playlist data shared by every music server backend
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Service names understood by the provider registry.
const (
	ServiceSubsonic  = "subsonic"
	ServiceNavidrome = "navidrome"
	ServicePlex      = "plex"
	ServiceJellyfin  = "jellyfin"
	ServiceSpotify   = "spotify"
	ServiceTidal     = "tidal"
)

// MaxRating is the top of the normalized rating scale carried by [GenericTrack.LikeRating].
const MaxRating = 10.0

// Server identifies one account on one backend (a server URL or a streaming owner id).
type Server struct {
	ID          string
	ServiceName string
	URL         string
	LastSyncAt  *time.Time
	CreatedAt   time.Time
}

// Snapshot is a point-in-time capture of every playlist of a [Server].
//
// A snapshot starts incomplete and is flipped to complete only after its pull finished.
type Snapshot struct {
	ID          string
	Sequence    int
	ServerID    string
	ServiceName string
	CreatedAt   time.Time
	IsComplete  bool
}

// GenericPlaylist is a backend-neutral playlist.
type GenericPlaylist struct {
	ID            string
	Name          string
	CanAddTracks  bool // false for smart playlists and playlists owned by someone else
	CanSortTracks bool // gates track order reconciliation
	TrackCount    int  // size reported by the backend listing, 0 when unknown
}

// GenericTrack is a backend-neutral track, optionally positioned inside a playlist.
type GenericTrack struct {
	ID                string // catalog identity
	ArtistName        string
	AlbumName         string
	AlbumArtist       string
	Title             string
	LikeRating        float64 // 0..[MaxRating]
	URI               string
	PlaylistSortOrder int    // 1-based position, 0 when not in a playlist
	PlaylistItemID    string // entry identity inside a playlist, when the backend has one
}

// EntryKey returns the identity of the playlist entry, falling back to the catalog id.
func (t GenericTrack) EntryKey() string {
	if t.PlaylistItemID != "" {
		return t.PlaylistItemID
	}
	return t.ID
}

// String renders "artist - album - title" for logs and reports.
func (t GenericTrack) String() string {
	return fmt.Sprintf("%s - %s - %s", t.ArtistName, t.AlbumName, t.Title)
}

// UpdatePlaylistTrackOrder pairs a source track with the destination entry that matched it.
type UpdatePlaylistTrackOrder struct {
	ToPlaylist           GenericPlaylist
	FromTrack            GenericTrack
	ToTrack              GenericTrack
	NewPlaylistSortOrder int
}

// RetentionPolicy sets how many snapshots survive per time bucket.
type RetentionPolicy struct {
	KeepHourly  int `toml:"keep_hourly"`
	KeepDaily   int `toml:"keep_daily"`
	KeepWeekly  int `toml:"keep_weekly"`
	KeepMonthly int `toml:"keep_monthly"`
	KeepYearly  int `toml:"keep_yearly"`
}

// DefaultRetentionPolicy returns the policy applied by pull commands when no flag overrides it.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{KeepHourly: 24, KeepDaily: 7, KeepWeekly: 4, KeepMonthly: 12, KeepYearly: 10}
}

// Validate rejects negative counts.
func (p RetentionPolicy) Validate() error {
	for name, v := range map[string]int{
		"keep_hourly":  p.KeepHourly,
		"keep_daily":   p.KeepDaily,
		"keep_weekly":  p.KeepWeekly,
		"keep_monthly": p.KeepMonthly,
		"keep_yearly":  p.KeepYearly,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// SyncConfiguration drives one sync run from one service account to another.
type SyncConfiguration struct {
	FromService string
	FromName    string // server url or owner id of the source account
	ToService   string
	ToName      string // server url or owner id of the destination account

	FromPlaylistName string
	ToPlaylistName   string
	ToPlaylistPrefix string

	FromSkipPlaylists       []string
	FromSkipPrefixPlaylists []string
	ToSkipPlaylists         []string
	ToSkipPrefixPlaylists   []string

	FromLikePlaylistName string
	ToLikePlaylistName   string

	MatchPercentage          int
	ForceAddTrack            bool
	DeepSearchThroughArtist  bool
	SecondSearchWithoutAlbum bool
	SyncTrackOrder           bool

	PlaylistThreads int
	TrackThreads    int
}

// WithDefaults fills zero-valued tuning knobs.
func (c SyncConfiguration) WithDefaults() SyncConfiguration {
	if c.MatchPercentage <= 0 {
		c.MatchPercentage = 90
	}
	if c.PlaylistThreads < 1 {
		c.PlaylistThreads = 1
	}
	if c.TrackThreads < 1 {
		c.TrackThreads = 1
	}
	return c
}

// Validate checks the fields a sync run cannot start without.
func (c SyncConfiguration) Validate() error {
	switch {
	case c.FromService == "":
		return fmt.Errorf("from service is required")
	case c.ToService == "":
		return fmt.Errorf("to service is required")
	case c.FromName == "":
		return fmt.Errorf("from name is required")
	case c.ToName == "":
		return fmt.Errorf("to name is required")
	case c.MatchPercentage < 0 || c.MatchPercentage > 100:
		return fmt.Errorf("match percentage must be within 0..100, got %d", c.MatchPercentage)
	}
	return nil
}

// IsLikePlaylist reports whether a source playlist name is the configured like playlist.
func (c SyncConfiguration) IsLikePlaylist(name string) bool {
	return c.FromLikePlaylistName != "" && name == c.FromLikePlaylistName
}

// SkipsSource reports whether a source playlist is excluded by the skip list or a skip prefix.
func (c SyncConfiguration) SkipsSource(name string) bool {
	return skips(name, c.FromSkipPlaylists, c.FromSkipPrefixPlaylists)
}

// SkipsTarget reports whether a destination playlist is excluded by the skip list or a skip prefix.
func (c SyncConfiguration) SkipsTarget(name string) bool {
	return skips(name, c.ToSkipPlaylists, c.ToSkipPrefixPlaylists)
}

// TargetName is the destination playlist name for a source playlist: ToPlaylistPrefix + the source name.
// ToPlaylistName never renames; it only narrows which destination playlists are matched.
func (c SyncConfiguration) TargetName(sourceName string) string {
	return c.ToPlaylistPrefix + sourceName
}

func skips(name string, names, prefixes []string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// LikedPlaylistID derives the stable id of the pseudo playlist holding liked tracks.
func LikedPlaylistID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "#" + hex.EncodeToString(sum[:])
}
