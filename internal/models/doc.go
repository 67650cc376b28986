// Package models defines the backend-neutral entities shared by the pull and sync pipelines.
//
// Every backend (Subsonic, Navidrome, Plex, Jellyfin, Spotify, Tidal) is normalized into:
//   - [Server] : one account on one backend
//   - [Snapshot] : a versioned capture of a server's playlists
//   - [GenericPlaylist] : playlist metadata with write/sort capabilities
//   - [GenericTrack] : track metadata, catalog id, entry id and position
//
// [SyncConfiguration] carries the matching thresholds, filters and parallelism of one sync run.
// [RetentionPolicy] carries the per-bucket counts of the snapshot pruning rules.
//
// Ratings are normalized to a 0-10 scale by the backend that read them, so a destination
// only has to convert from one scale.
package models
