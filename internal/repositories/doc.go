// Package repositories implements SQLite persistence for servers and their playlist snapshots.
//
// Key Implementations:
//   - [ServerRepository] : accounts on a backend, keyed by service name and url or owner id
//   - [SnapshotRepository] : snapshot lifecycle, completeness and deletion
//   - [LibraryRepository] : playlists and their ordered tracks, always read through a snapshot id
//
// Sequence numbers give snapshots a stable, human-readable order independent of UUIDs and timestamps.
// [NextSequence] bumps the counter in a <table>_sequence row, inside the transaction that inserts the row.
package repositories
