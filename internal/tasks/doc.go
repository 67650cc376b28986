// Package tasks orchestrates pulls, syncs and exports with real-time progress reporting.
//
// # Pull
//
// [PullEngine.Pull] captures every playlist of one backend account into a new snapshot:
//   - upserts the server row and creates an incomplete snapshot
//   - applies the retention policy to the server's snapshots before writing anything
//   - fetches and stores each playlist (and the liked tracks pseudo playlist when named)
//   - marks the snapshot complete and stamps the server's last sync time
//
// # Sync
//
// [SyncEngine.Run] copies playlists between two providers. Both sides are read from their
// latest complete snapshot. Each source track is resolved through tiers of increasing cost,
// stopping at the first accepted match:
//
//  1. the destination playlist as captured by its snapshot (skipped with ForceAddTrack)
//  2. the backend's narrow search with album, then without album when enabled
//  3. the artist catalog walk with album, then without album when enabled
//
// Found tracks are rated, then liked (like playlist) or added. Once every track task of a
// playlist finished, the destination order is reconciled when every source track was matched.
//
// Playlists and tracks run through [parallel.RunEach]; one failing item never stops its siblings.
// Only configuration errors abort a run.
//
// # Export
//
// [BulkExport] writes the playlists of a snapshot to CSV, Markdown, text or JSON files with a manifest.
//
// # Progress Reporting
//
// All operations accept an optional channel of [ProgressUpdate]. Sends never block; updates are
// dropped when the channel is full.
package tasks
