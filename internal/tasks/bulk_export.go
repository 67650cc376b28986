package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/parallel"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

// BulkExportOpts contains configuration for snapshot exports.
type BulkExportOpts struct {
	Format     string // csv, markdown, txt or json (default)
	OutputDir  string // defaults to snapshot_{sequence}_{epoch}
	NumWorkers int    // concurrent playlist writers (default: 4)
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BulkExportResult summarizes a snapshot export. It is also written as the manifest.
type BulkExportResult struct {
	SnapshotID        string                 `json:"snapshot_id"`
	Service           string                 `json:"service"`
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	OutputDirectory   string                 `json:"output_directory"`
	ManifestPath      string                 `json:"-"`
	Results           []PlaylistExportResult `json:"results"`
}

// BulkExport writes every playlist of a snapshot to files, one worker per playlist, then writes a manifest.
//
// A playlist that fails to export is recorded in the manifest; the others are still written.
func BulkExport(
	ctx context.Context,
	reader repositories.SnapshotReader,
	snapshot *models.Snapshot,
	opts BulkExportOpts,
	prog chan<- ProgressUpdate,
	logger *log.Logger,
) (*BulkExportResult, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("snapshot_%d_%d", snapshot.Sequence, time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}

	playlists, err := reader.Playlists(snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot playlists: %w", err)
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		SnapshotID:      snapshot.ID,
		Service:         snapshot.ServiceName,
		TotalPlaylists:  len(playlists),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, len(playlists)),
	}

	jobs := make([]int, len(playlists))
	for i := range jobs {
		jobs[i] = i
	}

	// Track reads share the database connection, so they are serialized.
	var readMu sync.Mutex
	var completed atomic.Int64
	parallel.RunEach(ctx, logger, jobs, opts.NumWorkers, func(ctx context.Context, i int) error {
		p := playlists[i]
		res := &result.Results[i]
		res.PlaylistID, res.PlaylistName = p.ID, p.Name

		readMu.Lock()
		tracks, err := reader.PlaylistTracks(snapshot.ID, p.ID)
		readMu.Unlock()
		if err == nil {
			res.Files, err = exportPlaylist(&formatter.PlaylistExport{Playlist: p, Tracks: tracks}, opts)
		}

		step := int(completed.Add(1))
		if err != nil {
			res.Error = err.Error()
			sendProgress(prog, exportFailedUpdate(step, len(jobs), p.Name, err))
			return err
		}
		res.Success = true
		sendProgress(prog, exportCompletedUpdate(step, len(jobs), p.Name, len(res.Files)))
		return nil
	})

	for _, r := range result.Results {
		if r.Success {
			result.SuccessfulExports++
		} else {
			result.FailedExports++
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteJSON(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportPlaylist writes one playlist in the requested format and returns the files created.
func exportPlaylist(export *formatter.PlaylistExport, opts BulkExportOpts) ([]string, error) {
	base := formatter.SafeFilename(export.Playlist.Name) + "_" + formatter.SafeFilename(export.Playlist.ID)

	switch opts.Format {
	case "csv":
		res, err := formatter.WriteCSVExport(export, filepath.Join(opts.OutputDir, base))
		if err != nil {
			return nil, fmt.Errorf("CSV export failed: %w", err)
		}
		return []string{res.TracksFile, res.MetadataFile}, nil
	case "markdown":
		path, err := formatter.WriteMarkdownExport(export, filepath.Join(opts.OutputDir, base))
		if err != nil {
			return nil, fmt.Errorf("markdown export failed: %w", err)
		}
		return []string{path}, nil
	case "txt":
		path := filepath.Join(opts.OutputDir, base+".txt")
		if err := formatter.WriteTextExport(export, path); err != nil {
			return nil, fmt.Errorf("text export failed: %w", err)
		}
		return []string{path}, nil
	default:
		path := filepath.Join(opts.OutputDir, base+".json")
		if err := formatter.WriteJSON(export, path); err != nil {
			return nil, fmt.Errorf("JSON export failed: %w", err)
		}
		return []string{path}, nil
	}
}
