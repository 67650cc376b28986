// package formatter renders snapshot playlists and sync reports to CSV, Markdown, JSON and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	json "github.com/goccy/go-json"
)

// PlaylistExport is one snapshot playlist with its tracks in playlist order.
type PlaylistExport struct {
	Playlist models.GenericPlaylist `json:"playlist"`
	Tracks   []models.GenericTrack  `json:"tracks"`
}

type playlistMetadata struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CanAddTracks  bool   `json:"can_add_tracks"`
	CanSortTracks bool   `json:"can_sort_tracks"`
	TrackCount    int    `json:"track_count"`
}

var trackHeaders = []string{"Position", "ID", "Artist", "Album", "Album Artist", "Title", "Rating", "URI"}

// ExportToCSV converts a PlaylistExport to CSV with one row per track.
func ExportToCSV(export *PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(trackHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range export.Tracks {
		record := []string{
			strconv.Itoa(i + 1),
			track.ID,
			track.ArtistName,
			track.AlbumName,
			track.AlbumArtist,
			track.Title,
			formatRating(track.LikeRating),
			track.URI,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to a Markdown track list.
func ExportToMarkdown(export *PlaylistExport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name)
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Editable**: %s\n\n", yesNo(export.Playlist.CanAddTracks))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.AlbumName != "" {
			albumPart = fmt.Sprintf(" (%s)", track.AlbumName)
		}
		ratingPart := ""
		if track.LikeRating > 0 {
			ratingPart = fmt.Sprintf(" [%s/10]", formatRating(track.LikeRating))
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s%s\n", i+1, track.ArtistName, track.Title, albumPart, ratingPart)
	}

	return buf.Bytes()
}

// ExportToText converts a PlaylistExport to plain text
func ExportToText(export *PlaylistExport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, track)
	}

	return buf.Bytes()
}

// ToMetadataJSON generates the JSON metadata of a playlist, without its tracks.
func ToMetadataJSON(export *PlaylistExport) ([]byte, error) {
	return json.MarshalIndent(playlistMetadata{
		ID:            export.Playlist.ID,
		Name:          export.Playlist.Name,
		CanAddTracks:  export.Playlist.CanAddTracks,
		CanSortTracks: export.Playlist.CanSortTracks,
		TrackCount:    len(export.Tracks),
	}, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_tracks.csv and {base}_metadata.json.
func WriteCSVExport(export *PlaylistExport, base string) (*CSVExportResult, error) {
	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := base + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadata, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := base + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadata, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{TracksFile: tracksFile, MetadataFile: metadataFile}, nil
}

// WriteMarkdownExport writes {dir}/README.md, creating dir.
func WriteMarkdownExport(export *PlaylistExport, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, ExportToMarkdown(export), 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return path, nil
}

// WriteTextExport writes a playlist as plain text.
func WriteTextExport(export *PlaylistExport, path string) error {
	if err := os.WriteFile(path, ExportToText(export), 0644); err != nil {
		return fmt.Errorf("failed to write text file: %w", err)
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}

// SafeFilename replaces characters that are not portable in file names.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#':
			return '_'
		}
		return r
	}, name)
}

func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
