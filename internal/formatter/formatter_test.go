package formatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	th "github.com/desertthunder/plsync/internal/testing"
)

func testExport() *PlaylistExport {
	return &PlaylistExport{
		Playlist: models.GenericPlaylist{ID: "pl1", Name: "Road Trip", CanAddTracks: true},
		Tracks: []models.GenericTrack{
			{ID: "track1", ArtistName: "Artist One", AlbumName: "Album One", Title: "Song One", LikeRating: 8, URI: "uri:1"},
			{ID: "track2", ArtistName: "Artist Two", Title: "Song, Two"},
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testExport())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "Position,ID,Artist,Album,Album Artist,Title,Rating,URI\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "1,track1,Artist One,Album One,,Song One,8,uri:1") {
			t.Errorf("CSV missing track1 row, got: %s", output)
		}
		if !strings.Contains(output, `"Song, Two"`) {
			t.Errorf("CSV should quote fields with commas, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		output := string(ExportToMarkdown(testExport()))

		for _, want := range []string{"# Road Trip", "**Tracks**: 2", "**Editable**: yes", "1. Artist One - Song One (Album One) [8/10]", "2. Artist Two - Song, Two\n"} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		output := string(ExportToText(testExport()))

		if !strings.Contains(output, "Playlist: Road Trip") {
			t.Errorf("Text missing playlist name")
		}
		if !strings.Contains(output, "1. Artist One - Album One - Song One") {
			t.Errorf("Text missing track line, got:\n%s", output)
		}
	})

	t.Run("ToMetadataJSON", func(t *testing.T) {
		data, err := ToMetadataJSON(testExport())
		if err != nil {
			t.Fatalf("ToMetadataJSON failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, `"track_count": 2`) || !strings.Contains(output, `"name": "Road Trip"`) {
			t.Errorf("Metadata JSON missing expected fields, got: %s", output)
		}
		if strings.Contains(output, "Song One") {
			t.Errorf("Metadata JSON should not contain tracks")
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("WriteCSVExport", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "pl1")

		result, err := WriteCSVExport(testExport(), base)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}
		if result.TracksFile != base+"_tracks.csv" || result.MetadataFile != base+"_metadata.json" {
			t.Errorf("unexpected files %+v", result)
		}

		th.AssertFileExists(t, result.TracksFile)
		th.AssertFileExists(t, result.MetadataFile)
		if content := th.MustReadFile(t, result.TracksFile); !strings.Contains(content, "Song One") {
			t.Errorf("CSV missing track data")
		}
	})

	t.Run("WriteMarkdownExport creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "pl1")

		path, err := WriteMarkdownExport(testExport(), dir)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}
		if path != filepath.Join(dir, "README.md") {
			t.Errorf("unexpected path %s", path)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, "# Road Trip") {
			t.Errorf("Markdown missing title")
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pl1.txt")
		if err := WriteTextExport(testExport(), path); err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		th.AssertFileExists(t, path)
	})

	t.Run("WriteTextExport to a missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "pl1.txt")
		if err := WriteTextExport(testExport(), path); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("WriteJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pl1.json")
		if err := WriteJSON(testExport(), path); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
		if content := th.MustReadFile(t, path); !strings.Contains(content, `"playlist"`) {
			t.Errorf("JSON missing playlist key, got %s", content)
		}
	})
}

func TestSafeFilename(t *testing.T) {
	tc := []struct {
		in, want string
	}{
		{"Road Trip", "Road Trip"},
		{"AC/DC: Live?", "AC_DC_ Live_"},
		{"  ", "untitled"},
		{"#liked", "_liked"},
	}
	for _, tt := range tc {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReports(t *testing.T) {
	rows := []ReportRow{
		{Playlist: "Mix", Target: "sync_Mix", Outcome: "added", Track: "A - B - C", Match: "A - B - C (Remaster)", DeepSearch: true},
		{Playlist: "Mix", Target: "sync_Mix", Outcome: "not found", Track: "D - E - F"},
		{Playlist: "Chill", Target: "sync_Chill", Outcome: "failed", Track: "G - H - I", Error: "service unavailable"},
	}

	t.Run("text groups by playlist", func(t *testing.T) {
		output := string(ReportToText(rows))
		if strings.Count(output, "Mix -> sync_Mix") != 1 {
			t.Errorf("expected one Mix header, got:\n%s", output)
		}
		for _, want := range []string{"[added] A - B - C => A - B - C (Remaster) (deep search)", "[not found] D - E - F", "[failed] G - H - I: service unavailable"} {
			if !strings.Contains(output, want) {
				t.Errorf("report missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("WriteReport picks the format from the extension", func(t *testing.T) {
		dir := t.TempDir()
		tc := []struct {
			file, want string
		}{
			{"report.csv", "Playlist,Target,Outcome,Track,Match,Deep Search,Rated,Error"},
			{"report.json", `"outcome": "not found"`},
			{"report.txt", "Chill -> sync_Chill"},
		}
		for _, tt := range tc {
			t.Run(tt.file, func(t *testing.T) {
				path := filepath.Join(dir, tt.file)
				if err := WriteReport(path, rows); err != nil {
					t.Fatalf("WriteReport failed: %v", err)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read report: %v", err)
				}
				if !strings.Contains(string(data), tt.want) {
					t.Errorf("expected %q in report, got:\n%s", tt.want, data)
				}
			})
		}
	})
}
