package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReportRow is one source track of a sync report.
type ReportRow struct {
	Playlist   string `json:"playlist"`
	Target     string `json:"target"`
	Outcome    string `json:"outcome"`
	Track      string `json:"track"`
	Match      string `json:"match,omitempty"`
	DeepSearch bool   `json:"deep_search,omitempty"`
	Rated      bool   `json:"rated,omitempty"`
	Error      string `json:"error,omitempty"`
}

var reportHeaders = []string{"Playlist", "Target", "Outcome", "Track", "Match", "Deep Search", "Rated", "Error"}

// ReportToCSV renders report rows as CSV.
func ReportToCSV(rows []ReportRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(reportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Playlist, r.Target, r.Outcome, r.Track, r.Match, strconv.FormatBool(r.DeepSearch), strconv.FormatBool(r.Rated), r.Error}
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

// ReportToText renders report rows grouped by playlist.
func ReportToText(rows []ReportRow) []byte {
	var buf bytes.Buffer

	current := ""
	for i, r := range rows {
		if i == 0 || r.Playlist != current {
			if i > 0 {
				buf.WriteString("\n")
			}
			current = r.Playlist
			fmt.Fprintf(&buf, "%s -> %s\n", r.Playlist, r.Target)
		}

		line := fmt.Sprintf("  [%s] %s", r.Outcome, r.Track)
		if r.Match != "" && r.Match != r.Track {
			line += " => " + r.Match
		}
		if r.DeepSearch {
			line += " (deep search)"
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		buf.WriteString(line + "\n")
	}
	return buf.Bytes()
}

// WriteReport writes rows to path, picking the format from its extension: .csv, .json, or text otherwise.
func WriteReport(path string, rows []ReportRow) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err = ReportToCSV(rows)
	case ".json":
		return WriteJSON(rows, path)
	default:
		data = ReportToText(rows)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
