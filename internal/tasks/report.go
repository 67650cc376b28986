package tasks

import "github.com/desertthunder/plsync/internal/formatter"

// ReportRows flattens a sync result into one report row per source track.
// Skipped playlists get a single row carrying the skip reason.
func (r *SyncResult) ReportRows() []formatter.ReportRow {
	var rows []formatter.ReportRow
	for _, p := range r.Playlists {
		if p.Skipped || p.Err != nil {
			row := formatter.ReportRow{Playlist: p.Source.Name, Target: p.Target.Name, Outcome: "skipped", Error: p.SkipReason}
			if p.Err != nil {
				row.Outcome, row.Error = TrackFailed.String(), p.Err.Error()
			}
			rows = append(rows, row)
			continue
		}

		for _, t := range p.Tracks {
			row := formatter.ReportRow{
				Playlist:   p.Source.Name,
				Target:     p.Target.Name,
				Outcome:    t.Outcome.String(),
				Track:      t.Source.String(),
				DeepSearch: t.DeepSearch,
				Rated:      t.Rated,
			}
			if t.Match.ID != "" {
				row.Match = t.Match.String()
			}
			if t.Err != nil {
				row.Error = t.Err.Error()
			}
			rows = append(rows, row)
		}
	}
	return rows
}
