// package matcher decides whether a candidate track is the same recording as a target track.
//
// Candidates are scored on artist (partial ratio), album (ratio, or a perfect score when the album is ignored)
// and title (ratio), all on lowercased text. Candidates are ranked by (artist, album, title) descending and
// the first one that clears the threshold on every score and whose digits agree with the target wins.
package matcher

import (
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
)

// Score holds the per-field similarity of a candidate to the target.
type Score struct {
	Artist int
	Album  int
	Title  int
}

// Scored pairs a candidate with its [Score].
type Scored struct {
	Track models.GenericTrack
	Score Score
}

// ScoreTrack computes the similarity of candidate to target.
func ScoreTrack(candidate, target models.GenericTrack, ignoreAlbum bool) Score {
	s := Score{
		Artist: PartialRatio(strings.ToLower(candidate.ArtistName), strings.ToLower(target.ArtistName)),
		Album:  100,
		Title:  Ratio(strings.ToLower(candidate.Title), strings.ToLower(target.Title)),
	}
	if !ignoreAlbum {
		s.Album = Ratio(strings.ToLower(candidate.AlbumName), strings.ToLower(target.AlbumName))
	}
	return s
}

// Rank scores every candidate and orders them by artist, then album, then title score, descending.
//
// The sort is stable so equal scores keep the candidate order.
func Rank(candidates []models.GenericTrack, target models.GenericTrack, ignoreAlbum bool) []Scored {
	ranked := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, Scored{Track: c, Score: ScoreTrack(c, target, ignoreAlbum)})
	}

	slices.SortStableFunc(ranked, func(a, b Scored) int {
		if a.Score.Artist != b.Score.Artist {
			return b.Score.Artist - a.Score.Artist
		}
		if a.Score.Album != b.Score.Album {
			return b.Score.Album - a.Score.Album
		}
		return b.Score.Title - a.Score.Title
	})
	return ranked
}

// Accepts reports whether a scored candidate clears the threshold and the digit guard.
func Accepts(s Scored, target models.GenericTrack, ignoreAlbum bool, threshold int) bool {
	if s.Score.Artist < threshold || s.Score.Album < threshold || s.Score.Title < threshold {
		return false
	}
	if !NumbersMatch(s.Track.ArtistName, target.ArtistName) || !NumbersMatch(s.Track.Title, target.Title) {
		return false
	}
	return ignoreAlbum || NumbersMatch(s.Track.AlbumName, target.AlbumName)
}

// FindMatch returns the best candidate for target, or false when no candidate is acceptable.
//
// It is pure and deterministic: the same inputs always yield the same answer.
func FindMatch(candidates []models.GenericTrack, target models.GenericTrack, ignoreAlbum bool, threshold int) (models.GenericTrack, bool) {
	for _, s := range Rank(candidates, target, ignoreAlbum) {
		if Accepts(s, target, ignoreAlbum, threshold) {
			return s.Track, true
		}
	}
	return models.GenericTrack{}, false
}
