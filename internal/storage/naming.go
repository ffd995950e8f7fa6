package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"matchreel/internal/assembly"
	"matchreel/internal/textutil"
)

// seasonStartMonth is the first month of a season. Matches from January
// through July belong to the season that started the previous year.
const seasonStartMonth = time.August

// Season returns the season label for a match date, e.g. "2024-25".
func Season(date time.Time) string {
	start := date.Year()
	if date.Month() < seasonStartMonth {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// FolderPath returns the host folder clips of kind are filed under.
func FolderPath(club, season string, kind assembly.ClipKind) string {
	return fmt.Sprintf("%s/%s/%s Highlights", clubName(club), season, kindLabel(kind))
}

// PlaylistTitle names the playlist collecting a club's clips for a season.
func PlaylistTitle(club, season string, kind assembly.ClipKind) string {
	return fmt.Sprintf("%s %s %s Highlights", clubName(club), season, kindLabel(kind))
}

// ArchiveKey builds the object key for a clip in the temporary archive.
// Keys are slugged so they are safe for any S3-compatible backend.
func ArchiveKey(prefix, club, season string, clip assembly.Clip) string {
	name := path.Base(strings.ReplaceAll(clip.Path, "\\", "/"))
	ext := path.Ext(name)
	base := textutil.Slug(strings.TrimSuffix(name, ext))
	if ext == "" {
		ext = ".mp4"
	}
	parts := []string{}
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, textutil.Slug(club), season, string(kindOrTeam(clip.Kind)), base+strings.ToLower(ext))
	return strings.Join(parts, "/")
}

func clubName(club string) string {
	club = strings.TrimSpace(club)
	if club == "" {
		return "Unknown Club"
	}
	return textutil.TitleCase(club)
}

func kindOrTeam(kind assembly.ClipKind) assembly.ClipKind {
	if kind == assembly.KindPlayer {
		return kind
	}
	return assembly.KindTeam
}

func kindLabel(kind assembly.ClipKind) string {
	if kindOrTeam(kind) == assembly.KindPlayer {
		return "Player"
	}
	return "Team"
}
