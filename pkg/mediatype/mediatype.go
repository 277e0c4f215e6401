// Package mediatype guesses content types from file names. Media types the
// system mime tables may not know are registered at init.
package mediatype

import (
	"mime"
	"path/filepath"
	"strings"
)

// Default is used when nothing better can be guessed.
const Default = "video/mp4"

var extra = map[string]string{
	".mkv":  "video/x-matroska",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ts":   "video/mp2t",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".3gp":  "video/3gpp",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".srt":  "application/x-subrip",
	".vtt":  "text/vtt",
	".ass":  "text/x-ssa",
}

func init() {
	for ext, typ := range extra {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// Guess returns the content type for name, or Default.
func Guess(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Default
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return Default
}

// IsSubtitle reports whether name looks like a subtitle file.
func IsSubtitle(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".srt", ".vtt", ".ass", ".ssa", ".sub":
		return true
	}
	return false
}

// SubtitleName returns the companion subtitle name for a media file:
// "Movie.2020.mkv" → "Movie.2020.srt".
func SubtitleName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + ".srt"
}
