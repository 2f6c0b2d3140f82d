package transcode

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// MediaInfo is what could be identified about an input file from its header.
type MediaInfo struct {
	Format   string `json:"format,omitempty"`    // tag container, e.g. "ID3v2.3", "MP4"
	FileType string `json:"file_type,omitempty"` // e.g. "MP3", "M4A", "FLAC"
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
}

// Probe sniffs the container of path. Files dhowden/tag does not recognise
// (WAV, WebM, raw recordings) return tag.ErrNoTagsFound; ffmpeg can still
// decode most of them, so callers treat that as informational.
func Probe(path string) (MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	format, fileType, err := tag.Identify(f)
	if err != nil {
		return MediaInfo{}, err
	}
	info := MediaInfo{Format: string(format), FileType: string(fileType)}

	if _, err := f.Seek(0, 0); err != nil {
		return info, nil
	}
	if m, err := tag.ReadFrom(f); err == nil {
		info.Title = m.Title()
		info.Artist = m.Artist()
	}
	return info, nil
}
