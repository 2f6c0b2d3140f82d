package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format names a text rendering of a transcript.
type Format string

const (
	FormatJSON Format = "json"
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatLRC  Format = "lrc"
	FormatText Format = "txt"
)

// ParseFormat accepts a format name case-insensitively; "" means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatVTT, FormatSRT, FormatLRC, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown transcript format %q", s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// EncodeText renders just the segment text, one segment per line.
func EncodeText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// Render encodes segments in format f.
func Render(f Format, segments []Segment) ([]byte, error) {
	switch f {
	case FormatVTT:
		return []byte(EncodeVTT(segments)), nil
	case FormatSRT:
		return []byte(EncodeSRT(segments)), nil
	case FormatLRC:
		s, err := EncodeLRC(segments)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case FormatText:
		return []byte(EncodeText(segments)), nil
	case FormatJSON, "":
		if segments == nil {
			segments = []Segment{}
		}
		return json.Marshal(segments)
	default:
		return nil, fmt.Errorf("unknown transcript format %q", f)
	}
}
