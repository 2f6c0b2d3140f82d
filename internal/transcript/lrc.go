package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// LRCTimestamp converts HH:MM:SS.mmm into the lyric MM:SS.CC form. LRC minutes
// are two digits, so the total minute count wraps at 100.
func LRCTimestamp(ts string) (string, error) {
	if !ValidTimestamp(ts) {
		return "", fmt.Errorf("invalid timestamp %q", ts)
	}
	hh, _ := strconv.Atoi(ts[0:2])
	mm, _ := strconv.Atoi(ts[3:5])
	minutes := (hh*60 + mm) % 100
	return fmt.Sprintf("%02d:%s.%s", minutes, ts[6:8], ts[9:11]), nil
}

// EncodeLRC renders one "[MM:SS.CC]text" line per segment, keyed on the start
// time. Multi-line content is joined with spaces.
func EncodeLRC(segments []Segment) (string, error) {
	var b strings.Builder
	for _, seg := range segments {
		ts, err := LRCTimestamp(seg.Start)
		if err != nil {
			return "", fmt.Errorf("segment %d: %w", seg.ID, err)
		}
		b.WriteString("[" + ts + "]")
		b.WriteString(strings.ReplaceAll(seg.Content, "\n", " "))
		b.WriteByte('\n')
	}
	return b.String(), nil
}
