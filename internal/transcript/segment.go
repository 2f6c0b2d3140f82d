// Package transcript holds the segment model produced by whisper.cpp and the
// converters between segments and the WebVTT, SRT and LRC text formats.
package transcript

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Segment is one time-aligned piece of transcribed text.
// Start and End use the HH:MM:SS.mmm format whisper.cpp prints.
type Segment struct {
	ID      int    `json:"id"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Content string `json:"content"`
}

// timestampPattern matches HH:MM:SS.mmm with minutes and seconds in 00..59.
const timestampPattern = `\d\d:[0-5]\d:[0-5]\d\.\d\d\d`

var timestampRe = regexp.MustCompile(`^` + timestampPattern + `$`)

// ValidTimestamp reports whether ts is a well-formed HH:MM:SS.mmm timestamp.
func ValidTimestamp(ts string) bool {
	return timestampRe.MatchString(ts)
}

// ParseTimestamp converts HH:MM:SS.mmm into a duration from the start of the audio.
func ParseTimestamp(ts string) (time.Duration, error) {
	if !ValidTimestamp(ts) {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	h, _ := strconv.Atoi(ts[0:2])
	m, _ := strconv.Atoi(ts[3:5])
	s, _ := strconv.Atoi(ts[6:8])
	ms, _ := strconv.Atoi(ts[9:12])
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// Flatten concatenates streamed batches into one list and renumbers ids from 0.
// Ids inside a batch are only unique within that batch, so anything rendering a
// whole transcript goes through here first.
func Flatten(batches [][]Segment) []Segment {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]Segment, 0, n)
	for _, b := range batches {
		for _, seg := range b {
			seg.ID = len(out)
			out = append(out, seg)
		}
	}
	return out
}
