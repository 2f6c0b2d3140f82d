package transcript

import (
	"strconv"
	"strings"
)

// EncodeSRT renders SubRip: a 1-based index line, the timing line with comma
// decimal separators, the text, and a blank line between cues.
func EncodeSRT(segments []Segment) string {
	cues := make([]string, len(segments))
	for i, seg := range segments {
		timing := strings.ReplaceAll(seg.Start+" --> "+seg.End, ".", ",")
		cues[i] = strconv.Itoa(i+1) + "\n" + timing + "\n" + seg.Content + "\n"
	}
	return strings.Join(cues, "\n")
}
