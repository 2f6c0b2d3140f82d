package transcript

import (
	"regexp"
	"strings"
)

// VTTHeader is the first line of every WebVTT document.
const VTTHeader = "WEBVTT"

var cueTimingRe = regexp.MustCompile(`^(` + timestampPattern + `) --> (` + timestampPattern + `)$`)

// EncodeVTTBody renders cues without the WEBVTT header. Cues are separated by a
// blank line.
func EncodeVTTBody(segments []Segment) string {
	cues := make([]string, len(segments))
	for i, seg := range segments {
		cues[i] = seg.Start + " --> " + seg.End + "\n" + seg.Content + "\n"
	}
	return strings.Join(cues, "\n")
}

// EncodeVTT renders a complete WebVTT document.
func EncodeVTT(segments []Segment) string {
	return VTTHeader + "\n\n" + EncodeVTTBody(segments)
}

// DecodeVTT parses a WebVTT document produced by EncodeVTT (or whisper.cpp -ovtt).
// Each timing line opens a cue and the following non-blank lines are its text.
// Cues without text are skipped. Ids run from 0 across the whole document.
func DecodeVTT(raw string) []Segment {
	doc := strings.Replace(raw, VTTHeader+"\n\n", "", 1)
	doc = strings.TrimSpace(doc)

	var (
		out []Segment
		cur Segment
		buf strings.Builder
	)
	collect := func() {
		content := strings.TrimSpace(buf.String())
		if cur.Start != "" && cur.End != "" && content != "" {
			cur.Content = content
			cur.ID = len(out)
			out = append(out, cur)
		}
		cur = Segment{}
		buf.Reset()
	}

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := cueTimingRe.FindStringSubmatch(line); m != nil {
			collect()
			cur.Start, cur.End = m[1], m[2]
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	collect()
	return out
}
