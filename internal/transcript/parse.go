package transcript

import (
	"regexp"
	"strings"
)

// lineRe matches one line of whisper.cpp stdout:
//
//	[00:00:01.000 --> 00:00:02.000]  text
var lineRe = regexp.MustCompile(`^\[(` + timestampPattern + `) --> (` + timestampPattern + `)\](.*)$`)

// ParseChunk extracts segments from a chunk of engine stdout. Lines that do not
// look like a timestamped segment are dropped. Ids count from 0 within the chunk.
func ParseChunk(chunk string) []Segment {
	var out []Segment
	for _, line := range strings.Split(strings.TrimSpace(chunk), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Segment{
			ID:      len(out),
			Start:   m[1],
			End:     m[2],
			Content: strings.TrimSpace(m[3]),
		})
	}
	return out
}

// LineBuffer reassembles lines split across pipe reads. Feed returns only
// complete lines and keeps the unterminated tail for the next call.
type LineBuffer struct {
	residual string
}

// Feed appends chunk to the pending tail and returns every complete line,
// newline-terminated. It returns "" when no line has completed yet.
func (b *LineBuffer) Feed(chunk string) string {
	data := b.residual + chunk
	i := strings.LastIndexByte(data, '\n')
	if i < 0 {
		b.residual = data
		return ""
	}
	b.residual = data[i+1:]
	return data[:i+1]
}

// Flush returns and clears whatever unterminated text is still buffered.
func (b *LineBuffer) Flush() string {
	s := b.residual
	b.residual = ""
	return s
}
