package transcoder

import "strings"

// stringState is the state of the block-string machine within one cell.
type stringState int

const (
	stateClosed stringState = iota
	stateOpenPlain
	stateOpenInterpolated
)

func (s stringState) String() string {
	switch s {
	case stateOpenPlain:
		return "open"
	case stateOpenInterpolated:
		return "open_interpolated"
	default:
		return "closed"
	}
}

// Join tokens placed between the segments of a flushed block string: close
// the literal with an escaped newline, concatenate, continue the source line
// and reopen a literal.
const (
	segmentJoin             = "\\n\" +\\\n\""
	segmentJoinInterpolated = "\\n\" +\\\nf\""
)

// blockString accumulates the lines of a triple-quoted string and rewrites
// them as a chain of ordinary quoted literals.
type blockString struct {
	state     stringState
	segments  []string
	openedAt  int
	firstLine string
}

func (b *blockString) isOpen() bool {
	return b.state != stateClosed
}

// open starts a block string on a transition line.
func (b *blockString) open(line string, lineNo int) {
	b.state = stateOpenPlain
	if strings.Contains(line, `f"`) {
		b.state = stateOpenInterpolated
	}
	b.openedAt = lineNo
	b.firstLine = line
	b.segments = append(b.segments[:0], Normalize(line, ModeStart))
}

// feed appends an inner line of the string.
func (b *blockString) feed(line string) {
	b.segments = append(b.segments, EscapeQuotes(line))
}

// close consumes the closing transition line and returns the joined literal.
func (b *blockString) close(line string) string {
	b.segments = append(b.segments, Normalize(line, ModeEnd))
	return b.flush()
}

// flush joins the accumulated segments and resets the machine.
func (b *blockString) flush() string {
	sep := segmentJoin
	if b.state == stateOpenInterpolated {
		sep = segmentJoinInterpolated
	}
	out := strings.Join(b.segments, sep)
	b.reset()
	return out
}

func (b *blockString) reset() {
	b.state = stateClosed
	b.segments = nil
	b.openedAt = 0
	b.firstLine = ""
}
