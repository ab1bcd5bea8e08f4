package transcoder

import "strings"

// ConversionMarker flags a source line that must be dropped from the script.
const ConversionMarker = "!nb2py"

// DirectivePrefix turns a notebook directive into an inert script comment.
const DirectivePrefix = "##"

// Destination is where the classifier routes a code line.
type Destination int

const (
	DestBody Destination = iota
	DestDiscard
	DestImport
	DestEnvMutation
	DestPathMutation
	DestDirective
)

func (d Destination) String() string {
	switch d {
	case DestDiscard:
		return "discard"
	case DestImport:
		return "import"
	case DestEnvMutation:
		return "env_mutation"
	case DestPathMutation:
		return "path_mutation"
	case DestDirective:
		return "directive"
	default:
		return "body"
	}
}

type rule struct {
	dest  Destination
	match func(line string) bool
}

// rules are evaluated in order; the first match wins. Lines matching none
// go to the body (or to an open block string).
var rules = []rule{
	{DestDiscard, trimmedPrefix(ConversionMarker)},
	{DestImport, prefix("import ", "from ")},
	{DestEnvMutation, prefix("os.environ")},
	{DestPathMutation, prefix("sys.path")},
	{DestDirective, trimmedPrefix("%", "!")},
}

func prefix(ps ...string) func(string) bool {
	return func(line string) bool {
		for _, p := range ps {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
		return false
	}
}

func trimmedPrefix(ps ...string) func(string) bool {
	match := prefix(ps...)
	return func(line string) bool {
		return match(strings.TrimSpace(line))
	}
}

// Classify returns the destination of a single, newline-stripped code line.
func Classify(line string) Destination {
	for _, r := range rules {
		if r.match(line) {
			return r.dest
		}
	}
	return DestBody
}

// StripNewlines removes every trailing line feed from a source line.
func StripNewlines(line string) string {
	return strings.TrimRight(line, "\n")
}
