// Package transcoder converts notebook cells into a single linear script.
//
// Each code line is classified (import, environment or path mutation,
// directive, discarded marker, or ordinary code), triple-quoted block strings
// are rewritten into chains of ordinary literals, and the cells are assembled
// under one entry-point guard with the imports and their mutations on top.
// A conversion is a pure fold over the cells: no state survives a call.
package transcoder

import (
	"fmt"
	"log/slog"

	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/models"
)

// Policy decides what happens to content the reference conversion discards:
// mutations with no anchoring import and block strings left open at the end
// of a cell.
type Policy string

const (
	PolicyDrop Policy = "drop"
	PolicyKeep Policy = "keep"
	PolicyFail Policy = "fail"
)

// Policies lists the accepted policy names.
var Policies = []string{string(PolicyDrop), string(PolicyKeep), string(PolicyFail)}

// ParsePolicy validates a policy name. The empty string selects PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyKeep, PolicyFail:
		return Policy(s), nil
	}
	return "", fmt.Errorf("transcoder: unknown policy %q", s)
}

// WarningKind classifies recoverable conversion problems.
type WarningKind string

const (
	WarnUnmatchedMutation  WarningKind = "unmatched_mutation"
	WarnUnterminatedString WarningKind = "unterminated_string"
)

// Warning reports content that was dropped or kept in place under the policy.
// Cell and Line are zero-based.
type Warning struct {
	Kind WarningKind `json:"kind"`
	Cell int         `json:"cell"`
	Line int         `json:"line"`
	Text string      `json:"text"`
}

func (w Warning) String() string {
	return fmt.Sprintf("cell %d line %d: %s: %s", w.Cell, w.Line, w.Kind, w.Text)
}

// Buckets collects the relocated lines of every code cell, in source order.
type Buckets struct {
	Imports       []string
	EnvMutations  []string
	PathMutations []string
}

// Result is the outcome of one conversion.
type Result struct {
	Script        string
	Header        []string
	Blocks        []string
	Warnings      []Warning
	CodeCells     int
	MarkdownCells int
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithPolicy sets the recovery policy.
func WithPolicy(p Policy) Option {
	return func(t *Transcoder) {
		t.policy = p
	}
}

// WithLogger sets the logger warnings are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcoder) {
		t.logger = l
	}
}

// Transcoder converts notebooks to scripts. It is immutable and safe for
// concurrent use.
type Transcoder struct {
	policy Policy
	logger *slog.Logger
}

// New returns a Transcoder using PolicyDrop and the default logger unless
// overridden.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{policy: PolicyDrop}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Policy returns the configured recovery policy.
func (t *Transcoder) Policy() Policy {
	return t.policy
}

// Transcode converts nb into script text.
func (t *Transcoder) Transcode(nb *models.Notebook) (*Result, error) {
	if nb == nil {
		return nil, fmt.Errorf("%w: nil notebook", apperr.ErrInvalidNotebook)
	}

	// Path mutations are placed after the environment mutations have been
	// inserted, so an inserted line can anchor them.
	imports, envMutations := collectHeader(nb)
	anchored := map[Destination]bool{
		DestEnvMutation:  EnvAnchor.Anchored(imports),
		DestPathMutation: PathAnchor.Anchored(InsertMutations(imports, envMutations, EnvAnchor)),
	}

	var (
		acc      Buckets
		blocks   []string
		warnings []Warning
		res      = &Result{}
	)
	for i, cell := range nb.Cells {
		switch cell.Type {
		case models.CellMarkdown:
			res.MarkdownCells++
			blocks = append(blocks, MarkdownBlock(cell.Source))
		case models.CellCode:
			res.CodeCells++
			cc := &cellClassifier{cell: i, policy: t.policy, anchored: anchored}
			var err error
			acc, err = cc.run(cell.Source, acc)
			if err != nil {
				return nil, err
			}
			warnings = append(warnings, cc.warnings...)
			if len(cc.body) > 0 {
				blocks = append(blocks, CodeBlock(cc.body))
			}
		}
	}

	for _, w := range warnings {
		t.logger.Warn("transcoder: "+string(w.Kind),
			slog.Int("cell", w.Cell),
			slog.Int("line", w.Line),
			slog.String("text", w.Text),
			slog.String("policy", string(t.policy)))
	}

	res.Header, res.Script = Link(acc, JoinBlocks(blocks))
	res.Blocks = blocks
	res.Warnings = warnings
	return res, nil
}

// collectHeader returns every line the classifier will route to the import
// and environment mutation buckets, so mutation anchoring is known before the
// cells are folded.
func collectHeader(nb *models.Notebook) (imports, envMutations []string) {
	for _, cell := range nb.Cells {
		if cell.Type != models.CellCode {
			continue
		}
		for _, raw := range cell.Source {
			line := StripNewlines(raw)
			switch Classify(line) {
			case DestImport:
				imports = append(imports, line)
			case DestEnvMutation:
				envMutations = append(envMutations, line)
			}
		}
	}
	return imports, envMutations
}

// cellClassifier routes the lines of one code cell.
type cellClassifier struct {
	cell     int
	policy   Policy
	anchored map[Destination]bool

	str      blockString
	body     []string
	warnings []Warning
}

// run folds the cell's lines into acc and returns the updated buckets.
func (c *cellClassifier) run(source []string, acc Buckets) (Buckets, error) {
	for n, raw := range source {
		line := StripNewlines(raw)
		switch dest := Classify(line); dest {
		case DestDiscard:
		case DestImport:
			acc.Imports = append(acc.Imports, line)
		case DestEnvMutation, DestPathMutation:
			if !c.anchored[dest] {
				keep, err := c.unanchored(n, line)
				if err != nil {
					return acc, err
				}
				if keep {
					c.body = append(c.body, line)
					continue
				}
			}
			if dest == DestEnvMutation {
				acc.EnvMutations = append(acc.EnvMutations, line)
			} else {
				acc.PathMutations = append(acc.PathMutations, line)
			}
		case DestDirective:
			c.body = append(c.body, DirectivePrefix+line)
		default:
			c.code(n, line)
		}
	}
	if c.str.isOpen() {
		return acc, c.unterminated()
	}
	return acc, nil
}

// code handles a line that is ordinary code or part of a block string.
func (c *cellClassifier) code(n int, line string) {
	switch transition := IsTransition(line); {
	case !transition && !c.str.isOpen():
		c.body = append(c.body, line)
	case !transition:
		c.str.feed(line)
	case !c.str.isOpen():
		c.str.open(line, n)
	default:
		c.body = append(c.body, c.str.close(line))
	}
}

// unanchored applies the policy to a mutation with no anchoring import and
// reports whether the line stays in the body.
func (c *cellClassifier) unanchored(n int, line string) (bool, error) {
	if c.policy == PolicyFail {
		return false, fmt.Errorf("%w: cell %d line %d: %s", apperr.ErrUnmatchedMutation, c.cell, n, line)
	}
	c.warnings = append(c.warnings, Warning{Kind: WarnUnmatchedMutation, Cell: c.cell, Line: n, Text: line})
	return c.policy == PolicyKeep, nil
}

// unterminated applies the policy to a block string still open at cell end.
func (c *cellClassifier) unterminated() error {
	w := Warning{Kind: WarnUnterminatedString, Cell: c.cell, Line: c.str.openedAt, Text: c.str.firstLine}
	switch c.policy {
	case PolicyFail:
		c.str.reset()
		return fmt.Errorf("%w: cell %d line %d: unterminated block string", apperr.ErrMalformedCell, w.Cell, w.Line)
	case PolicyKeep:
		c.body = append(c.body, c.str.flush())
	default:
		c.str.reset()
	}
	c.warnings = append(c.warnings, w)
	return nil
}
