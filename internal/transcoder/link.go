package transcoder

import (
	"slices"
	"strings"
)

const (
	// Indent is prepended to every body line under the entry-point guard.
	Indent = "    "
	// EntryGuard opens the script body.
	EntryGuard = "\n\nif __name__ == '__main__':\n"
	// Footer is the provenance block appended to every script. Downstream
	// tooling greps for it, keep it byte-for-byte stable.
	Footer = "\n\n\n" +
		"##########################################################################\n" +
		"# This file was converted using nb2py: https://github.com/BardiaKh/nb2py #\n" +
		"##########################################################################\n"
)

// Anchor identifies the import statement a mutation category belongs after.
type Anchor struct {
	Bare      string
	Selective string
}

var (
	EnvAnchor  = Anchor{Bare: "import os", Selective: "from os import"}
	PathAnchor = Anchor{Bare: "import sys", Selective: "from sys import"}
)

// Matches reports whether an import line anchors the category.
func (a Anchor) Matches(line string) bool {
	return strings.Contains(line, a.Bare) || strings.Contains(line, a.Selective)
}

// Anchored reports whether any of the imports anchors the category.
func (a Anchor) Anchored(imports []string) bool {
	return slices.IndexFunc(imports, a.Matches) >= 0
}

// InsertMutations places each mutation directly after the first import that
// matches the anchor. Mutations are inserted in descending order at the same
// position, which leaves them in ascending order after the anchor. Mutations
// without an anchor are dropped. The inputs are not modified.
func InsertMutations(imports, mutations []string, a Anchor) []string {
	out := slices.Clone(imports)
	sorted := slices.Clone(mutations)
	slices.Sort(sorted)
	slices.Reverse(sorted)
	for _, m := range sorted {
		i := slices.IndexFunc(out, a.Matches)
		if i < 0 {
			continue
		}
		out = slices.Insert(out, i+1, m)
	}
	return out
}

// IndentBody prefixes every line of body with Indent.
func IndentBody(body string) string {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = Indent + l
	}
	return strings.Join(lines, "\n")
}

// Link merges the buckets into the import header and wraps the body under
// the entry-point guard. It returns the final header lines and script text.
func Link(b Buckets, body string) ([]string, string) {
	header := InsertMutations(b.Imports, b.EnvMutations, EnvAnchor)
	header = InsertMutations(header, b.PathMutations, PathAnchor)

	var sb strings.Builder
	sb.WriteString(strings.Join(header, "\n"))
	sb.WriteString(EntryGuard)
	sb.WriteString(IndentBody(body))
	sb.WriteString(Footer)
	return header, sb.String()
}
