package transcoder

import "strings"

const (
	// CellMarker precedes the documentation literal of a markdown cell.
	CellMarker = "# %%"
	// CellSeparator partitions the script body back into its cells.
	CellSeparator = "\n\n#---\n\n"
)

// MarkdownBlock renders a markdown cell as an inert documentation literal.
// Source lines are joined with single spaces and otherwise kept verbatim.
func MarkdownBlock(source []string) string {
	return CellMarker + "\n" + Delimiter + strings.Join(source, " ") + Delimiter
}

// CodeBlock joins the classified body lines of a code cell.
func CodeBlock(body []string) string {
	return strings.Join(body, "\n")
}

// JoinBlocks joins cell blocks in order with the cell separator.
func JoinBlocks(blocks []string) string {
	return strings.Join(blocks, CellSeparator)
}
