package docsync

import (
	"strings"
)

const (
	// SourceHeaderPrefix starts every block in the combined output.
	SourceHeaderPrefix = "# Source: "
	// BlockSeparator joins blocks in the combined output.
	BlockSeparator = "\n\n"
)

// Block is one successfully fetched source.
type Block struct {
	URL  string
	Body string
}

// String renders the block as "# Source: <url>", a blank line, then the body
// unmodified.
func (b Block) String() string {
	return SourceHeaderPrefix + b.URL + "\n\n" + b.Body
}

// Combine renders blocks in order, separated by a blank line.
func Combine(blocks []Block) string {
	rendered := make([]string, 0, len(blocks))
	for _, b := range blocks {
		rendered = append(rendered, b.String())
	}
	return strings.Join(rendered, BlockSeparator)
}
