package parser

import (
	"strings"
	"unicode"
)

// blockSeparator is one blank line of two empty lines between time blocks.
const blockSeparator = "\n\n\n"

// Block is one time step of the input: a header line and its data rows.
type Block struct {
	Index  int // 1-based position in the file
	Line   int // 1-based file line of the header
	Header string
	Rows   []string
}

// RowLine returns the file line of data row i.
func (b Block) RowLine(i int) int {
	return b.Line + 1 + i
}

// SplitBlocks splits raw file text into ordered blocks. Block order is file
// order; times are never used to reorder.
func SplitBlocks(text string) ([]Block, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	body := strings.TrimLeftFunc(text, unicode.IsSpace)
	line := 1 + strings.Count(text[:len(text)-len(body)], "\n")
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	if body == "" {
		return nil, &FormatError{Reason: "input contains no blocks"}
	}

	var blocks []Block
	for _, chunk := range strings.Split(body, blockSeparator) {
		next := line + strings.Count(chunk, "\n") + len(blockSeparator)

		trimmed := strings.TrimLeftFunc(chunk, unicode.IsSpace)
		start := line + strings.Count(chunk[:len(chunk)-len(trimmed)], "\n")
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		line = next
		if trimmed == "" {
			continue
		}

		lines := strings.Split(trimmed, "\n")
		blocks = append(blocks, Block{
			Index:  len(blocks) + 1,
			Line:   start,
			Header: lines[0],
			Rows:   lines[1:],
		})
	}

	if len(blocks) == 0 {
		return nil, &FormatError{Reason: "input contains no blocks"}
	}
	return blocks, nil
}
