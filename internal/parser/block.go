package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilonova-lab/specconv/internal/models"
)

// minRowWords is low edge, high edge and at least one flux value.
const minRowWords = 3

// BlockData is the numeric content of one block.
type BlockData struct {
	Index       int
	Time        float64
	Wavelengths []models.BinEdges
	Flux        []float64 // row-major (wavelength, angle)
	Width       int       // flux values per row
}

// ParseBlock converts one block's header and rows into numbers. The time is
// the last whitespace-delimited token of the header; any leading label is
// ignored.
func ParseBlock(b Block) (BlockData, error) {
	header := strings.Fields(b.Header)
	if len(header) == 0 {
		return BlockData{}, &FormatError{Block: b.Index, Line: b.Line, Reason: "missing header"}
	}
	timeToken := header[len(header)-1]
	t, err := strconv.ParseFloat(timeToken, 64)
	if err != nil {
		return BlockData{}, &FormatError{
			Block: b.Index, Line: b.Line, Token: timeToken,
			Reason: "header time is not a number", Err: err,
		}
	}

	if len(b.Rows) == 0 {
		return BlockData{}, &FormatError{Block: b.Index, Line: b.Line, Reason: "block has no data rows"}
	}

	data := BlockData{
		Index:       b.Index,
		Time:        t,
		Wavelengths: make([]models.BinEdges, 0, len(b.Rows)),
	}
	for i, row := range b.Rows {
		words := strings.Fields(row)
		if len(words) < minRowWords {
			return BlockData{}, &FormatError{
				Block: b.Index, Line: b.RowLine(i),
				Reason: fmt.Sprintf("data row has %d columns, need at least %d", len(words), minRowWords),
			}
		}

		width := len(words) - 2
		if data.Width == 0 {
			data.Width = width
			data.Flux = make([]float64, 0, width*len(b.Rows))
		} else if width != data.Width {
			return BlockData{}, &ShapeError{
				Block:  b.Index,
				Reason: fmt.Sprintf("line %d has %d flux values, previous rows have %d", b.RowLine(i), width, data.Width),
			}
		}

		values, err := parseFloats(words)
		if err != nil {
			err.Block, err.Line = b.Index, b.RowLine(i)
			return BlockData{}, err
		}
		data.Wavelengths = append(data.Wavelengths, models.BinEdges{Low: values[0], High: values[1]})
		data.Flux = append(data.Flux, values[2:]...)
	}
	return data, nil
}

func parseFloats(words []string) ([]float64, *FormatError) {
	out := make([]float64, len(words))
	for i, w := range words {
		v, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return nil, &FormatError{Token: w, Reason: "value is not a number", Err: err}
		}
		out[i] = v
	}
	return out, nil
}
