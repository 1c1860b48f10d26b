package format

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/JonMunkholm/docingest/internal/document"
	"github.com/JonMunkholm/docingest/internal/normalize"
)

// ParseCSV parses comma-separated input. The first row names the columns;
// every later row is one document with one string field per non-empty
// cell. Rows whose column count differs from the header fail the parse.
func ParseCSV(r io.Reader) ([]document.Document, error) {
	cr := csv.NewReader(newReader(r))
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, csvError(err)
	}
	header = append([]string(nil), header...)

	var docs []document.Document
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}

		record := make(normalize.Object, 0, len(row))
		for i, cell := range row {
			if cell == "" {
				continue
			}
			record = append(record, normalize.Member{Key: header[i], Value: normalize.String(cell)})
		}
		docs = append(docs, normalize.Flatten(record))
	}

	return docs, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return parseError(CSV, pe.Line, pe.Err)
	}
	return parseError(CSV, 0, err)
}
