package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/docingest/internal/document"
	"github.com/JonMunkholm/docingest/internal/normalize"
)

// ParseJSON parses a top-level JSON array; each object element is one
// document. Non-object elements are skipped. A top-level value that is not
// an array, or empty input, yields no documents.
func ParseJSON(r io.Reader) ([]document.Document, error) {
	lines := &lineIndex{r: newReader(r)}
	dec := json.NewDecoder(lines)
	dec.UseNumber()
	lines.consumed = dec.InputOffset

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, jsonError(dec, lines, err)
	}

	var docs []document.Document
	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, jsonError(dec, lines, err)
			}
			node, err := readJSONValue(dec, tok)
			if err != nil {
				return nil, jsonError(dec, lines, err)
			}
			if obj, ok := node.(normalize.Object); ok {
				docs = append(docs, normalize.Flatten(obj))
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, jsonError(dec, lines, err)
		}
	} else if _, err := readJSONValue(dec, tok); err != nil {
		return nil, jsonError(dec, lines, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())
		}
		return nil, jsonError(dec, lines, err)
	}

	return docs, nil
}

// jsonError locates err at the decoder's position: the start of the value
// or token that failed.
func jsonError(dec *json.Decoder, lines *lineIndex, err error) error {
	return parseError(JSON, lines.Line(dec.InputOffset()), err)
}

// readJSONValue builds the node whose first token is tok, preserving
// object key order and literal number text.
func readJSONValue(dec *json.Decoder, tok json.Token) (normalize.Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return readJSONObject(dec)
		case '[':
			return readJSONArray(dec)
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", t, dec.InputOffset())
		}
	case string:
		return normalize.String(t), nil
	case json.Number:
		return normalize.Number(t.String()), nil
	case bool:
		return normalize.Bool(t), nil
	case nil:
		return normalize.Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func readJSONObject(dec *json.Decoder) (normalize.Node, error) {
	obj := normalize.Object{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, err := readJSONValue(dec, valTok)
		if err != nil {
			return nil, err
		}
		obj = append(obj, normalize.Member{Key: key, Value: val})
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func readJSONArray(dec *json.Decoder) (normalize.Node, error) {
	seq := normalize.Sequence{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, err := readJSONValue(dec, tok)
		if err != nil {
			return nil, err
		}
		seq = append(seq, val)
	}
	// closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return seq, nil
}
