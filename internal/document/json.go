package document

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON encodes the document as a JSON object with keys in field
// order. Multi-valued fields encode as arrays.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(f.Value())
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ID returns the document's "id" field rendered as a string, if present and
// single-valued.
func (d Document) ID() (string, bool) {
	f, ok := d.Field("id")
	if !ok || f.Multi || len(f.Values) != 1 {
		return "", false
	}
	if s, ok := f.Values[0].(string); ok {
		return s, s != ""
	}
	b, err := json.Marshal(f.Values[0])
	if err != nil {
		return "", false
	}
	return string(b), true
}
