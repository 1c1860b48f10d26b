// Package format parses JSON, CSV and XML input into flat documents.
//
// Every adapter reads through a reader that strips a UTF-8 byte order mark
// and replaces invalid UTF-8 bytes, builds one normalize.Node tree per
// record and flattens it with normalize.Flatten. Malformed input fails the
// whole parse with a *ParseError; nothing is returned for partial input.
package format

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/JonMunkholm/docingest/internal/document"
)

// Format identifies an input syntax.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	XML  Format = "xml"
)

// Formats lists every supported format.
var Formats = []Format{JSON, CSV, XML}

func (f Format) String() string {
	return string(f)
}

// ParseFormat resolves a format name such as "json" or "CSV" to one of
// Formats.
func ParseFormat(name string) (Format, error) {
	want := Format(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Formats, want) {
		return want, nil
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, Names())
}

// Names returns the supported format names as "json, csv, xml".
func Names() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// contentTypes maps media types to formats.
var contentTypes = map[string]Format{
	"application/json": JSON,
	"text/json":        JSON,
	"text/csv":         CSV,
	"application/csv":  CSV,
	"application/xml":  XML,
	"text/xml":         XML,
}

// Detect picks the input format from, in order: an explicit format name,
// the request content type and the file name extension. Generic content
// types such as application/octet-stream are skipped.
func Detect(explicit, contentType, filename string) (Format, error) {
	if explicit != "" {
		return ParseFormat(explicit)
	}

	if f, ok := fromContentType(contentType); ok {
		return f, nil
	}

	if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f, nil
		}
	}

	return "", fmt.Errorf("%w: content type %q, file %q", ErrUnknownFormat, contentType, filename)
}

func fromContentType(contentType string) (Format, bool) {
	if contentType == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	if f, ok := contentTypes[mediaType]; ok {
		return f, true
	}
	switch {
	case strings.HasSuffix(mediaType, "+json"):
		return JSON, true
	case strings.HasSuffix(mediaType, "+xml"):
		return XML, true
	}
	return "", false
}

// Parse reads r in format f. If maxBytes is positive, input longer than
// maxBytes fails with ErrInputTooLarge.
func Parse(f Format, r io.Reader, maxBytes int64) ([]document.Document, error) {
	if maxBytes > 0 {
		r = &limitedReader{r: r, remaining: maxBytes}
	}

	switch f {
	case JSON:
		return ParseJSON(r)
	case CSV:
		return ParseCSV(r)
	case XML:
		return ParseXML(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}
