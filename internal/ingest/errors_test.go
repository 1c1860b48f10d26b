package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/loader"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"json parse error", &format.ParseError{Format: format.JSON, Err: io.ErrUnexpectedEOF}, "PARSE001"},
		{"csv parse error", &format.ParseError{Format: format.CSV, Line: 3, Err: errors.New("wrong number of fields")}, "PARSE002"},
		{"xml parse error wrapped", fmt.Errorf("ingest into books: %w", &format.ParseError{Format: format.XML, Err: errors.New("bad")}), "PARSE003"},
		{"unknown format", fmt.Errorf("detect: %w", format.ErrUnknownFormat), "PARSE004"},
		{"input too large", fmt.Errorf("ingest into books: %w", format.ErrInputTooLarge), "PARSE005"},
		{"collection not allowed", fmt.Errorf("%w: %q", ErrCollectionNotAllowed, "x"), "COL001"},
		{"invalid collection", fmt.Errorf("%w: %q", ErrInvalidCollection, "../x"), "COL002"},
		{"commit error", &loader.CommitError{Collection: "books", Err: errors.New("connection refused")}, "STORE001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8983: connect: connection refused"), "STORE002"},
		{"solr 404", errors.New("solr: status 404: Not Found"), "STORE003"},
		{"dynamo throttled", errors.New("ThrottlingException: rate exceeded"), "STORE004"},
		{"too many ingests", ErrTooManyIngests, "ING001"},
		{"cancelled", fmt.Errorf("ingest into books: %w", context.Canceled), "ING002"},
		{"deadline", fmt.Errorf("ingest into books: %w", context.DeadlineExceeded), "ING003"},
		{"timeout text", errors.New("i/o timeout"), "ING003"},
		{"no input", ErrNoInput, "ING004"},
		{"search unsupported", ErrSearchUnsupported, "ING005"},
		{"invalid search", fmt.Errorf("%w: bad sort", ErrInvalidSearch), "ING006"},
		{"rate limit", errors.New("rate limit exceeded"), "ING007"},
		{"listing unsupported", ErrListUnsupported, "ING008"},
		{"case insensitive matching", errors.New("CONNECTION REFUSED"), "STORE002"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && (got.Message == "" || got.Action == "") {
				t.Errorf("MapError() = %+v, want message and action", got)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyIngests)
	want := "The server is busy with other ingests (Code: ING001). Wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrNoInput, true},
		{errors.New("connection reset by peer"), true},
		{errors.New("nil pointer dereference"), false},
	}

	for _, tt := range tests {
		if got := IsUserFacing(tt.err); got != tt.want {
			t.Errorf("IsUserFacing(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
