package ingest

// errors.go maps ingest errors to messages safe to show to API clients.
//
// # Error Codes Reference
//
// Parse errors (PARSE001-PARSE099):
//
//	PARSE001 - Malformed JSON            Action: Check the file is a JSON array of objects
//	PARSE002 - Malformed CSV             Action: Check quoting and that every row has the header's column count
//	PARSE003 - Malformed XML             Action: Check the document is well formed
//	PARSE004 - Unknown format            Action: Send format=json, csv or xml, or a matching Content-Type
//	PARSE005 - Input too large           Action: Split the input into smaller files
//
// Collection errors (COL001-COL099):
//
//	COL001 - Collection not allowed      Action: Use one of the configured collections
//	COL002 - Invalid collection name     Action: Use letters, digits, '_', '-' and '.'
//
// Store errors (STORE001-STORE099):
//
//	STORE001 - Commit failed             Action: Retry the ingest; nothing was made visible
//	STORE002 - Store unreachable         Action: Try again in a few moments
//	STORE003 - Store rejected request    Action: Check the collection exists
//	STORE004 - Store busy                Action: Try again
//
// Ingest errors (ING001-ING099):
//
//	ING001 - Too many ingests            Action: Wait a moment and try again
//	ING002 - Request cancelled           Action: Try again
//	ING003 - Request timed out           Action: Send a smaller file or raise INGEST_TIMEOUT
//	ING004 - No input                    Action: Send a request body or a multipart "file" part
//	ING005 - Search unavailable          Action: Search requires the solr backend
//	ING006 - Invalid search request      Action: Check sort, start and rows parameters
//	ING007 - Rate limited                Action: Wait a moment before trying again
//	ING008 - Listing unavailable         Action: Listing collections requires the solr backend
//
// Default (ERR000): an unexpected error; check the server log for the
// original error.
//
// Typed and sentinel errors are matched first with errors.Is and errors.As.
// Anything else falls through to a case-insensitive substring table where
// the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/loader"
)

// Errors returned by the service and the HTTP layer.
var (
	ErrNoInput           = errors.New("no input provided")
	ErrSearchUnsupported = errors.New("search is not supported by this store")
	ErrInvalidSearch     = errors.New("invalid search request")
	ErrListUnsupported   = errors.New("listing collections is not supported by this store")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Reference code
}

var (
	msgParseJSON = UserMessage{"The JSON input is malformed", "Check the file is a JSON array of objects", "PARSE001"}
	msgParseCSV  = UserMessage{"The CSV input is malformed", "Check quoting and that every row has the header's column count", "PARSE002"}
	msgParseXML  = UserMessage{"The XML input is malformed", "Check the document is well formed", "PARSE003"}
	msgFormat    = UserMessage{"The input format is not recognized", "Send format=json, csv or xml, or a matching Content-Type", "PARSE004"}
	msgTooLarge  = UserMessage{"The input exceeds the maximum size", "Split the input into smaller files", "PARSE005"}

	msgNotAllowed  = UserMessage{"This collection is not accepted by the server", "Use one of the configured collections", "COL001"}
	msgInvalidName = UserMessage{"The collection name is invalid", "Use letters, digits, '_', '-' and '.'", "COL002"}

	msgCommit      = UserMessage{"The documents could not be committed", "Retry the ingest; nothing was made visible", "STORE001"}
	msgUnreachable = UserMessage{"The document store is unreachable", "Try again in a few moments", "STORE002"}
	msgRejected    = UserMessage{"The document store rejected the request", "Check the collection exists", "STORE003"}
	msgBusy        = UserMessage{"The document store is busy", "Try again", "STORE004"}

	msgTooMany   = UserMessage{"The server is busy with other ingests", "Wait a moment and try again", "ING001"}
	msgCancelled = UserMessage{"The request was cancelled", "Try again", "ING002"}
	msgTimeout   = UserMessage{"The request timed out", "Send a smaller file or raise INGEST_TIMEOUT", "ING003"}
	msgNoInput   = UserMessage{"No input was provided", "Send a request body or a multipart \"file\" part", "ING004"}
	msgNoSearch  = UserMessage{"Search is not available", "Search requires the solr backend", "ING005"}
	msgBadSearch = UserMessage{"The search request is invalid", "Check sort, start and rows parameters", "ING006"}
	msgRate      = UserMessage{"Too many requests", "Wait a moment before trying again", "ING007"}
	msgNoList    = UserMessage{"Listing collections is not available", "Listing collections requires the solr backend", "ING008"}
)

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// errorPattern maps a lowercase substring of an error message to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors that reach the service without a type, mostly
// transport and driver failures. Specific patterns come first.
var errorPatterns = []errorPattern{
	{"connection refused", msgUnreachable},
	{"connection reset", msgUnreachable},
	{"no such host", msgUnreachable},
	{"failed to connect", msgUnreachable},
	{"deadlock", msgBusy},
	{"throttl", msgBusy},
	{"provisionedthroughputexceeded", msgBusy},
	{"resourcenotfound", msgRejected},
	{"solr: status 4", msgRejected},
	{"timeout", msgTimeout},
	{"rate limit", msgRate},
}

// MapError converts an error to a user-facing message. A nil error maps to
// the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		parseErr  *format.ParseError
		commitErr *loader.CommitError
		bodyErr   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, format.ErrInputTooLarge), errors.As(err, &bodyErr):
		return msgTooLarge
	case errors.Is(err, format.ErrUnknownFormat):
		return msgFormat
	case errors.As(err, &parseErr):
		switch parseErr.Format {
		case format.CSV:
			return msgParseCSV
		case format.XML:
			return msgParseXML
		default:
			return msgParseJSON
		}
	case errors.Is(err, ErrCollectionNotAllowed):
		return msgNotAllowed
	case errors.Is(err, ErrInvalidCollection):
		return msgInvalidName
	case errors.Is(err, ErrTooManyIngests):
		return msgTooMany
	case errors.Is(err, ErrNoInput):
		return msgNoInput
	case errors.Is(err, ErrSearchUnsupported):
		return msgNoSearch
	case errors.Is(err, ErrInvalidSearch):
		return msgBadSearch
	case errors.Is(err, ErrListUnsupported):
		return msgNoList
	case errors.As(err, &commitErr):
		return msgCommit
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
