package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
)

var (
	// ErrCollectionNotAllowed is returned for a collection outside the
	// allow-list.
	ErrCollectionNotAllowed = errors.New("collection not allowed")

	// ErrInvalidCollection is returned for a malformed collection name.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// collectionName matches names that are safe in a URL path segment and a
// table name.
var collectionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidCollectionName reports whether name is a well-formed collection name.
func ValidCollectionName(name string) bool {
	return collectionName.MatchString(name)
}

// AllowList restricts which collections may be written or searched.
// The zero value allows every well-formed name.
type AllowList struct {
	names []string
}

// NewAllowList returns an allow-list of names. An empty list allows all.
func NewAllowList(names []string) AllowList {
	return AllowList{names: slices.Clone(names)}
}

// Names returns the configured names; nil means unrestricted.
func (a AllowList) Names() []string {
	return slices.Clone(a.names)
}

// Allowed reports whether collection is well formed and permitted.
func (a AllowList) Allowed(collection string) bool {
	return a.Assert(collection) == nil
}

// Assert returns nil when collection is permitted.
func (a AllowList) Assert(collection string) error {
	if !ValidCollectionName(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	if len(a.names) > 0 && !slices.Contains(a.names, collection) {
		return fmt.Errorf("%w: %q", ErrCollectionNotAllowed, collection)
	}
	return nil
}

// Filter returns the permitted collections in order.
func (a AllowList) Filter(collections []string) []string {
	var out []string
	for _, c := range collections {
		if a.Allowed(c) {
			out = append(out, c)
		}
	}
	return out
}
