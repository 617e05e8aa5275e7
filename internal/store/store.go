// Package store persists documents in named collections.
//
// Three backends implement DocumentStore: Postgres (one JSONB table per
// collection), MongoDB, and an in-memory store for tests and local
// development. Documents are Go structs whose json and bson tags carry the
// same field names, so a Filter means the same thing on every backend.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("store: document not found")

	// ErrRevisionMismatch is returned by Replace when IfRevision was given
	// and the stored revision differs.
	ErrRevisionMismatch = errors.New("store: revision mismatch")

	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("store: duplicate id")
)

// Filter is an equality filter on top-level document fields. An empty
// filter matches every document. A Fold value matches a string field
// ignoring case.
type Filter map[string]any

// Fold is a Filter value compared case-insensitively.
type Fold string

// split separates the case-insensitive conditions from the exact ones.
func (f Filter) split() (Filter, map[string]string) {
	var exact Filter
	var fold map[string]string
	for k, v := range f {
		if s, ok := v.(Fold); ok {
			if fold == nil {
				fold = make(map[string]string)
			}
			fold[k] = string(s)
			continue
		}
		if exact == nil {
			exact = make(Filter)
		}
		exact[k] = v
	}
	return exact, fold
}

// DocumentStore is the document database used by every service.
type DocumentStore interface {
	// Create inserts doc under id.
	Create(ctx context.Context, collection, id string, doc any) error

	// Replace overwrites the whole document stored under id.
	Replace(ctx context.Context, collection, id string, doc any, opts ...ReplaceOption) error

	// Get decodes the document stored under id into out.
	Get(ctx context.Context, collection, id string, out any) error

	// FindAll decodes every document matching filter into out, which must
	// be a pointer to a slice.
	FindAll(ctx context.Context, collection string, filter Filter, out any) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// RevisionField is the document field compared by IfRevision.
const RevisionField = "revision"

// ReplaceOptions configures Replace.
type ReplaceOptions struct {
	// ExpectedRevision, when set, must equal the stored document's revision.
	ExpectedRevision *int
}

// ReplaceOption configures a Replace call.
type ReplaceOption func(*ReplaceOptions)

// IfRevision makes Replace fail with ErrRevisionMismatch unless the stored
// document carries revision n.
func IfRevision(n int) ReplaceOption {
	return func(o *ReplaceOptions) {
		o.ExpectedRevision = &n
	}
}

func applyReplaceOptions(opts []ReplaceOption) ReplaceOptions {
	var o ReplaceOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
