package persistence

import (
	"context"
	"errors"
)

var (
	// ErrDocumentExists is returned when appending under a key already taken.
	// Stored documents are never overwritten.
	ErrDocumentExists = errors.New("document already exists")

	// ErrClosed is returned by engines after Close
	ErrClosed = errors.New("persistence engine closed")
)

// ScanFunc receives one stored document. Returning an error stops the scan
// and is passed back to the caller of Scan.
type ScanFunc func(key string, doc []byte) error

// Engine is an append-only document store. Documents are opaque JSON blobs
// keyed by time-ordered IDs, so key order is insertion order.
type Engine interface {
	// Append stores doc under key. Existing keys are rejected.
	Append(ctx context.Context, key string, doc []byte) error

	// Scan visits every document in key order. The doc slice is only valid
	// during the callback.
	Scan(ctx context.Context, fn ScanFunc) error

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Ping reports whether the engine can serve requests
	Ping(ctx context.Context) error

	Close() error
}

// Config holds persistence configuration
type Config struct {
	Type       string // "memory", "badger"
	DataDir    string
	SyncWrites bool
}
