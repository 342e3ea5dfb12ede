// Package store provides the durable storage abstractions behind the ward
// registry: a named-key JSON document store (the live database and the user
// list each live under one key, whole-value writes, no cross-key
// transactions) and an append-only backup log keyed by timestamp.
package store

import "context"

// Document keys in use across the application.
const (
	WardDBKey = "ward-db"
	UsersKey  = "ward-users"
)

// DocumentStore is a small key/value store for JSON documents. Load reports
// ok=false when the key has never been saved. Save overwrites the whole value.
type DocumentStore interface {
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
}

// Entry is one snapshot in the backup log. Timestamp is epoch milliseconds
// and acts as the primary key.
type Entry struct {
	Timestamp int64
	User      string
	Data      []byte
}

// BackupStore is an append-only log of document snapshots. Entries are never
// mutated, only appended or bulk-cleared. List may return entries in any
// order; callers sort.
type BackupStore interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, timestamp int64) (Entry, bool, error)
	Clear(ctx context.Context) error
}
