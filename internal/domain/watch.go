package domain

import "time"

// WatchScopeKind distinguishes a bucket-wide subscription from a
// single-key subscription (spec §3 Watch Subscription).
type WatchScopeKind string

const (
	WatchScopeBucket WatchScopeKind = "bucket"
	WatchScopeKey    WatchScopeKind = "key"
)

// WatchScope identifies what a subscriber wants to hear about.
type WatchScope struct {
	Kind   WatchScopeKind
	Tenant string
	Bucket string
	Key    string // only set when Kind == WatchScopeKey
}

// WatchEvent is delivered to subscribers over the registry and, at the
// HTTP edge, serialized onto the websocket connection.
type WatchEvent struct {
	Type      KVOperation
	Tenant    string
	Bucket    string
	Key       string
	Value     []byte
	Revision  int64
	Timestamp time.Time
}

// ObjectWatchEvent is the simpler event shape for object bucket watchers
// (spec §6).
type ObjectWatchEvent struct {
	Type      string // "PUT" | "DELETE"
	Tenant    string
	Bucket    string
	Name      string
	Size      *int64
	Digest    string
	Timestamp time.Time
}
