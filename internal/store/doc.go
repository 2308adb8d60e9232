// Package store keeps a small list of items with an optional selection
// and persists every change as a JSON snapshot:
//
//	{"state":{"items":[{"id":"1","name":"first"}],"selectedId":"1"},"version":1}
//
// Snapshots live in a file, under a Redis key ("store-storage" by
// default) or in memory. A snapshot that does not decode or validate is
// discarded with a warning and the store starts empty.
package store
