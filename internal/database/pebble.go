package database

import (
	"os"

	"github.com/cockroachdb/pebble"
)

// OpenPebble opens (creating if needed) an embedded Pebble store in dir.
// The WAL stays enabled; every meal write is synced.
func OpenPebble(dir string) (*pebble.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return pebble.Open(dir, &pebble.Options{})
}
