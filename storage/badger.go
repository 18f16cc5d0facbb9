package storage

import (
	"os"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/dgraph-io/badger/options"
	datastore "github.com/ipfs/go-datastore"
	dsbadger "github.com/ipfs/go-ds-badger"
	"github.com/pkg/errors"
)

// NewDefaultBadger is a convenience function to produce our "standard"
// badger with the optional low memory mode
func NewDefaultBadger(path string) (datastore.Batching, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrap(err, "error creating badger directory")
	}

	opts := badger.DefaultOptions("")
	opts.Dir = path
	opts.ValueDir = path

	lowMemoryModeVal, lowMemoryModeSet := os.LookupEnv("BADGERDB_LOW_MEMORY_MODE")
	if lowMemoryModeSet && strings.ToLower(lowMemoryModeVal) != "false" {
		opts.ValueLogLoadingMode = options.FileIO
		opts.TableLoadingMode = options.FileIO
	}

	return dsbadger.NewDatastore(path, &dsbadger.Options{Options: opts})
}
