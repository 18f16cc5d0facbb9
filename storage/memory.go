package storage

import (
	datastore "github.com/ipfs/go-datastore"
	dsync "github.com/ipfs/go-datastore/sync"
)

// NewDefaultMemory returns a mutex-wrapped map datastore, used when no
// storage kind is configured and throughout the tests.
func NewDefaultMemory() datastore.Batching {
	return dsync.MutexWrap(datastore.NewMapDatastore())
}
