// Package storage builds the datastores the ledger persists into.
package storage

import (
	"fmt"
	"path"
	"strings"

	datastore "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log"
)

var logger = logging.Logger("storage")

// Config is the human readable description of a datastore.
type Config struct {
	Kind string
	Path string // for badger

	// Passphrase, when set, encrypts every value with EncryptedWrapper
	Passphrase string

	// remaining are For s3
	RegionEndpoint string
	Bucket         string
	Region         string
	AccessKey      string
	SecretKey      string
	LocalS3        bool
	RootDirectory  string
}

// ToDatastore opens the configured datastore. The name is only used by badger,
// which needs its own directory per store.
func (c *Config) ToDatastore(name string) (datastore.Batching, error) {
	var (
		ds  datastore.Batching
		err error
	)
	switch strings.ToLower(c.Kind) {
	case "", "memory": // not-specified means memory
		ds = NewDefaultMemory()
	case "badger":
		ds, err = NewDefaultBadger(path.Join(c.Path, name))
	case "s3":
		ds, err = NewS3(c)
	default:
		return nil, fmt.Errorf("error, unknown type: %s", c.Kind)
	}
	if err != nil {
		return nil, err
	}

	if c.Passphrase != "" {
		encrypted := EncryptedWrapper(ds)
		if err := encrypted.Unlock(c.Passphrase); err != nil {
			return nil, fmt.Errorf("error unlocking: %v", err)
		}
		return encrypted, nil
	}
	return ds, nil
}
