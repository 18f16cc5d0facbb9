package storage

import (
	"io/ioutil"
	"os"
	"testing"

	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigToDatastore(t *testing.T) {
	c := &Config{}
	ds, err := c.ToDatastore("datastore")
	require.Nil(t, err)
	require.NotNil(t, ds)

	_, err = (&Config{Kind: "floppy"}).ToDatastore("datastore")
	require.NotNil(t, err)
}

func TestConfigToDatastoreEncrypted(t *testing.T) {
	c := &Config{Kind: "memory", Passphrase: "secret"}
	ds, err := c.ToDatastore("datastore")
	require.Nil(t, err)
	_, ok := ds.(*EncryptedStore)
	assert.True(t, ok)

	k := datastore.NewKey("k")
	require.Nil(t, ds.Put(k, []byte("v")))
	v, err := ds.Get(k)
	require.Nil(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestConfigToDatastoreBadger(t *testing.T) {
	dir, err := ioutil.TempDir("", "ownable-storage")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	c := &Config{Kind: "Badger", Path: dir}
	ds, err := c.ToDatastore("datastore")
	require.Nil(t, err)
	defer ds.Close()
	_, err = os.Stat(dir + "/datastore")
	require.Nil(t, err)
}
