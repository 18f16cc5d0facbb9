package storage

import (
	"crypto/rand"
	"fmt"
	"io"

	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// compile time assertion that EncryptedStore can stand in for any
// batching datastore
var _ datastore.Batching = (*EncryptedStore)(nil)

var saltKey = datastore.NewKey("_ownable_encrypted_salt")

// EncryptedStore encrypts values (never keys) of the wrapped datastore with a
// key derived from a passphrase.
type EncryptedStore struct {
	datastore.Batching
	secretKey  *[32]byte
	isUnlocked bool
}

// EncryptedWrapper wraps store; the result must be unlocked before use.
func EncryptedWrapper(store datastore.Batching) *EncryptedStore {
	return &EncryptedStore{
		Batching: store,
	}
}

// Unlock derives the secret key from passphrase and the store's salt.
func (es *EncryptedStore) Unlock(passphrase string) error {
	salt, err := es.getSalt()
	if err != nil {
		return err
	}
	dk, err := scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, 32)
	if err != nil {
		return fmt.Errorf("error deriving key: %v", err)
	}
	var key [32]byte
	copy(key[:], dk)
	es.secretKey = &key
	es.isUnlocked = true
	return nil
}

func (es *EncryptedStore) Put(key datastore.Key, value []byte) error {
	if !es.isUnlocked {
		return fmt.Errorf("you must unlock this storage before using")
	}

	encrypted, err := es.encryptedValue(value)
	if err != nil {
		return fmt.Errorf("error encrypting: %v", err)
	}
	return es.Batching.Put(key, encrypted)
}

func (es *EncryptedStore) Get(key datastore.Key) ([]byte, error) {
	if !es.isUnlocked {
		return nil, fmt.Errorf("you must unlock this storage before using")
	}
	encryptedBytes, err := es.Batching.Get(key)
	if err != nil {
		// ErrNotFound is passed through untouched so callers can compare
		return nil, err
	}
	if len(encryptedBytes) == 0 {
		return nil, nil
	}
	decrypted, err := es.decryptedValue(encryptedBytes)
	if err != nil {
		return nil, fmt.Errorf("error decrypting key (%s): %v", key, err)
	}

	return decrypted, nil
}

// GetSize reports the size of the plaintext, not of what is stored.
func (es *EncryptedStore) GetSize(key datastore.Key) (int, error) {
	value, err := es.Get(key)
	if err != nil {
		return -1, err
	}
	return len(value), nil
}

// Query runs only the prefix against the wrapped store. Filters, orders,
// offset and limit are applied here, after decryption, since the wrapped
// store only ever sees ciphertext.
func (es *EncryptedStore) Query(q query.Query) (query.Results, error) {
	if !es.isUnlocked {
		return nil, fmt.Errorf("you must unlock this storage before using")
	}
	inner := query.Query{
		Prefix:   q.Prefix,
		KeysOnly: q.KeysOnly && len(q.Filters) == 0 && len(q.Orders) == 0,
	}
	results, err := es.Batching.Query(inner)
	if err != nil {
		return nil, err
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, err
	}

	plain := make([]query.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Key == saltKey.String() {
			continue
		}
		if inner.KeysOnly {
			entry.Size = -1
			plain = append(plain, entry)
			continue
		}
		if len(entry.Value) > 0 {
			decrypted, err := es.decryptedValue(entry.Value)
			if err != nil {
				return nil, fmt.Errorf("error decrypting key (%s): %v", entry.Key, err)
			}
			entry.Value = decrypted
		}
		entry.Size = len(entry.Value)
		plain = append(plain, entry)
	}
	return query.NaiveQueryApply(q, query.ResultsWithEntries(inner, plain)), nil
}

func (es *EncryptedStore) Batch() (datastore.Batch, error) {
	if !es.isUnlocked {
		return nil, fmt.Errorf("you must unlock this storage before using")
	}
	b, err := es.Batching.Batch()
	if err != nil {
		return nil, err
	}
	return &encryptedBatch{Batch: b, store: es}, nil
}

type encryptedBatch struct {
	datastore.Batch
	store *EncryptedStore
}

func (eb *encryptedBatch) Put(key datastore.Key, value []byte) error {
	encrypted, err := eb.store.encryptedValue(value)
	if err != nil {
		return fmt.Errorf("error encrypting: %v", err)
	}
	return eb.Batch.Put(key, encrypted)
}

func (es *EncryptedStore) encryptedValue(value []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("error getting nonce: %v", err)
	}

	encryptedValue := secretbox.Seal(nonce[:], value, &nonce, es.secretKey)
	if encryptedValue == nil {
		return nil, fmt.Errorf("error setting")
	}
	return encryptedValue, nil
}

func (es *EncryptedStore) decryptedValue(encryptedBytes []byte) ([]byte, error) {
	if len(encryptedBytes) < 24 {
		return nil, fmt.Errorf("value too short")
	}
	var decryptNonce [24]byte
	copy(decryptNonce[:], encryptedBytes[:24])
	decrypted, ok := secretbox.Open(nil, encryptedBytes[24:], &decryptNonce, es.secretKey)
	if !ok {
		return nil, fmt.Errorf("error decrypting")
	}
	return decrypted, nil
}

func (es *EncryptedStore) getSalt() ([]byte, error) {
	salt, err := es.Batching.Get(saltKey)
	if err != nil && err != datastore.ErrNotFound {
		return nil, fmt.Errorf("error getting salt key: %v", err)
	}
	if len(salt) > 0 {
		return salt, nil
	}

	salt = make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	if err := es.Batching.Put(saltKey, salt); err != nil {
		return nil, fmt.Errorf("error storing salt: %v", err)
	}
	return salt, nil
}
