package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumcontrol/ownable/ownership"
	"github.com/quorumcontrol/ownable/storage"
)

var (
	entity = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func newPopulatedLog(t *testing.T, ds datastore.Batching) *Log {
	ctx := context.Background()
	l, err := Open(ds, entity)
	require.Nil(t, err)

	r, err := ownership.New(ctx, alice, l)
	require.Nil(t, err)
	require.Nil(t, r.TransferOwnership(ctx, alice, bob))
	require.Nil(t, r.RenounceOwnership(ctx, bob))
	return l
}

func TestEmptyLog(t *testing.T) {
	l, err := Open(storage.NewDefaultMemory(), entity)
	require.Nil(t, err)

	_, ok := l.Head()
	assert.False(t, ok)

	records, err := l.Events(context.Background(), Filter{})
	require.Nil(t, err)
	assert.Empty(t, records)
	assert.Nil(t, l.Verify(context.Background()))
}

func TestAppendAndReplay(t *testing.T) {
	ctx := context.Background()
	l := newPopulatedLog(t, storage.NewDefaultMemory())

	head, ok := l.Head()
	require.True(t, ok)
	assert.Equal(t, uint64(2), head.Sequence)
	assert.Equal(t, ownership.Zero, head.Owner)

	records, err := l.Events(ctx, Filter{})
	require.Nil(t, err)
	require.Len(t, records, 3)

	expected := []ownership.OwnershipTransferred{
		{PreviousOwner: ownership.Zero, NewOwner: alice},
		{PreviousOwner: alice, NewOwner: bob},
		{PreviousOwner: bob, NewOwner: ownership.Zero},
	}
	for i, r := range records {
		assert.Equal(t, uint64(i), r.Sequence)
		assert.Equal(t, entity, r.Entity)
		assert.Equal(t, expected[i], r.Event)
	}
	assert.Nil(t, records[0].Previous)
	assert.True(t, records[1].Previous.Equals(records[0].Cid))
	assert.True(t, records[2].Previous.Equals(records[1].Cid))
	assert.True(t, head.Tip.Equals(records[2].Cid))

	assert.Nil(t, l.Verify(ctx))
}

func TestReopen(t *testing.T) {
	ds := storage.NewDefaultMemory()
	original := newPopulatedLog(t, ds)
	originalHead, _ := original.Head()

	reopened, err := Open(ds, entity)
	require.Nil(t, err)
	head, ok := reopened.Head()
	require.True(t, ok)
	assert.Equal(t, originalHead, head)
	assert.Nil(t, reopened.Verify(context.Background()))

	exists, err := Exists(ds, entity)
	require.Nil(t, err)
	assert.True(t, exists)

	exists, err = Exists(ds, alice)
	require.Nil(t, err)
	assert.False(t, exists)
}

func TestEncryptedStore(t *testing.T) {
	ds := storage.EncryptedWrapper(storage.NewDefaultMemory())
	require.Nil(t, ds.Unlock("secret"))
	l := newPopulatedLog(t, ds)
	assert.Nil(t, l.Verify(context.Background()))
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	l := newPopulatedLog(t, storage.NewDefaultMemory())

	records, err := l.Events(ctx, Filter{NewOwner: &bob})
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, alice, records[0].Event.PreviousOwner)

	zero := ownership.Zero
	records, err = l.Events(ctx, Filter{PreviousOwner: &zero})
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(0), records[0].Sequence)

	records, err = l.Events(ctx, Filter{PreviousOwner: &alice, NewOwner: &alice})
	require.Nil(t, err)
	assert.Empty(t, records)
}

func TestEntities(t *testing.T) {
	ds := storage.NewDefaultMemory()
	newPopulatedLog(t, ds)

	other := common.HexToAddress("0x00000000000000000000000000000000000e0002")
	l, err := Open(ds, other)
	require.Nil(t, err)
	_, err = ownership.New(context.Background(), bob, l)
	require.Nil(t, err)

	entities, err := Entities(ds)
	require.Nil(t, err)
	assert.ElementsMatch(t, []common.Address{entity, other}, entities)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	l, err := Open(storage.NewDefaultMemory(), entity)
	require.Nil(t, err)

	ch, cancel := l.Subscribe(10)
	r, err := ownership.New(ctx, alice, l)
	require.Nil(t, err)
	require.Nil(t, r.TransferOwnership(ctx, alice, bob))

	for _, expected := range []common.Address{alice, bob} {
		select {
		case rec := <-ch:
			assert.Equal(t, expected, rec.Event.NewOwner)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for record")
		}
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	require.Nil(t, r.TransferOwnership(ctx, bob, alice))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	l, err := Open(storage.NewDefaultMemory(), entity)
	require.Nil(t, err)

	ch, cancel := l.Subscribe(1)
	defer cancel()

	r, err := ownership.New(ctx, alice, l)
	require.Nil(t, err)
	require.Nil(t, r.TransferOwnership(ctx, alice, bob))
	require.Nil(t, r.TransferOwnership(ctx, bob, alice))

	rec := <-ch
	assert.Equal(t, uint64(0), rec.Sequence)
	head, _ := l.Head()
	assert.Equal(t, uint64(2), head.Sequence)
}

func TestAppendCanceled(t *testing.T) {
	l, err := Open(storage.NewDefaultMemory(), entity)
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ownership.New(ctx, alice, l)
	require.NotNil(t, err)

	_, ok := l.Head()
	assert.False(t, ok)
}
