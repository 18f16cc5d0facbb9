// Package eventlog persists the OwnershipTransferred events of each entity as
// a hash linked chain of cbor blocks, with a per entity index and head record.
package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	cid "github.com/ipfs/go-cid"
	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbornode "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log"
	multihash "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/quorumcontrol/ownable/ownership"
)

var logger = logging.Logger("eventlog")

var entitiesPrefix = datastore.NewKey("/entities")

var headKey = datastore.NewKey("head")

func init() {
	cbornode.RegisterCborType(eventNode{})
	cbornode.RegisterCborType(headNode{})
}

// eventNode is the stored form of an event. Addresses are kept as bytes.
type eventNode struct {
	Entity        []byte
	Sequence      uint64
	Previous      *cid.Cid
	PreviousOwner []byte
	NewOwner      []byte
}

type headNode struct {
	Sequence uint64
	Tip      cid.Cid
	Owner    []byte
}

// Record is one event as read back from the log.
type Record struct {
	Cid      cid.Cid
	Entity   common.Address
	Sequence uint64
	Previous *cid.Cid
	Event    ownership.OwnershipTransferred
}

// Head is the latest entry of a log and the owner it left in place.
type Head struct {
	Sequence uint64
	Tip      cid.Cid
	Owner    ownership.Identity
}

// Filter selects events by either of their indexed fields. Nil matches anything.
type Filter struct {
	PreviousOwner *ownership.Identity
	NewOwner      *ownership.Identity
}

func (f Filter) matches(r *Record) bool {
	if f.PreviousOwner != nil && *f.PreviousOwner != r.Event.PreviousOwner {
		return false
	}
	if f.NewOwner != nil && *f.NewOwner != r.Event.NewOwner {
		return false
	}
	return true
}

var _ ownership.EventLog = (*Log)(nil)

// Log is the event log of a single entity.
type Log struct {
	sync.RWMutex

	entity common.Address
	index  datastore.Batching
	blocks blockstore.Blockstore
	head   *Head

	subscribers map[int]chan *Record
	nextSub     int
}

func entityKey(entity common.Address) datastore.Key {
	return entitiesPrefix.ChildString(entity.Hex())
}

func sequenceKey(seq uint64) datastore.Key {
	return datastore.NewKey("events").ChildString(fmt.Sprintf("%020d", seq))
}

// Open returns the log of entity stored in ds, loading its head if it has one.
func Open(ds datastore.Batching, entity common.Address) (*Log, error) {
	l := &Log{
		entity:      entity,
		index:       namespace.Wrap(ds, entityKey(entity)),
		blocks:      blockstore.NewBlockstore(ds),
		subscribers: make(map[int]chan *Record),
	}

	headBits, err := l.index.Get(headKey)
	if err == datastore.ErrNotFound {
		return l, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error getting head")
	}
	hn := &headNode{}
	if err := cbornode.DecodeInto(headBits, hn); err != nil {
		return nil, errors.Wrap(err, "error decoding head")
	}
	l.head = &Head{
		Sequence: hn.Sequence,
		Tip:      hn.Tip,
		Owner:    common.BytesToAddress(hn.Owner),
	}
	return l, nil
}

// Exists reports whether entity has at least one event in ds.
func Exists(ds datastore.Datastore, entity common.Address) (bool, error) {
	return ds.Has(entityKey(entity).Child(headKey))
}

// Entities lists every entity with a log in ds.
func Entities(ds datastore.Datastore) ([]common.Address, error) {
	res, err := ds.Query(query.Query{Prefix: entitiesPrefix.String(), KeysOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "error querying entities")
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, errors.Wrap(err, "error reading entities")
	}
	var entities []common.Address
	for _, e := range entries {
		k := datastore.NewKey(e.Key)
		if k.Name() != headKey.Name() {
			continue
		}
		hex := k.Parent().Name()
		if !common.IsHexAddress(hex) {
			logger.Warningf("skipping unparseable entity key %s", e.Key)
			continue
		}
		entities = append(entities, common.HexToAddress(hex))
	}
	return entities, nil
}

func (l *Log) Entity() common.Address {
	return l.entity
}

// Head returns the latest entry; false when nothing has been appended yet.
func (l *Log) Head() (Head, bool) {
	l.RLock()
	defer l.RUnlock()
	if l.head == nil {
		return Head{}, false
	}
	return *l.head, true
}

// Append stores evt as the next block in the chain. The index entry and the
// new head are committed in one batch.
func (l *Log) Append(ctx context.Context, evt *ownership.OwnershipTransferred) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.Lock()
	defer l.Unlock()

	n := &eventNode{
		Entity:        l.entity.Bytes(),
		PreviousOwner: evt.PreviousOwner.Bytes(),
		NewOwner:      evt.NewOwner.Bytes(),
	}
	if l.head != nil {
		tip := l.head.Tip
		n.Sequence = l.head.Sequence + 1
		n.Previous = &tip
	}

	wrapped, err := cbornode.WrapObject(n, multihash.SHA2_256, -1)
	if err != nil {
		return errors.Wrap(err, "error wrapping event")
	}
	if err := l.blocks.Put(wrapped); err != nil {
		return errors.Wrap(err, "error storing event block")
	}

	newHead := &Head{Sequence: n.Sequence, Tip: wrapped.Cid(), Owner: evt.NewOwner}
	headBits, err := cbornode.DumpObject(&headNode{
		Sequence: newHead.Sequence,
		Tip:      newHead.Tip,
		Owner:    newHead.Owner.Bytes(),
	})
	if err != nil {
		return errors.Wrap(err, "error encoding head")
	}

	batch, err := l.index.Batch()
	if err != nil {
		return errors.Wrap(err, "error creating batch")
	}
	if err := batch.Put(sequenceKey(n.Sequence), wrapped.Cid().Bytes()); err != nil {
		return errors.Wrap(err, "error putting index")
	}
	if err := batch.Put(headKey, headBits); err != nil {
		return errors.Wrap(err, "error putting head")
	}
	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "error committing")
	}
	l.head = newHead

	rec := &Record{
		Cid:      wrapped.Cid(),
		Entity:   l.entity,
		Sequence: n.Sequence,
		Previous: n.Previous,
		Event:    *evt,
	}
	logger.Debugf("%s appended %d %s", l.entity.Hex(), rec.Sequence, evt)
	l.publish(rec)
	return nil
}

// Get returns the record at seq.
func (l *Log) Get(seq uint64) (*Record, error) {
	cidBits, err := l.index.Get(sequenceKey(seq))
	if err != nil {
		return nil, errors.Wrapf(err, "error getting index %d", seq)
	}
	c, err := cid.Cast(cidBits)
	if err != nil {
		return nil, errors.Wrapf(err, "error casting cid at %d", seq)
	}
	blk, err := l.blocks.Get(c)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting block %s", c)
	}
	n := &eventNode{}
	if err := cbornode.DecodeInto(blk.RawData(), n); err != nil {
		return nil, errors.Wrapf(err, "error decoding block %s", c)
	}
	return &Record{
		Cid:      c,
		Entity:   common.BytesToAddress(n.Entity),
		Sequence: n.Sequence,
		Previous: n.Previous,
		Event: ownership.OwnershipTransferred{
			PreviousOwner: common.BytesToAddress(n.PreviousOwner),
			NewOwner:      common.BytesToAddress(n.NewOwner),
		},
	}, nil
}

// Replay calls fn for every record in order, stopping at the first error.
func (l *Log) Replay(ctx context.Context, fn func(*Record) error) error {
	head, ok := l.Head()
	if !ok {
		return nil
	}
	for seq := uint64(0); seq <= head.Sequence; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := l.Get(seq)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the records matching f, oldest first.
func (l *Log) Events(ctx context.Context, f Filter) ([]*Record, error) {
	var records []*Record
	err := l.Replay(ctx, func(r *Record) error {
		if f.matches(r) {
			records = append(records, r)
		}
		return nil
	})
	return records, err
}

// Verify walks the chain checking sequence numbers, links and that the last
// event agrees with the head.
func (l *Log) Verify(ctx context.Context) error {
	head, ok := l.Head()
	if !ok {
		return nil
	}
	var (
		prev  *cid.Cid
		owner = ownership.Zero
	)
	err := l.Replay(ctx, func(r *Record) error {
		switch {
		case r.Entity != l.entity:
			return fmt.Errorf("event %d belongs to %s", r.Sequence, r.Entity.Hex())
		case (prev == nil) != (r.Previous == nil):
			return fmt.Errorf("event %d has a broken link", r.Sequence)
		case prev != nil && !prev.Equals(*r.Previous):
			return fmt.Errorf("event %d links to %s, expected %s", r.Sequence, r.Previous, prev)
		case r.Event.PreviousOwner != owner:
			return fmt.Errorf("event %d previous owner %s, expected %s", r.Sequence, r.Event.PreviousOwner.Hex(), owner.Hex())
		}
		c := r.Cid
		prev = &c
		owner = r.Event.NewOwner
		return nil
	})
	if err != nil {
		return err
	}
	if !prev.Equals(head.Tip) || owner != head.Owner {
		return fmt.Errorf("head does not match the last event")
	}
	return nil
}

// Subscribe delivers every record appended after the call. A subscriber whose
// buffer is full misses records rather than blocking Append. The returned func
// unsubscribes and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan *Record, func()) {
	ch := make(chan *Record, buffer)
	l.Lock()
	id := l.nextSub
	l.nextSub++
	l.subscribers[id] = ch
	l.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.Lock()
			delete(l.subscribers, id)
			l.Unlock()
			close(ch)
		})
	}
}

// Subscribers is the number of live subscriptions.
func (l *Log) Subscribers() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.subscribers)
}

// publish expects the write lock to be held
func (l *Log) publish(rec *Record) {
	for id, ch := range l.subscribers {
		select {
		case ch <- rec:
		default:
			logger.Warningf("subscriber %d of %s is full, dropping event %d", id, l.entity.Hex(), rec.Sequence)
		}
	}
}
