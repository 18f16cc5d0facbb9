// Package ledger hosts many owned entities and runs every call against them
// one at a time inside a single actor, the way a ledger serializes the
// transactions touching a contract.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	datastore "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/ownership"
)

const (
	DefaultCacheSize = 500
	DefaultTimeout   = 10 * time.Second
)

// ErrEntityNotFound is returned for addresses that were never deployed.
var ErrEntityNotFound = fmt.Errorf("entity not found")

// ErrNotStarted is returned by calls made before Start or after Stop.
var ErrNotStarted = fmt.Errorf("ledger is not started")

// ErrOutcomeUnknown is returned when a deploy or transfer reached the actor
// but no answer came back within the ledger's timeout. The change may or may
// not have been applied; read the owner or history to find out.
var ErrOutcomeUnknown = fmt.Errorf("ledger did not answer in time, outcome unknown")

type NewLedgerOptions struct {
	Datastore        datastore.Batching
	Name             string                   // optional
	CacheSize        int                      // optional, DefaultCacheSize when 0
	Timeout          time.Duration            // optional, DefaultTimeout when 0
	Capabilities     []capability.InterfaceID // optional, advertised by every entity
	RootActorContext *actor.RootContext       // optional
}

type entity struct {
	registry *ownership.Registry
	log      *eventlog.Log
}

// Ledger is safe for concurrent use; the actor is the only goroutine that
// touches registries.
type Ledger struct {
	name         string
	ds           datastore.Batching
	timeout      time.Duration
	capabilities []capability.InterfaceID

	// cache and pinned are only used from inside the actor
	cache  *lru.Cache
	pinned map[common.Address]*entity

	logger logging.EventLogger

	pidLock     sync.RWMutex
	pid         *actor.PID
	stopped     chan struct{}
	rootContext *actor.RootContext
}

func New(opts *NewLedgerOptions) (*Ledger, error) {
	if opts.Datastore == nil {
		return nil, fmt.Errorf("a datastore is required")
	}

	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating cache: %w", err)
	}

	// fail fast on a bad capability rather than on first deploy
	if _, err := capability.NewTable(opts.Capabilities...); err != nil {
		return nil, err
	}

	l := &Ledger{
		name:         opts.Name,
		ds:           opts.Datastore,
		timeout:      opts.Timeout,
		capabilities: opts.Capabilities,
		cache:        cache,
		pinned:       make(map[common.Address]*entity),
		rootContext:  opts.RootActorContext,
	}
	if l.name == "" {
		l.name = "ledger"
	}
	if l.timeout == 0 {
		l.timeout = DefaultTimeout
	}
	if l.rootContext == nil {
		l.rootContext = actor.EmptyRootContext
	}
	l.logger = logging.Logger(l.name)
	return l, nil
}

// Start spawns the actor. It is stopped when ctx is done or Stop is called.
func (l *Ledger) Start(ctx context.Context) error {
	l.pidLock.Lock()
	if l.pid != nil {
		l.pidLock.Unlock()
		return fmt.Errorf("ledger %s already started", l.name)
	}
	// prefixed so that several ledgers can share a root context
	pid := l.rootContext.SpawnPrefix(actor.PropsFromFunc(l.Receive), l.name+"-")
	stopped := make(chan struct{})
	l.pid = pid
	l.stopped = stopped
	l.pidLock.Unlock()
	l.logger.Debugf("pid: %s", pid.Id)

	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-stopped:
		}
	}()
	return nil
}

// Stop returns once the actor has worked through every request queued before
// it, so the datastore may be closed right after.
func (l *Ledger) Stop() {
	l.pidLock.Lock()
	pid := l.pid
	stopped := l.stopped
	l.pid = nil
	l.stopped = nil
	l.pidLock.Unlock()
	if pid == nil {
		return
	}
	close(stopped)
	if err := l.rootContext.PoisonFuture(pid).Wait(); err != nil {
		l.logger.Warningf("error waiting for ledger actor to stop: %v", err)
	}
	l.logger.Infof("ledger stopped")
}

func (l *Ledger) PID() *actor.PID {
	l.pidLock.RLock()
	defer l.pidLock.RUnlock()
	return l.pid
}

// Deploy creates a new entity owned by owner. Its address is derived from
// creator and the number of entities creator deployed before.
func (l *Ledger) Deploy(ctx context.Context, creator ownership.Identity, owner ownership.Identity) (common.Address, error) {
	val, err := l.mutate(&deployRequest{ctx: ctx, creator: creator, owner: owner})
	if err != nil {
		return common.Address{}, err
	}
	return val.(common.Address), nil
}

func (l *Ledger) Owner(ctx context.Context, addr common.Address) (ownership.Identity, error) {
	val, err := l.call(ctx, &ownerRequest{ctx: ctx, entity: addr})
	if err != nil {
		return ownership.Zero, err
	}
	return val.(ownership.Identity), nil
}

// TransferOwnership runs the transfer on the entity's registry as caller.
// A ctx that is already done when the actor picks the request up leaves the
// entity untouched. Once the actor has started the transfer, TransferOwnership
// waits for its result regardless of ctx.
func (l *Ledger) TransferOwnership(ctx context.Context, addr common.Address, caller ownership.Identity, newOwner ownership.Identity) error {
	_, err := l.mutate(&transferRequest{ctx: ctx, entity: addr, caller: caller, newOwner: newOwner})
	return err
}

func (l *Ledger) RenounceOwnership(ctx context.Context, addr common.Address, caller ownership.Identity) error {
	return l.TransferOwnership(ctx, addr, caller, ownership.Zero)
}

func (l *Ledger) SupportsInterface(ctx context.Context, addr common.Address, id capability.InterfaceID) (bool, error) {
	val, err := l.call(ctx, &supportsRequest{ctx: ctx, entity: addr, id: id})
	if err != nil {
		return false, err
	}
	return val.(bool), nil
}

// History returns the entity's events matching filter, oldest first.
func (l *Ledger) History(ctx context.Context, addr common.Address, filter eventlog.Filter) ([]*eventlog.Record, error) {
	val, err := l.call(ctx, &historyRequest{ctx: ctx, entity: addr, filter: filter})
	if err != nil {
		return nil, err
	}
	return val.([]*eventlog.Record), nil
}

// Verify checks the integrity of the entity's event chain.
func (l *Ledger) Verify(ctx context.Context, addr common.Address) error {
	_, err := l.call(ctx, &verifyRequest{ctx: ctx, entity: addr})
	return err
}

// Subscribe streams the entity's future events. Call the returned func to
// stop; the channel is closed afterwards.
func (l *Ledger) Subscribe(ctx context.Context, addr common.Address, buffer int) (<-chan *eventlog.Record, func(), error) {
	val, err := l.call(ctx, &subscribeRequest{entity: addr, buffer: buffer})
	if err != nil {
		return nil, nil, err
	}
	sub := val.(*subscription)
	return sub.ch, sub.cancel, nil
}

func (l *Ledger) Entities(ctx context.Context) ([]common.Address, error) {
	val, err := l.call(ctx, &entitiesRequest{})
	if err != nil {
		return nil, err
	}
	return val.([]common.Address), nil
}

// call is used for reads, which can be abandoned as soon as ctx is done.
func (l *Ledger) call(ctx context.Context, msg interface{}) (interface{}, error) {
	pid := l.PID()
	if pid == nil {
		return nil, ErrNotStarted
	}

	fut := l.rootContext.RequestFuture(pid, msg, l.timeout)

	var (
		res  interface{}
		err  error
		done = make(chan struct{})
	)
	go func() {
		res, err = fut.Result()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	if err != nil {
		return nil, fmt.Errorf("error waiting for ledger: %w", err)
	}
	return unwrap(res)
}

// mutate is used for deploys and transfers. The actor checks the request's
// ctx before changing anything, so mutate never gives up early: its error
// always matches what happened to the entity, except for ErrOutcomeUnknown.
func (l *Ledger) mutate(msg interface{}) (interface{}, error) {
	pid := l.PID()
	if pid == nil {
		return nil, ErrNotStarted
	}

	res, err := l.rootContext.RequestFuture(pid, msg, l.timeout).Result()
	if err == actor.ErrTimeout {
		return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	if err != nil {
		return nil, fmt.Errorf("error waiting for ledger: %w", err)
	}
	return unwrap(res)
}

func unwrap(res interface{}) (interface{}, error) {
	resp, ok := res.(*response)
	if !ok {
		return nil, fmt.Errorf("unexpected response %T", res)
	}
	return resp.value, resp.err
}
