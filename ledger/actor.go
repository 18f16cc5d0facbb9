package ledger

import (
	"context"
	"fmt"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	datastore "github.com/ipfs/go-datastore"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/metrics"
	"github.com/quorumcontrol/ownable/ownership"
	"github.com/quorumcontrol/ownable/tracing"
)

var noncePrefix = datastore.NewKey("/nonces")

type deployRequest struct {
	ctx     context.Context
	creator ownership.Identity
	owner   ownership.Identity
}

type ownerRequest struct {
	ctx    context.Context
	entity common.Address
}

type transferRequest struct {
	ctx      context.Context
	entity   common.Address
	caller   ownership.Identity
	newOwner ownership.Identity
}

type supportsRequest struct {
	ctx    context.Context
	entity common.Address
	id     capability.InterfaceID
}

type historyRequest struct {
	ctx    context.Context
	entity common.Address
	filter eventlog.Filter
}

type verifyRequest struct {
	ctx    context.Context
	entity common.Address
}

type subscribeRequest struct {
	entity common.Address
	buffer int
}

type unpinRequest struct {
	entity common.Address
}

type entitiesRequest struct{}

type response struct {
	value interface{}
	err   error
}

type subscription struct {
	ch     <-chan *eventlog.Record
	cancel func()
}

func (l *Ledger) Receive(actorContext actor.Context) {
	switch msg := actorContext.Message().(type) {
	case *actor.Started:
		l.logger.Debugf("ledger actor started")
	case *deployRequest:
		addr, err := l.handleDeploy(msg)
		actorContext.Respond(&response{value: addr, err: err})
	case *ownerRequest:
		owner, err := l.handleOwner(msg)
		actorContext.Respond(&response{value: owner, err: err})
	case *transferRequest:
		actorContext.Respond(&response{err: l.handleTransfer(msg)})
	case *supportsRequest:
		supported, err := l.handleSupports(msg)
		actorContext.Respond(&response{value: supported, err: err})
	case *historyRequest:
		records, err := l.handleHistory(msg)
		actorContext.Respond(&response{value: records, err: err})
	case *verifyRequest:
		actorContext.Respond(&response{err: l.handleVerify(msg)})
	case *subscribeRequest:
		sub, err := l.handleSubscribe(msg)
		actorContext.Respond(&response{value: sub, err: err})
	case *unpinRequest:
		l.handleUnpin(msg)
	case *entitiesRequest:
		entities, err := eventlog.Entities(l.ds)
		actorContext.Respond(&response{value: entities, err: err})
	}
}

func (l *Ledger) registryOptions() []ownership.Option {
	if len(l.capabilities) == 0 {
		return nil
	}
	return []ownership.Option{ownership.WithCapabilities(l.capabilities...)}
}

// load returns the entity from the pinned set, the cache, or its stored head.
func (l *Ledger) load(addr common.Address) (*entity, error) {
	if e, ok := l.pinned[addr]; ok {
		return e, nil
	}
	if cached, ok := l.cache.Get(addr); ok {
		return cached.(*entity), nil
	}

	evlog, err := eventlog.Open(l.ds, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening log of %s", addr.Hex())
	}
	head, ok := evlog.Head()
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrEntityNotFound)
	}
	reg, err := ownership.Restore(head.Owner, evlog, l.registryOptions()...)
	if err != nil {
		return nil, err
	}
	e := &entity{registry: reg, log: evlog}
	l.cacheEntity(addr, e)
	l.logger.Debugf("loaded %s at %d", addr.Hex(), head.Sequence)
	return e, nil
}

func (l *Ledger) cacheEntity(addr common.Address, e *entity) {
	l.cache.Add(addr, e)
	metrics.SetLoadedEntities(l.cache.Len() + len(l.pinned))
}

func nonceKey(creator ownership.Identity) datastore.Key {
	return noncePrefix.ChildString(creator.Hex())
}

func (l *Ledger) nonce(creator ownership.Identity) (uint64, error) {
	bits, err := l.ds.Get(nonceKey(creator))
	if err == datastore.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error getting nonce")
	}
	var nonce uint64
	if err := cbornode.DecodeInto(bits, &nonce); err != nil {
		return 0, errors.Wrap(err, "error decoding nonce")
	}
	return nonce, nil
}

func (l *Ledger) handleDeploy(msg *deployRequest) (addr common.Address, err error) {
	span, ctx := tracing.StartSpan(msg.ctx, "ledger.Deploy")
	defer func() { tracing.FinishWithError(span, err) }()

	// the caller may have given up while the request was queued
	if err := ctx.Err(); err != nil {
		return addr, err
	}

	nonce, err := l.nonce(msg.creator)
	if err != nil {
		return addr, err
	}
	addr = crypto.CreateAddress(msg.creator, nonce)
	span.SetTag("entity", addr.Hex())

	exists, err := eventlog.Exists(l.ds, addr)
	if err != nil {
		return addr, errors.Wrap(err, "error checking entity")
	}
	if exists {
		return addr, fmt.Errorf("entity %s already exists", addr.Hex())
	}

	// bump the nonce first: a failed deploy must not hand its address out twice
	nonceBits, err := cbornode.DumpObject(nonce + 1)
	if err != nil {
		return addr, errors.Wrap(err, "error encoding nonce")
	}
	if err := l.ds.Put(nonceKey(msg.creator), nonceBits); err != nil {
		return addr, errors.Wrap(err, "error storing nonce")
	}

	evlog, err := eventlog.Open(l.ds, addr)
	if err != nil {
		return addr, errors.Wrap(err, "error opening log")
	}
	reg, err := ownership.New(ctx, msg.owner, evlog, l.registryOptions()...)
	if err != nil {
		return addr, err
	}
	l.cacheEntity(addr, &entity{registry: reg, log: evlog})

	metrics.IncDeploys()
	l.logger.Infof("deployed %s for %s owned by %s", addr.Hex(), msg.creator.Hex(), msg.owner.Hex())
	return addr, nil
}

func (l *Ledger) handleOwner(msg *ownerRequest) (owner ownership.Identity, err error) {
	span, _ := tracing.StartSpan(msg.ctx, "ledger.Owner")
	span.SetTag("entity", msg.entity.Hex())
	defer func() { tracing.FinishWithError(span, err) }()

	e, err := l.load(msg.entity)
	if err != nil {
		return ownership.Zero, err
	}
	return e.registry.Owner(), nil
}

func (l *Ledger) handleTransfer(msg *transferRequest) (err error) {
	span, ctx := tracing.StartSpan(msg.ctx, "ledger.TransferOwnership")
	span.SetTag("entity", msg.entity.Hex())
	defer func() { tracing.FinishWithError(span, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := l.load(msg.entity)
	if err != nil {
		return err
	}

	previous := e.registry.Owner()
	err = e.registry.TransferOwnership(ctx, msg.caller, msg.newOwner)
	if err != nil {
		if ownership.IsUnauthorized(err) {
			metrics.IncUnauthorized()
			l.logger.Infof("rejected transfer of %s by %s", msg.entity.Hex(), msg.caller.Hex())
		}
		return err
	}

	metrics.IncTransfers()
	if msg.newOwner == ownership.Zero {
		metrics.IncRenunciations()
		l.logger.Infof("%s renounced by %s", msg.entity.Hex(), previous.Hex())
		return nil
	}
	l.logger.Infof("%s transferred from %s to %s", msg.entity.Hex(), previous.Hex(), msg.newOwner.Hex())
	return nil
}

func (l *Ledger) handleSupports(msg *supportsRequest) (supported bool, err error) {
	span, _ := tracing.StartSpan(msg.ctx, "ledger.SupportsInterface")
	span.SetTag("entity", msg.entity.Hex())
	span.SetTag("interface", msg.id.String())
	defer func() { tracing.FinishWithError(span, err) }()

	e, err := l.load(msg.entity)
	if err != nil {
		return false, err
	}
	return e.registry.SupportsInterface(msg.id), nil
}

func (l *Ledger) handleHistory(msg *historyRequest) (records []*eventlog.Record, err error) {
	span, ctx := tracing.StartSpan(msg.ctx, "ledger.History")
	span.SetTag("entity", msg.entity.Hex())
	defer func() { tracing.FinishWithError(span, err) }()

	e, err := l.load(msg.entity)
	if err != nil {
		return nil, err
	}
	return e.log.Events(ctx, msg.filter)
}

func (l *Ledger) handleVerify(msg *verifyRequest) (err error) {
	span, ctx := tracing.StartSpan(msg.ctx, "ledger.Verify")
	span.SetTag("entity", msg.entity.Hex())
	defer func() { tracing.FinishWithError(span, err) }()

	e, err := l.load(msg.entity)
	if err != nil {
		return err
	}
	if err := e.log.Verify(ctx); err != nil {
		return err
	}
	head, _ := e.log.Head()
	if head.Owner != e.registry.Owner() {
		return fmt.Errorf("registry owner %s does not match log head %s", e.registry.Owner().Hex(), head.Owner.Hex())
	}
	return nil
}

// handleSubscribe pins the entity so that cache eviction can't swap its log
// out from under the subscriber.
func (l *Ledger) handleSubscribe(msg *subscribeRequest) (*subscription, error) {
	e, err := l.load(msg.entity)
	if err != nil {
		return nil, err
	}
	l.cache.Remove(msg.entity)
	l.pinned[msg.entity] = e

	ch, cancel := e.log.Subscribe(msg.buffer)
	addr := msg.entity
	return &subscription{
		ch: ch,
		cancel: func() {
			cancel()
			if pid := l.PID(); pid != nil {
				l.rootContext.Send(pid, &unpinRequest{entity: addr})
			}
		},
	}, nil
}

func (l *Ledger) handleUnpin(msg *unpinRequest) {
	e, ok := l.pinned[msg.entity]
	if !ok || e.log.Subscribers() > 0 {
		return
	}
	delete(l.pinned, msg.entity)
	l.cacheEntity(msg.entity, e)
}
