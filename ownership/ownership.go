// Package ownership is the single-owner registry: one current owner per
// entity, transferable only by that owner, with every change announced as an
// OwnershipTransferred event.
package ownership

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quorumcontrol/ownable/capability"
)

// Identity is the 20 byte address of an owner or caller.
type Identity = common.Address

// Zero is the identity of no one. A registry owned by Zero has been renounced.
var Zero = Identity{}

const EventSignature = "OwnershipTransferred(address,address)"

// EventTopic is the keccak256 of EventSignature, what log filters key on.
var EventTopic = crypto.Keccak256Hash([]byte(EventSignature))

// OwnershipTransferred is emitted on construction and on every successful transfer.
type OwnershipTransferred struct {
	PreviousOwner Identity
	NewOwner      Identity
}

func (ot *OwnershipTransferred) String() string {
	return fmt.Sprintf("OwnershipTransferred(%s, %s)", ot.PreviousOwner.Hex(), ot.NewOwner.Hex())
}

// EventLog receives events in order. An Append error aborts the operation that
// produced the event.
type EventLog interface {
	Append(ctx context.Context, evt *OwnershipTransferred) error
}

// Option configures a Registry.
type Option func(r *Registry) error

// WithCapabilities adds extra interface ids to the registry's discovery table.
func WithCapabilities(ids ...capability.InterfaceID) Option {
	return func(r *Registry) error {
		for _, id := range ids {
			if err := r.capabilities.Register(id); err != nil {
				return err
			}
		}
		return nil
	}
}

// Registry holds the current owner of one entity. It does no locking of its
// own: callers must serialize TransferOwnership calls (see the ledger package).
type Registry struct {
	owner        Identity
	log          EventLog
	capabilities *capability.Table
}

func newRegistry(owner Identity, log EventLog, opts []Option) (*Registry, error) {
	table, err := capability.NewTable(capability.ERC173)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		owner:        owner,
		log:          log,
		capabilities: table,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("error applying option: %v", err)
		}
	}
	return r, nil
}

// New creates a registry owned by initialOwner and emits
// OwnershipTransferred(Zero, initialOwner).
func New(ctx context.Context, initialOwner Identity, log EventLog, opts ...Option) (*Registry, error) {
	r, err := newRegistry(Zero, log, opts)
	if err != nil {
		return nil, err
	}
	if err := r.emit(ctx, initialOwner); err != nil {
		return nil, err
	}
	return r, nil
}

// Restore rebuilds a registry whose history is already in log. Nothing is emitted.
func Restore(owner Identity, log EventLog, opts ...Option) (*Registry, error) {
	return newRegistry(owner, log, opts)
}

func (r *Registry) Owner() Identity {
	return r.owner
}

// IsOwned is false once ownership has been renounced.
func (r *Registry) IsOwned() bool {
	return r.owner != Zero
}

// TransferOwnership moves ownership to newOwner when caller is the current
// owner. A Zero newOwner renounces ownership for good. Transferring to the
// current owner is allowed and is still announced.
func (r *Registry) TransferOwnership(ctx context.Context, caller Identity, newOwner Identity) error {
	// a renounced registry has no owner; a Zero caller must not match it
	if !r.IsOwned() || caller != r.owner {
		return &ErrorCode{Code: ErrUnauthorized, Memo: fmt.Sprintf("caller %s is not the owner", caller.Hex())}
	}
	return r.emit(ctx, newOwner)
}

func (r *Registry) RenounceOwnership(ctx context.Context, caller Identity) error {
	return r.TransferOwnership(ctx, caller, Zero)
}

func (r *Registry) SupportsInterface(id capability.InterfaceID) bool {
	return r.capabilities.SupportsInterface(id)
}

func (r *Registry) Capabilities() *capability.Table {
	return r.capabilities
}

func (r *Registry) emit(ctx context.Context, newOwner Identity) error {
	evt := &OwnershipTransferred{PreviousOwner: r.owner, NewOwner: newOwner}
	if r.log != nil {
		if err := r.log.Append(ctx, evt); err != nil {
			return &ErrorCode{Code: ErrLog, Memo: fmt.Sprintf("error appending %s: %v", evt, err)}
		}
	}
	r.owner = newOwner
	return nil
}
