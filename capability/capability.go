// Package capability implements interface discovery in the style of ERC-165:
// a capability is named by a 4 byte tag derived from the keccak256 hashes of
// the function signatures it groups.
package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// InterfaceID is the 4 byte discovery tag of an interface.
type InterfaceID [4]byte

var (
	// ERC165 is the tag of the discovery interface itself: supportsInterface(bytes4)
	ERC165 = InterfaceID{0x01, 0xff, 0xc9, 0xa7}
	// ERC173 is the tag of the ownership interface: owner() ^ transferOwnership(address)
	ERC173 = InterfaceID{0x7f, 0x58, 0x28, 0xd0}
	// InvalidID is reserved and never supported.
	InvalidID = InterfaceID{0xff, 0xff, 0xff, 0xff}
)

// ErrInvalidInterfaceID is returned when registering the reserved tag.
var ErrInvalidInterfaceID = fmt.Errorf("interface id %s is reserved", InvalidID)

func (id InterfaceID) String() string {
	return hexutil.Encode(id[:])
}

// ParseInterfaceID decodes a 0x prefixed hex string holding exactly 4 bytes.
func ParseInterfaceID(s string) (InterfaceID, error) {
	var id InterfaceID
	bits, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("error decoding interface id %q: %v", s, err)
	}
	if len(bits) != len(id) {
		return id, fmt.Errorf("interface id must be %d bytes, got %d", len(id), len(bits))
	}
	copy(id[:], bits)
	return id, nil
}

// Selector returns the first 4 bytes of keccak256(signature), signature being
// the canonical form, ie "transferOwnership(address)".
func Selector(signature string) InterfaceID {
	var id InterfaceID
	copy(id[:], crypto.Keccak256([]byte(signature))[:4])
	return id
}

// InterfaceIDOf xors together the selectors of every function in an interface.
func InterfaceIDOf(signatures ...string) InterfaceID {
	var id InterfaceID
	for _, sig := range signatures {
		sel := Selector(sig)
		for i := range id {
			id[i] ^= sel[i]
		}
	}
	return id
}

// Table is the set of interfaces an entity answers true for. It always
// contains ERC165 and never contains InvalidID.
type Table struct {
	sync.RWMutex
	ids map[InterfaceID]bool
}

// NewTable returns a table supporting ERC165 plus the given ids.
func NewTable(ids ...InterfaceID) (*Table, error) {
	t := &Table{
		ids: map[InterfaceID]bool{ERC165: true},
	}
	for _, id := range ids {
		if err := t.Register(id); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Register(id InterfaceID) error {
	if id == InvalidID {
		return ErrInvalidInterfaceID
	}
	t.Lock()
	t.ids[id] = true
	t.Unlock()
	return nil
}

func (t *Table) SupportsInterface(id InterfaceID) bool {
	if id == InvalidID {
		return false
	}
	t.RLock()
	defer t.RUnlock()
	return t.ids[id]
}

// IDs returns the supported tags in ascending byte order.
func (t *Table) IDs() []InterfaceID {
	t.RLock()
	ids := make([]InterfaceID, 0, len(t.ids))
	for id := range t.ids {
		ids = append(ids, id)
	}
	t.RUnlock()
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}
