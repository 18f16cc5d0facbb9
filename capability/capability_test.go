package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector(t *testing.T) {
	assert.Equal(t, "0x8da5cb5b", Selector("owner()").String())
	assert.Equal(t, "0xf2fde38b", Selector("transferOwnership(address)").String())
	assert.Equal(t, ERC165, Selector("supportsInterface(bytes4)"))
}

func TestInterfaceIDOf(t *testing.T) {
	assert.Equal(t, ERC173, InterfaceIDOf("owner()", "transferOwnership(address)"))
	assert.Equal(t, InterfaceID{}, InterfaceIDOf())
}

func TestParseInterfaceID(t *testing.T) {
	id, err := ParseInterfaceID("0x7f5828d0")
	require.Nil(t, err)
	assert.Equal(t, ERC173, id)

	_, err = ParseInterfaceID("0x7f5828")
	require.NotNil(t, err)

	_, err = ParseInterfaceID("7f5828d0")
	require.NotNil(t, err)
}

func TestTable(t *testing.T) {
	table, err := NewTable(ERC173)
	require.Nil(t, err)

	assert.True(t, table.SupportsInterface(ERC165))
	assert.True(t, table.SupportsInterface(ERC173))
	assert.False(t, table.SupportsInterface(InvalidID))
	assert.False(t, table.SupportsInterface(InterfaceID{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, []InterfaceID{ERC165, ERC173}, table.IDs())
}

func TestTableRejectsInvalidID(t *testing.T) {
	_, err := NewTable(InvalidID)
	assert.Equal(t, ErrInvalidInterfaceID, err)

	table, err := NewTable()
	require.Nil(t, err)
	assert.Equal(t, ErrInvalidInterfaceID, table.Register(InvalidID))
	assert.False(t, table.SupportsInterface(InvalidID))
}
