package rpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/ledger"
	"github.com/quorumcontrol/ownable/ownership"
)

func TestClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts := newTestServer(ctx, t)
	defer ts.Close()

	client := NewClient(ts.URL+"/", nil)

	entity, err := client.Deploy(ctx, alice, alice)
	require.Nil(t, err)

	owner, err := client.Owner(ctx, entity)
	require.Nil(t, err)
	assert.Equal(t, alice, owner)

	err = client.TransferOwnership(ctx, entity, bob, bob)
	require.NotNil(t, err)
	assert.True(t, ownership.IsUnauthorized(err))

	require.Nil(t, client.TransferOwnership(ctx, entity, alice, bob))
	require.Nil(t, client.RenounceOwnership(ctx, entity, bob))

	owner, err = client.Owner(ctx, entity)
	require.Nil(t, err)
	assert.Equal(t, ownership.Zero, owner)

	supported, err := client.SupportsInterface(ctx, entity, capability.ERC173)
	require.Nil(t, err)
	assert.True(t, supported)

	events, err := client.History(ctx, entity, eventlog.Filter{PreviousOwner: &bob})
	require.Nil(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ownership.Zero.Hex(), events[0].NewOwner)

	entities, err := client.Entities(ctx)
	require.Nil(t, err)
	assert.Equal(t, []common.Address{entity}, entities)

	_, err = client.Owner(ctx, bob)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ledger.ErrEntityNotFound))
}
