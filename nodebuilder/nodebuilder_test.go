package nodebuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumcontrol/ownable/ledger"
	"github.com/quorumcontrol/ownable/rpcserver"
	"github.com/quorumcontrol/ownable/storage"
)

func TestStartWithoutServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nb := &NodeBuilder{
		Config: &Config{Namespace: "testing"},
	}
	require.Nil(t, nb.Start(ctx))
	assert.Nil(t, nb.Addr())

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addr, err := nb.Ledger().Deploy(ctx, owner, owner)
	require.Nil(t, err)

	current, err := nb.Ledger().Owner(ctx, addr)
	require.Nil(t, err)
	assert.Equal(t, owner, current)

	require.Nil(t, nb.Stop())
	require.Nil(t, nb.Stop())
}

func TestServing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := LoadConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	nb := &NodeBuilder{Config: c}
	require.Nil(t, nb.Start(ctx))
	require.NotNil(t, nb.Addr())

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	addr, err := nb.Ledger().Deploy(ctx, owner, owner)
	require.Nil(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/entities/%s/supports/0x80ac58cd", nb.Addr(), addr.Hex()))
	require.Nil(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	supported := &rpcserver.SupportsResponse{}
	require.Nil(t, json.NewDecoder(resp.Body).Decode(supported))
	assert.True(t, supported.Supported)
}

func TestRejectsBadConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nb := &NodeBuilder{}
	require.NotNil(t, nb.Start(ctx))

	nb = &NodeBuilder{Config: &Config{Namespace: "testing", Storage: storage.Config{Kind: "floppy"}}}
	require.NotNil(t, nb.Start(ctx))

	nb = &NodeBuilder{Config: &Config{Namespace: "testing", TLSDomain: "ownable.example.com"}}
	require.NotNil(t, nb.Start(ctx))
}

func TestStopClosesServerBeforeLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := LoadConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	nb := &NodeBuilder{Config: c}
	require.Nil(t, nb.Start(ctx))
	addr := nb.Addr().String()

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	entity, err := nb.Ledger().Deploy(ctx, owner, owner)
	require.Nil(t, err)

	require.Nil(t, nb.Stop())

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.NotNil(t, err)
	_, err = nb.Ledger().Owner(ctx, entity)
	assert.Equal(t, ledger.ErrNotStarted, err)
}

func TestCancelStopsNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c, err := LoadConfig("testconfigs/basic.toml")
	require.Nil(t, err)
	nb := &NodeBuilder{Config: c}
	require.Nil(t, nb.Start(ctx))
	addr := nb.Addr().String()

	cancel()
	for i := 0; i < 100 && nb.Ledger().PID() != nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Nil(t, nb.Ledger().PID())
	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.NotNil(t, err)
}
