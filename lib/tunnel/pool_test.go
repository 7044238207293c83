package tunnel

import (
	"testing"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/common/router_info"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTunnelCreatedClassifiesByDirection checks that TunnelCreated
// itself populates inbound/outbound membership, so a pool accumulates
// its tunnel set the same way whether notified from the manager's
// build path or a test.
func TestTunnelCreatedClassifiesByDirection(t *testing.T) {
	pool := NewTunnelPool(data.Hash{})

	inCfg, err := NewTunnelConfig([]router_info.RouterInfo{{}}, false)
	require.NoError(t, err)
	outCfg, err := NewTunnelConfig([]router_info.RouterInfo{{}}, true)
	require.NoError(t, err)

	in := NewTunnel(inCfg, pool)
	out := NewTunnel(outCfg, pool)

	pool.TunnelCreated(in)
	pool.TunnelCreated(out)

	assert.Equal(t, []*Tunnel{in}, pool.Inbound())
	assert.Equal(t, []*Tunnel{out}, pool.Outbound())
}

// TestTunnelExpiredRemovesFromMatchingList mirrors the classification
// on the way out: an expired tunnel is removed from whichever list its
// direction put it in, and only that one.
func TestTunnelExpiredRemovesFromMatchingList(t *testing.T) {
	pool := NewTunnelPool(data.Hash{})

	inCfg, err := NewTunnelConfig([]router_info.RouterInfo{{}}, false)
	require.NoError(t, err)
	tun := NewTunnel(inCfg, pool)
	pool.TunnelCreated(tun)
	require.Len(t, pool.Inbound(), 1)

	pool.TunnelExpired(tun)
	assert.Empty(t, pool.Inbound())
	assert.Empty(t, pool.Outbound())
}

func TestCreateTunnelsAndTestTunnelsInvokeHooks(t *testing.T) {
	pool := NewTunnelPool(data.Hash{})

	var created, tested bool
	pool.SetHooks(func() { created = true }, func() { tested = true })

	pool.CreateTunnels()
	pool.TestTunnels()

	assert.True(t, created)
	assert.True(t, tested)
}
