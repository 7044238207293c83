package tunnel

import (
	"testing"

	"github.com/go-i2p/common/router_info"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeHopRouters() []router_info.RouterInfo {
	return []router_info.RouterInfo{{}, {}, {}}
}

func TestNewTunnelConfigLinksHops(t *testing.T) {
	cfg, err := NewTunnelConfig(threeHopRouters(), true)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0, cfg.GatewayIndex())
	assert.Equal(t, 2, cfg.EndpointIndex())
	assert.True(t, cfg.Hops[0].IsGateway)
	assert.True(t, cfg.Hops[2].IsEndpoint)
	assert.Equal(t, cfg.Hops[1].TunnelID, cfg.Hops[0].NextTunnelID)
	assert.Equal(t, cfg.Hops[2].TunnelID, cfg.Hops[1].NextTunnelID)
	assert.Zero(t, cfg.Hops[2].NextTunnelID)
}

func TestNewTunnelConfigRejectsEmpty(t *testing.T) {
	_, err := NewTunnelConfig(nil, true)
	assert.ErrorIs(t, err, ErrNoHops)
}

// TestInvertTwiceRestoresStructure checks that c.invert().invert() is
// structurally equal to c even though every invert regenerates keys
// and IDs.
func TestInvertTwiceRestoresStructure(t *testing.T) {
	cfg, err := NewTunnelConfig(threeHopRouters(), true)
	require.NoError(t, err)

	once, err := cfg.Invert()
	require.NoError(t, err)
	twice, err := once.Invert()
	require.NoError(t, err)

	require.Len(t, twice.Hops, len(cfg.Hops))
	assert.Equal(t, cfg.Outbound, twice.Outbound)
	assert.Equal(t, once.Outbound, !cfg.Outbound)

	for i := range cfg.Hops {
		assert.Equal(t, cfg.Hops[i].IsGateway, twice.Hops[i].IsGateway)
		assert.Equal(t, cfg.Hops[i].IsEndpoint, twice.Hops[i].IsEndpoint)
	}

	assert.NotEqual(t, cfg.Hops[0].TunnelID, twice.Hops[0].TunnelID, "invert regenerates key material, not just structure")
}

// TestInvertKeepsHopCountAndFlipsDirection checks the inverted
// config's hop count and direction. The zero-value RouterInfo values
// used here are indistinguishable, so router order is not observable.
func TestInvertKeepsHopCountAndFlipsDirection(t *testing.T) {
	routers := threeHopRouters()
	cfg, err := NewTunnelConfig(routers, true)
	require.NoError(t, err)

	inv, err := cfg.Invert()
	require.NoError(t, err)
	require.Len(t, inv.Hops, 3)
	assert.False(t, inv.Outbound)
}
