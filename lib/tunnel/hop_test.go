package tunnel

import (
	"testing"

	"github.com/go-i2p/common/router_info"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHopConfigGeneratesDistinctMaterial(t *testing.T) {
	a, err := NewHopConfig(router_info.RouterInfo{})
	require.NoError(t, err)
	b, err := NewHopConfig(router_info.RouterInfo{})
	require.NoError(t, err)

	assert.NotEqual(t, a.TunnelID, b.TunnelID, "tunnel IDs should be freshly random per hop")
	assert.NotEqual(t, a.LayerKey, b.LayerKey)
	assert.NotEqual(t, a.IVKey, b.IVKey)
	assert.NotEqual(t, a.ReplyKey, b.ReplyKey)
	assert.NotEqual(t, a.ReplyIV, b.ReplyIV)
	assert.False(t, a.IsGateway)
	assert.False(t, a.IsEndpoint)
}

func TestRandomTunnelIDNeverZero(t *testing.T) {
	for i := 0; i < 64; i++ {
		id, err := randomTunnelID()
		require.NoError(t, err)
		assert.NotZero(t, id)
	}
}
