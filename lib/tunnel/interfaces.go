package tunnel

import (
	"github.com/go-i2p/common/data"
	"github.com/go-i2p/common/router_info"
)

// RouterContext supplies our own RouterInfo and identity hash. It does
// not supply randomness: keys and IDs are drawn from crypto/rand (see
// ids.go). The tunnel engine never constructs one itself; it consumes
// this only by interface.
type RouterContext interface {
	// RouterInfo returns our published RouterInfo.
	RouterInfo() router_info.RouterInfo

	// IdentHash returns our identity hash.
	IdentHash() data.Hash
}

// NetDB supplies random peer RouterInfo records for path selection.
// The engine calls this and nothing more sophisticated; any smarter
// peer-selection policy lives outside this package.
type NetDB interface {
	// RandomRouterInfo returns a random known peer, or an error if
	// none are available yet.
	RandomRouterInfo() (router_info.RouterInfo, error)
}

// Transport sends a framed message to a peer identity.
type Transport interface {
	Send(peer data.Hash, msg []byte) error
}

// Codec builds and parses I2NP message envelopes and performs the
// ElGamal encryption of a build-request record; both are consumed
// only by interface here.
type Codec interface {
	// EncryptBuildRecord ElGamal-encrypts record for router's public
	// key, returning the 528-byte on-wire record.
	EncryptBuildRecord(router router_info.RouterInfo, record []byte) ([]byte, error)

	// EncodeVariableTunnelBuild wraps records into an I2NP message
	// envelope addressed to firstHop.
	EncodeVariableTunnelBuild(firstHop router_info.RouterInfo, records [][]byte) ([]byte, error)
}

// PoolCallbacks is the interface a TunnelPool presents to the manager.
// The replenishment algorithm itself lives entirely in the pool; the
// manager only ever calls this call-out hook.
type PoolCallbacks interface {
	// TunnelCreated notifies the pool a tunnel it owns became
	// established.
	TunnelCreated(t *Tunnel)

	// TunnelExpired notifies the pool one of its tunnels was retired.
	TunnelExpired(t *Tunnel)

	// CreateTunnels asks the pool to launch whatever builds its
	// replenishment policy currently wants.
	CreateTunnels()

	// TestTunnels asks the pool to exercise its live tunnels however
	// its policy sees fit. The upstream router's self-test path ships
	// disabled and is deliberately not reimplemented here; this hook
	// exists so a pool can supply its own.
	TestTunnels()
}

// TransitHandler participates in tunnels for other routers; the core
// only dispatches to it by tunnel ID.
type TransitHandler interface {
	HandleTransitData(id TunnelID, frame *DataFrame) error
}
