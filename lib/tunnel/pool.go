package tunnel

import (
	"sync"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
)

// TunnelPool is a higher-level client that owns a set of tunnels for
// one destination. Replenishment policy lives entirely behind the
// CreateTunnels/TestTunnels call-out hooks; TunnelPool here is the
// minimal registry entry the manager needs to track pool membership
// and notify pools of lifecycle events.
type TunnelPool struct {
	mu sync.Mutex

	dest data.Hash

	inbound  []*Tunnel
	outbound []*Tunnel

	// onCreateTunnels and onTestTunnels back the PoolCallbacks
	// interface's replenishment hooks; both may be nil for a pool
	// that only tracks membership.
	onCreateTunnels func()
	onTestTunnels   func()
}

// NewTunnelPool creates an empty pool keyed to dest.
func NewTunnelPool(dest data.Hash) *TunnelPool {
	return &TunnelPool{dest: dest}
}

// Destination returns the identity hash this pool is keyed under.
func (p *TunnelPool) Destination() data.Hash {
	return p.dest
}

// TunnelCreated implements PoolCallbacks: it classifies t by its
// config's direction and adds it to the matching membership list.
func (p *TunnelPool) TunnelCreated(t *Tunnel) {
	p.mu.Lock()
	if t.Config().Outbound {
		p.outbound = append(p.outbound, t)
	} else {
		p.inbound = append(p.inbound, t)
	}
	p.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":   "TunnelPool.TunnelCreated",
		"dest": p.dest,
	}).Debug("pool notified of established tunnel")
}

// TunnelExpired implements PoolCallbacks.
func (p *TunnelPool) TunnelExpired(t *Tunnel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.Config().Outbound {
		p.outbound = removeTunnel(p.outbound, t)
	} else {
		p.inbound = removeTunnel(p.inbound, t)
	}

	log.WithFields(logger.Fields{
		"at":   "TunnelPool.TunnelExpired",
		"dest": p.dest,
	}).Debug("pool notified of expired tunnel")
}

// CreateTunnels implements PoolCallbacks. The actual replenishment
// algorithm lives outside this type; callers set onCreateTunnels to
// whatever policy they need.
func (p *TunnelPool) CreateTunnels() {
	if p.onCreateTunnels != nil {
		p.onCreateTunnels()
	}
}

// TestTunnels implements PoolCallbacks. The reference implementation's
// disabled self-test path is intentionally not reimplemented (spec
// section 9); this hook exists so a pool can supply its own probe.
func (p *TunnelPool) TestTunnels() {
	if p.onTestTunnels != nil {
		p.onTestTunnels()
	}
}

// SetHooks installs the pool's replenishment and test callbacks.
func (p *TunnelPool) SetHooks(onCreateTunnels, onTestTunnels func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCreateTunnels = onCreateTunnels
	p.onTestTunnels = onTestTunnels
}

// Inbound returns a snapshot of this pool's inbound tunnels.
func (p *TunnelPool) Inbound() []*Tunnel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Tunnel, len(p.inbound))
	copy(out, p.inbound)
	return out
}

// Outbound returns a snapshot of this pool's outbound tunnels.
func (p *TunnelPool) Outbound() []*Tunnel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Tunnel, len(p.outbound))
	copy(out, p.outbound)
	return out
}

func removeTunnel(list []*Tunnel, t *Tunnel) []*Tunnel {
	out := list[:0]
	for _, it := range list {
		if it != t {
			out = append(out, it)
		}
	}
	return out
}
