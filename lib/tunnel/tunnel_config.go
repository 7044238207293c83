package tunnel

import "github.com/go-i2p/common/router_info"

// TunnelConfig is the owned, ordered sequence of HopConfigs describing
// a tunnel from originator to endpoint. Hops are stored in a flat
// array rather than as a doubly linked list of nodes: `prev`/`next`
// become indices into Hops, which removes the pointer-fragility of the
// original router's arena of linked hop records and makes Invert a
// plain slice reversal.
type TunnelConfig struct {
	// Hops is the ordered hop chain, originator to endpoint.
	Hops []HopConfig

	// Outbound is true if this config describes an outbound tunnel
	// (traffic originates with us) and false for inbound (traffic
	// terminates with us).
	Outbound bool
}

// GatewayIndex returns the index of the hop with IsGateway set.
func (c *TunnelConfig) GatewayIndex() int {
	for i := range c.Hops {
		if c.Hops[i].IsGateway {
			return i
		}
	}
	return -1
}

// EndpointIndex returns the index of the hop with IsEndpoint set.
func (c *TunnelConfig) EndpointIndex() int {
	for i := range c.Hops {
		if c.Hops[i].IsEndpoint {
			return i
		}
	}
	return -1
}

// Validate checks the invariants a TunnelConfig must hold: a non-empty
// hop list, exactly one gateway and one endpoint, and consistent
// next-hop linkage between adjacent hops.
func (c *TunnelConfig) Validate() error {
	if len(c.Hops) == 0 {
		return ErrNoHops
	}

	gateways, endpoints := 0, 0
	for i, h := range c.Hops {
		if h.IsGateway {
			gateways++
		}
		if h.IsEndpoint {
			endpoints++
		}
		if i < len(c.Hops)-1 {
			next := c.Hops[i+1]
			if h.NextTunnelID != next.TunnelID {
				return ErrRecordSize
			}
		}
	}
	if gateways != 1 || endpoints != 1 {
		return ErrRecordSize
	}
	return nil
}

// linkHops wires NextTunnelID/NextRouter between adjacent hops and sets
// the IsGateway/IsEndpoint flags on the first and last hop.
func linkHops(hops []HopConfig) {
	for i := range hops {
		hops[i].IsGateway = i == 0
		hops[i].IsEndpoint = i == len(hops)-1
		if i < len(hops)-1 {
			hops[i].NextTunnelID = hops[i+1].TunnelID
			hops[i].NextRouter = hops[i+1].Router
		} else {
			hops[i].NextTunnelID = 0
			hops[i].NextRouter = router_info.RouterInfo{}
		}
	}
}

// NewTunnelConfig builds a TunnelConfig over routers, in originator to
// endpoint order, generating fresh hop keys and IDs and linking them.
func NewTunnelConfig(routers []router_info.RouterInfo, outbound bool) (*TunnelConfig, error) {
	if len(routers) == 0 {
		return nil, ErrNoHops
	}

	hops := make([]HopConfig, len(routers))
	for i, r := range routers {
		h, err := NewHopConfig(r)
		if err != nil {
			return nil, err
		}
		hops[i] = h
	}
	linkHops(hops)

	return &TunnelConfig{Hops: hops, Outbound: outbound}, nil
}

// Invert produces a new TunnelConfig for the opposite direction over
// the same routers in reverse order, with freshly generated tunnel IDs
// and keys. Structure (hop count) and role placement (first is
// gateway, last is endpoint) are preserved; nothing else is reused, so
// inverting twice restores the original *structure*, not the original
// key material.
func (c *TunnelConfig) Invert() (*TunnelConfig, error) {
	routers := make([]router_info.RouterInfo, len(c.Hops))
	for i, h := range c.Hops {
		routers[len(c.Hops)-1-i] = h.Router
	}
	return NewTunnelConfig(routers, !c.Outbound)
}
