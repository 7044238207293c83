package tunnel

// OutboundGateway serializes application messages into tunnel frames
// at the originator. It is exposed only as an interface: the wire
// framing of application payloads into tunnel data messages beyond
// the fixed-size DataFrame itself belongs to the I2NP codec
// collaborator.
type OutboundGateway interface {
	// SendMessage submits an application payload for delivery through
	// the gateway's outbound tunnel.
	SendMessage(payload []byte) error
}

// tunnelOutboundGateway adapts an *OutboundTunnel to OutboundGateway.
type tunnelOutboundGateway struct {
	tunnel *OutboundTunnel
}

// NewOutboundGateway returns an OutboundGateway backed by tunnel.
func NewOutboundGateway(tunnel *OutboundTunnel) OutboundGateway {
	return &tunnelOutboundGateway{tunnel: tunnel}
}

func (g *tunnelOutboundGateway) SendMessage(payload []byte) error {
	return g.tunnel.SendTunnelDataMsg(payload)
}
