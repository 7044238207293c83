package tunnel

// InboundEndpoint reassembles cleartext frames at the endpoint of an
// inbound tunnel. Reassembly of multi-fragment application messages
// belongs to the I2NP codec collaborator; this interface only
// receives whatever cleartext a single tunnel data frame carried.
type InboundEndpoint interface {
	// HandleCleartext delivers one frame's worth of cleartext payload,
	// tagged with the tunnel ID it arrived on.
	HandleCleartext(id TunnelID, payload []byte)
}

// FuncEndpoint adapts a plain function to InboundEndpoint, for callers
// (and tests) that don't need a stateful reassembler.
type FuncEndpoint func(id TunnelID, payload []byte)

// HandleCleartext implements InboundEndpoint.
func (f FuncEndpoint) HandleCleartext(id TunnelID, payload []byte) {
	f(id, payload)
}
