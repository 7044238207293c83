package tunnel

import (
	"github.com/go-i2p/common/router_info"
	"github.com/go-i2p/common/session_key"
	"github.com/go-i2p/logger"
)

// HopConfig describes one hop of a tunnel: the peer that will run it,
// the keys it will use to decrypt its build record and its data-plane
// layer, and the tunnel/reply identifiers it is assigned.
//
// HopConfig is a value participating in a TunnelConfig's fixed-size
// array of hops, not a node in a pointer-linked list — see
// TunnelConfig for the reasoning.
type HopConfig struct {
	// Router is the peer that will host this hop.
	Router router_info.RouterInfo

	// TunnelID is the identifier this hop will use to recognize
	// frames belonging to this tunnel.
	TunnelID TunnelID

	// NextTunnelID is the identifier the next hop expects to see on
	// frames this hop forwards. Zero at the last hop, in either
	// direction.
	NextTunnelID TunnelID

	// NextRouter is the RouterInfo of the next hop. The zero value at
	// the terminal hop.
	NextRouter router_info.RouterInfo

	// LayerKey is the AES-CBC key this hop uses to encrypt or decrypt
	// the data-plane payload of a tunnel data frame.
	LayerKey session_key.SessionKey

	// IVKey is the AES key this hop uses to mask the frame's IV field
	// before and after the layer transform.
	IVKey session_key.SessionKey

	// ReplyKey is the AES-CBC key used to encrypt this hop's build
	// reply and, during assembly, to pre-decrypt the records after
	// this hop's position (see BuildProtocol.Assemble).
	ReplyKey session_key.SessionKey

	// ReplyIV is the CBC initialization vector paired with ReplyKey.
	ReplyIV [16]byte

	// IsGateway is true for the first hop of the tunnel from the
	// perspective of message flow: the creator for outbound tunnels,
	// the first participant for inbound tunnels.
	IsGateway bool

	// IsEndpoint is true for the last hop: the destination for
	// outbound tunnels, the creator for inbound tunnels.
	IsEndpoint bool
}

// NewHopConfig builds a HopConfig for router with freshly generated
// keys and a random tunnel ID. Callers wire NextTunnelID/NextRouter
// once the full chain is known.
func NewHopConfig(router router_info.RouterInfo) (HopConfig, error) {
	id, err := randomTunnelID()
	if err != nil {
		return HopConfig{}, err
	}

	layerKey, err := randomSessionKey()
	if err != nil {
		return HopConfig{}, err
	}
	ivKey, err := randomSessionKey()
	if err != nil {
		return HopConfig{}, err
	}
	replyKey, err := randomSessionKey()
	if err != nil {
		return HopConfig{}, err
	}
	ivBytes, err := randomBytes(16)
	if err != nil {
		return HopConfig{}, err
	}

	hop := HopConfig{
		Router:   router,
		TunnelID: id,
		LayerKey: layerKey,
		IVKey:    ivKey,
		ReplyKey: replyKey,
	}
	copy(hop.ReplyIV[:], ivBytes)

	log.WithFields(logger.Fields{
		"at":        "hop.NewHopConfig",
		"tunnel_id": hop.TunnelID,
	}).Debug("generated hop config")

	return hop, nil
}

func randomSessionKey() (session_key.SessionKey, error) {
	var key session_key.SessionKey
	b, err := randomBytes(32)
	if err != nil {
		return key, err
	}
	copy(key[:], b)
	return key, nil
}
