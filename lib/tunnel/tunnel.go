package tunnel

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

// Tunnel is the aggregate state shared by every tunnel variant: its
// owned configuration, pool membership, lifecycle flags, and traffic
// counters.
type Tunnel struct {
	mu sync.Mutex

	config *TunnelConfig
	pool   PoolCallbacks // optional, non-owning

	established bool
	failed      bool

	creationTime time.Time

	receivedBytes uint64
	sentBytes     uint64

	ciphers []*DataCipher
}

// NewTunnel wraps cfg in a new Pending tunnel. It creates no data
// ciphers: the tunnel has none, bound to reply keys or otherwise,
// until callers bind them to each hop's layer keys via BindLayerKeys
// once a build succeeds.
func NewTunnel(cfg *TunnelConfig, pool PoolCallbacks) *Tunnel {
	return &Tunnel{
		config:       cfg,
		pool:         pool,
		creationTime: time.Now(),
	}
}

// BindLayerKeys constructs this tunnel's per-hop DataCiphers from its
// hops' layer/IV keys. Called once a build response accepts every hop.
func (t *Tunnel) BindLayerKeys() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ciphers := make([]*DataCipher, len(t.config.Hops))
	for i, h := range t.config.Hops {
		c, err := NewDataCipher(h.LayerKey, h.IVKey)
		if err != nil {
			return err
		}
		ciphers[i] = c
	}
	t.ciphers = ciphers
	t.established = true
	return nil
}

// MarkFailed marks the tunnel failed: a decline, timeout, or transport
// error. Failed tunnels are skipped by the manager's next_* selectors
// but remain in their live table until natural expiry.
func (t *Tunnel) MarkFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// ClearFailed clears the failed flag; any message arriving on an
// inbound tunnel is itself a liveness signal.
func (t *Tunnel) ClearFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = false
}

// Established reports whether the tunnel has completed its build.
func (t *Tunnel) Established() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.established
}

// Failed reports whether the tunnel has been marked failed.
func (t *Tunnel) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Expired reports whether the tunnel has outlived expiration relative
// to now.
func (t *Tunnel) Expired(now time.Time, expiration time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.creationTime) >= expiration
}

// Config returns the tunnel's owned configuration.
func (t *Tunnel) Config() *TunnelConfig {
	return t.config
}

// Pool returns the tunnel's pool, or nil if it has none.
func (t *Tunnel) Pool() PoolCallbacks {
	return t.pool
}

// ReceivedBytes returns the running inbound byte counter.
func (t *Tunnel) ReceivedBytes() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receivedBytes
}

func (t *Tunnel) addReceived(n uint64) {
	t.mu.Lock()
	t.receivedBytes += n
	t.mu.Unlock()
}

func (t *Tunnel) addSent(n uint64) {
	t.mu.Lock()
	t.sentBytes += n
	t.mu.Unlock()
}

// firstTunnelID returns the TunnelID of the tunnel's first hop, which
// is how the tunnel is keyed in the manager's live tables.
func (t *Tunnel) firstTunnelID() TunnelID {
	if len(t.config.Hops) == 0 {
		return 0
	}
	return t.config.Hops[0].TunnelID
}

// OutboundTunnel is a Tunnel we created to send our own traffic.
type OutboundTunnel struct {
	*Tunnel

	sendMu sync.Mutex // serializes send_tunnel_data_msg; the gateway buffer is not re-entrant

	transport Transport
}

// NewOutboundTunnel wraps cfg as an outbound tunnel over transport.
func NewOutboundTunnel(cfg *TunnelConfig, pool PoolCallbacks, transport Transport) *OutboundTunnel {
	return &OutboundTunnel{Tunnel: NewTunnel(cfg, pool), transport: transport}
}

// SendTunnelDataMsg wraps payload into a frame addressed to gateway's
// tunnel ID, applies the per-hop wrap transform, and sends it via
// transport. Callers must not call this concurrently on the same
// tunnel; sendMu enforces the tunnel's send-mutex discipline.
func (o *OutboundTunnel) SendTunnelDataMsg(payload []byte) error {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	if len(payload) > bodyFieldSize {
		return ErrFrameSize
	}

	var frame DataFrame
	frame.SetTunnelID(o.firstTunnelID())
	copy(frame.body(), payload)

	WrapOutbound(o.ciphers, &frame)

	first := o.config.Hops[0]
	hash, err := first.Router.IdentHash()
	if err != nil {
		o.MarkFailed()
		return err
	}
	if err := o.transport.Send(hash, frame[:]); err != nil {
		o.MarkFailed()
		return err
	}
	o.addSent(uint64(len(payload)))
	return nil
}

// InboundTunnel is a Tunnel we created to receive our own traffic.
type InboundTunnel struct {
	*Tunnel

	endpoint InboundEndpoint
}

// NewInboundTunnel wraps cfg as an inbound tunnel delivering to endpoint.
func NewInboundTunnel(cfg *TunnelConfig, pool PoolCallbacks, endpoint InboundEndpoint) *InboundTunnel {
	return &InboundTunnel{Tunnel: NewTunnel(cfg, pool), endpoint: endpoint}
}

// HandleTunnelDataMsg receives a wire frame at our endpoint, peels the
// per-hop layering, and hands the cleartext body to the InboundEndpoint.
// Any message arriving here clears the tunnel's failed flag.
func (i *InboundTunnel) HandleTunnelDataMsg(frame *DataFrame) error {
	i.ClearFailed()

	PeelInbound(i.ciphers, frame)

	i.addReceived(bodyFieldSize)

	if i.endpoint != nil {
		i.endpoint.HandleCleartext(TunnelID(frame.TunnelID()), frame.body())
	}

	log.WithFields(logger.Fields{
		"at":        "InboundTunnel.HandleTunnelDataMsg",
		"tunnel_id": frame.TunnelID(),
	}).Debug("delivered tunnel data to endpoint")
	return nil
}

// TransitTunnel is a tunnel built by another router in which we
// participate as a non-terminal hop. We forward frames using our own
// hop's single-layer transform and the next hop's identity. It
// implements TransitHandler; the manager's transit table dispatches to
// it only through that interface, keeping the core's dispatch path
// independent of the concrete relay implementation.
type TransitTunnel struct {
	ourTunnelID  TunnelID
	nextTunnelID TunnelID
	nextRouter   [32]byte // identity hash of next hop
	cipher       *DataCipher
	transport    Transport
}

// NewTransitTunnel builds a TransitTunnel for one hop of someone
// else's tunnel.
func NewTransitTunnel(ourID, nextID TunnelID, nextRouterHash [32]byte, layerKey, ivKey [32]byte, transport Transport) (*TransitTunnel, error) {
	c, err := NewDataCipher(layerKey, ivKey)
	if err != nil {
		return nil, err
	}
	return &TransitTunnel{
		ourTunnelID:  ourID,
		nextTunnelID: nextID,
		nextRouter:   nextRouterHash,
		cipher:       c,
		transport:    transport,
	}, nil
}

// HandleTransitData implements TransitHandler: applies this hop's
// single-layer transform and forwards the frame under the next hop's
// tunnel ID. id is the tunnel ID the manager dispatched on, which for
// a transit hop is always ourTunnelID.
func (tt *TransitTunnel) HandleTransitData(id TunnelID, frame *DataFrame) error {
	tt.cipher.Encrypt(frame)
	frame.SetTunnelID(tt.nextTunnelID)
	return tt.transport.Send(tt.nextRouter, frame[:])
}
