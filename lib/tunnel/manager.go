package tunnel

import (
	"sync"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/common/router_info"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-i2p/tunnel-engine/lib/config"
)

// TunnelManager is the single-writer scheduler owning the dispatch
// queue, the four tunnel tables, and the tunnel pool registry. Only
// its worker goroutine mutates outbound, inbound, transit, pending,
// and pools; everything else reaches the manager through the
// dispatch queue or the lock-guarded operations below.
type TunnelManager struct {
	ctx       RouterContext
	netdb     NetDB
	transport Transport
	codec     Codec
	build     *BuildProtocol
	defaults  config.TunnelDefaults

	queue *dispatchQueue

	tablesMu sync.Mutex // guards the four tables below and pools
	outbound []*OutboundTunnel
	inbound  map[TunnelID]*InboundTunnel
	transit  map[TunnelID]*transitEntry
	pending  map[ReplyMessageID]*pendingBuild
	pools    map[data.Hash]*TunnelPool

	replyIDs *replyIDCounter

	running   bool
	runningMu sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// pendingBuild is a build attempt awaiting its reply: exactly one of
// inbound/outbound is set, matching which variant createBuild was
// asked to build. Kept as the wrapper type rather than the embedded
// *Tunnel so HandleBuildResponse can promote it via AddInbound or
// AddOutbound once the response is parsed.
type pendingBuild struct {
	cfg      *TunnelConfig
	inbound  *InboundTunnel
	outbound *OutboundTunnel
}

// transitEntry pairs a TransitHandler with the bookkeeping the manager
// needs to age it out; TransitHandler itself exposes no notion of
// creation time.
type transitEntry struct {
	handler TransitHandler
	created time.Time
}

// NewTunnelManager builds a TunnelManager over its collaborators, with
// tuning taken from defaults.
func NewTunnelManager(ctx RouterContext, netdb NetDB, transport Transport, codec Codec, defaults config.TunnelDefaults) *TunnelManager {
	return &TunnelManager{
		ctx:       ctx,
		netdb:     netdb,
		transport: transport,
		codec:     codec,
		build:     NewBuildProtocol(codec, defaults.MaxHops),
		defaults:  defaults,
		queue:     newDispatchQueue(256),
		inbound:   make(map[TunnelID]*InboundTunnel),
		transit:   make(map[TunnelID]*transitEntry),
		pending:   make(map[ReplyMessageID]*pendingBuild),
		pools:     make(map[data.Hash]*TunnelPool),
		replyIDs:  newReplyIDCounter(),
		stopCh:    make(chan struct{}),
	}
}

// PostTunnelData enqueues an inbound tunnel data message for routing
// by tunnel ID. Safe from any goroutine. It returns without waiting
// for the worker unless the queue's 256-item buffer is full; then it
// blocks until the worker takes an item or the manager stops.
func (m *TunnelManager) PostTunnelData(msg []byte) error {
	if !m.isRunning() {
		return ErrManagerStopped
	}
	m.queue.Put(queuedItem{frame: msg})
	return nil
}

// PostBuildResponse enqueues a parsed variable tunnel build reply for
// HandleBuildResponse to consume against the pending table. Recognizing
// and decoding the reply from its wire envelope is the caller's job
// (the Codec collaborator); this is the entry point once that decoding
// is done. Safe from any goroutine; blocks only while the queue's
// buffer is full, as PostTunnelData does.
func (m *TunnelManager) PostBuildResponse(replyID ReplyMessageID, resp *BuildResponse) error {
	if !m.isRunning() {
		return ErrManagerStopped
	}
	m.queue.Put(queuedItem{reply: &buildReply{replyID: replyID, resp: resp}})
	return nil
}

// GetInbound looks up an inbound tunnel by ID.
func (m *TunnelManager) GetInbound(id TunnelID) (*InboundTunnel, bool) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	t, ok := m.inbound[id]
	return t, ok
}

// GetTransit looks up a transit tunnel's handler by ID.
func (m *TunnelManager) GetTransit(id TunnelID) (TransitHandler, bool) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	e, ok := m.transit[id]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// GetPending removes and returns the pending build awaiting replyID,
// transferring its ownership to the caller.
func (m *TunnelManager) GetPending(replyID ReplyMessageID) (*pendingBuild, bool) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	pb, ok := m.pending[replyID]
	if ok {
		delete(m.pending, replyID)
	}
	return pb, ok
}

// NextInbound returns the live inbound tunnel with the least received
// bytes, excluding failed tunnels, load-balancing toward under-used
// paths.
func (m *TunnelManager) NextInbound() (*InboundTunnel, bool) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	var best *InboundTunnel
	for _, t := range m.inbound {
		if t.Failed() {
			continue
		}
		if best == nil || t.ReceivedBytes() < best.ReceivedBytes() {
			best = t
		}
	}
	return best, best != nil
}

// NextOutbound returns an outbound tunnel chosen by uniform random
// index among non-failed entries. Collecting non-failed candidates
// first and sampling once keeps selection uniform over live tunnels
// instead of skewing toward whichever ones happen to pass a retry
// loop's rejection test first.
func (m *TunnelManager) NextOutbound() (*OutboundTunnel, error) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	candidates := make([]*OutboundTunnel, 0, len(m.outbound))
	for _, t := range m.outbound {
		if !t.Failed() {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoPeersAvailable
	}
	idx := int(rand.Float64() * float64(len(candidates)))
	if idx >= len(candidates) {
		idx = len(candidates) - 1
	}
	return candidates[idx], nil
}

// CreatePool registers and returns a new TunnelPool keyed by dest.
func (m *TunnelManager) CreatePool(dest data.Hash) *TunnelPool {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	p := NewTunnelPool(dest)
	m.pools[dest] = p
	return p
}

// DeletePool removes p from the pool registry.
func (m *TunnelManager) DeletePool(p *TunnelPool) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	delete(m.pools, p.Destination())
}

// AddTransitTunnel inserts t into the transit table keyed by its own
// tunnel ID, dispatched to thereafter only through TransitHandler.
func (m *TunnelManager) AddTransitTunnel(id TunnelID, t *TransitTunnel) {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	m.transit[id] = &transitEntry{handler: t, created: time.Now()}
}

// insertInbound registers t under its own tunnel ID without triggering
// any pool notification or opportunistic outbound build. Used both by
// AddInbound and by the zero-hop bootstrap path, which wants the
// tunnel live but neither of AddInbound's side effects.
func (m *TunnelManager) insertInbound(t *InboundTunnel) {
	m.tablesMu.Lock()
	m.inbound[t.firstTunnelID()] = t
	m.tablesMu.Unlock()
}

// AddInbound promotes a just-built inbound tunnel into the live table
// and notifies its pool. A pool-less inbound tunnel built through a
// real multi-router build opportunistically triggers a symmetric
// outbound build via its inverted config; the degenerate zero-hop
// bootstrap tunnel is inserted directly via insertInbound and never
// reaches this path.
func (m *TunnelManager) AddInbound(t *InboundTunnel) {
	m.insertInbound(t)
	pool := t.Pool()

	if pool != nil {
		pool.TunnelCreated(t.Tunnel)
		return
	}

	inv, err := t.Config().Invert()
	if err != nil {
		log.WithFields(logger.Fields{"at": "TunnelManager.AddInbound"}).WithError(err).Debug("could not invert config for symmetric outbound")
		return
	}
	out := NewOutboundTunnel(inv, nil, m.transport)
	if err := m.createBuild(&pendingBuild{cfg: inv, outbound: out}); err != nil {
		log.WithFields(logger.Fields{"at": "TunnelManager.AddInbound"}).WithError(err).Debug("symmetric outbound build failed")
	}
}

// AddOutbound promotes a just-built outbound tunnel into the live
// table and notifies its pool.
func (m *TunnelManager) AddOutbound(t *OutboundTunnel) {
	m.tablesMu.Lock()
	m.outbound = append(m.outbound, t)
	pool := t.Pool()
	m.tablesMu.Unlock()

	if pool != nil {
		pool.TunnelCreated(t.Tunnel)
	}
}

// Start launches the manager's dedicated worker goroutine.
func (m *TunnelManager) Start() {
	m.runningMu.Lock()
	if m.running {
		m.runningMu.Unlock()
		return
	}
	m.running = true
	m.runningMu.Unlock()

	m.wg.Add(1)
	go m.run()
}

// Stop signals the worker to exit, wakes the queue, and joins.
func (m *TunnelManager) Stop() {
	m.stopOnce.Do(func() {
		m.runningMu.Lock()
		m.running = false
		m.runningMu.Unlock()
		close(m.stopCh)
		m.queue.WakeUp()
	})
	m.wg.Wait()
	m.releaseAll()
}

func (m *TunnelManager) isRunning() bool {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	return m.running
}

// run is the worker loop: sleep, then alternate between draining the
// dispatch queue and running the periodic management pass. Any panic
// recovered here is logged and the loop continues, matching the
// DispatchException error kind's "log, continue" contract.
func (m *TunnelManager) run() {
	defer m.wg.Done()

	select {
	case <-time.After(m.defaults.StartupDelay):
	case <-m.stopCh:
		return
	}

	ticker := time.NewTicker(m.defaults.ManagementInterval)
	defer ticker.Stop()

	for m.isRunning() {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.safeManageTunnels()
		default:
			item, ok := m.queue.GetWithTimeout(m.defaults.DispatchPollInterval)
			if !ok {
				continue
			}
			m.safeHandle(item)
			for {
				next, ok := m.queue.TryGet()
				if !ok {
					break
				}
				m.safeHandle(next)
			}
		}
	}
}

// safeHandle routes a queued item to either HandleBuildResponse or
// dispatch, recovering any panic as an ErrDispatchException: the item
// is dropped and the worker loop continues.
func (m *TunnelManager) safeHandle(item queuedItem) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.safeHandle", "panic": r}).WithError(ErrDispatchException).Error("recovered from panic")
		}
	}()

	if item.reply != nil {
		if err := m.HandleBuildResponse(item.reply.replyID, item.reply.resp); err != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.safeHandle", "reply_id": item.reply.replyID}).WithError(err).Debug("build response not applied")
		}
		return
	}
	m.dispatch(item.frame)
}

func (m *TunnelManager) safeManageTunnels() {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.manageTunnels"}).Error("recovered from management panic")
		}
	}()
	m.manageTunnels()
}

// dispatch reads the frame's big-endian tunnel ID prefix and routes it
// to the inbound table, else the transit table, else logs and drops
// it (ErrUnknownTunnel).
func (m *TunnelManager) dispatch(msg []byte) {
	if len(msg) != DataFrameSize {
		log.WithFields(logger.Fields{"at": "TunnelManager.dispatch", "len": len(msg)}).Info("dropping malformed frame")
		return
	}
	var frame DataFrame
	copy(frame[:], msg)
	id := frame.TunnelID()

	if in, ok := m.GetInbound(id); ok {
		if err := in.HandleTunnelDataMsg(&frame); err != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.dispatch", "tunnel_id": id}).WithError(err).Info("inbound handler error")
		}
		return
	}
	if h, ok := m.GetTransit(id); ok {
		if err := h.HandleTransitData(id, &frame); err != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.dispatch", "tunnel_id": id}).WithError(err).Info("transit forward error")
		}
		return
	}

	log.WithFields(logger.Fields{"at": "TunnelManager.dispatch", "tunnel_id": id}).WithError(ErrUnknownTunnel).Info("dropping frame")
}

// manageTunnels runs the periodic sweep in the fixed order the
// reference implementation uses: pending sweep, inbound, outbound,
// transit, pools.
func (m *TunnelManager) manageTunnels() {
	m.sweepPending()
	m.manageInbound()
	m.manageOutbound()
	m.manageTransit()
	m.managePools()
}

// sweepPending flushes the entire pending table every tick: any build
// that has not returned within one management cadence is abandoned as
// an ErrBuildTimeout. A response arriving after the sweep finds
// nothing on lookup and is dropped by HandleBuildResponse.
func (m *TunnelManager) sweepPending() {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	if len(m.pending) == 0 {
		return
	}
	log.WithFields(logger.Fields{"at": "TunnelManager.sweepPending", "count": len(m.pending)}).WithError(ErrBuildTimeout).Debug("flushing unresponded builds")
	for id, pb := range m.pending {
		baseTunnel(pb).MarkFailed()
		delete(m.pending, id)
	}
}

// manageInbound drops expired inbound tunnels notifying their pools,
// bootstraps a zero-hop inbound and exploratory pool when none exist,
// and otherwise replenishes toward the target live count.
func (m *TunnelManager) manageInbound() {
	now := time.Now()

	m.tablesMu.Lock()
	for id, t := range m.inbound {
		if t.Expired(now, m.defaults.Expiration) {
			delete(m.inbound, id)
			if p := t.Pool(); p != nil {
				p.TunnelExpired(t.Tunnel)
			}
		}
	}
	count := len(m.inbound)
	outboundCount := len(m.outbound)
	m.tablesMu.Unlock()

	if count == 0 {
		m.createZeroHopInbound()

		m.tablesMu.Lock()
		_, hasExploratory := m.pools[m.ctx.IdentHash()]
		m.tablesMu.Unlock()
		if !hasExploratory {
			m.CreatePool(m.ctx.IdentHash())
		}
		return
	}

	if count < m.defaults.TargetLiveCount || outboundCount == 0 {
		if err := m.buildOneHopInbound(); err != nil {
			log.WithFields(logger.Fields{"at": "TunnelManager.manageInbound"}).WithError(err).Debug("one-hop inbound build failed")
		}
	}
}

// manageOutbound drops expired outbound tunnels notifying their
// pools, and replenishes toward the target live count by building a
// one-hop outbound whose return path is the current NextInbound's
// inverted config.
func (m *TunnelManager) manageOutbound() {
	now := time.Now()

	m.tablesMu.Lock()
	live := m.outbound[:0]
	for _, t := range m.outbound {
		if t.Expired(now, m.defaults.Expiration) {
			if p := t.Pool(); p != nil {
				p.TunnelExpired(t.Tunnel)
			}
			continue
		}
		live = append(live, t)
	}
	m.outbound = live
	count := len(m.outbound)
	m.tablesMu.Unlock()

	if count >= m.defaults.TargetLiveCount {
		return
	}

	in, ok := m.NextInbound()
	if !ok {
		return
	}
	if err := m.buildOneHopOutbound(in); err != nil {
		log.WithFields(logger.Fields{"at": "TunnelManager.manageOutbound"}).WithError(err).Debug("one-hop outbound build failed")
	}
}

// manageTransit drops expired transit tunnels; transit tunnels are
// initiated by peers and are never replenished by us.
func (m *TunnelManager) manageTransit() {
	now := time.Now()
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	for id, e := range m.transit {
		if now.Sub(e.created) >= m.defaults.Expiration {
			delete(m.transit, id)
		}
	}
}

// managePools invokes CreateTunnels then TestTunnels on every
// registered pool.
func (m *TunnelManager) managePools() {
	m.tablesMu.Lock()
	pools := make([]*TunnelPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.tablesMu.Unlock()

	for _, p := range pools {
		p.CreateTunnels()
		p.TestTunnels()
	}
}

// createBuild allocates a reply_msg_id, inserts pb into the pending
// table under it, and dispatches the assembled build request. Shared
// by buildOneHopInbound/buildOneHopOutbound/AddInbound's symmetric
// outbound, expressed as call sites building a pendingBuild rather
// than a generic build helper parameterized over the Tunnel variant.
func (m *TunnelManager) createBuild(pb *pendingBuild) error {
	replyID := m.replyIDs.Next()

	m.tablesMu.Lock()
	m.pending[replyID] = pb
	m.tablesMu.Unlock()

	hint, _ := m.NextOutbound()
	var outHint *OutboundTunnel
	if hint != nil {
		outHint = hint
	}

	req, err := m.build.Assemble(pb.cfg, replyID)
	if err != nil {
		m.tablesMu.Lock()
		delete(m.pending, replyID)
		m.tablesMu.Unlock()
		return oops.Wrapf(err, "assemble build for reply id %d", replyID)
	}

	return m.dispatchBuild(pb.cfg, req, outHint)
}

// baseTunnel returns pb's underlying *Tunnel, whichever variant it
// wraps.
func baseTunnel(pb *pendingBuild) *Tunnel {
	if pb.inbound != nil {
		return pb.inbound.Tunnel
	}
	return pb.outbound.Tunnel
}

// HandleBuildResponse looks up the pending build awaiting replyID,
// parses resp against its config, and on full acceptance binds layer
// keys and promotes it into the live table via AddInbound/AddOutbound.
// A decline, a parse error, or an unknown reply id marks the attempt
// failed (or is simply reported) instead. Promotion to the live table
// happens only here, never at build-request time.
func (m *TunnelManager) HandleBuildResponse(replyID ReplyMessageID, resp *BuildResponse) error {
	pb, ok := m.GetPending(replyID)
	if !ok {
		log.WithFields(logger.Fields{"at": "TunnelManager.HandleBuildResponse", "reply_id": replyID}).WithError(ErrUnknownTunnel).Info("build response for unknown reply id")
		return ErrUnknownTunnel
	}

	accepted, err := m.build.Parse(pb.cfg, resp)
	if err != nil {
		baseTunnel(pb).MarkFailed()
		return oops.Wrapf(err, "parse build response for reply id %d", replyID)
	}
	if !accepted {
		baseTunnel(pb).MarkFailed()
		log.WithFields(logger.Fields{"at": "TunnelManager.HandleBuildResponse", "reply_id": replyID}).WithError(ErrBuildDeclined).Info("build declined")
		return ErrBuildDeclined
	}

	if err := baseTunnel(pb).BindLayerKeys(); err != nil {
		baseTunnel(pb).MarkFailed()
		return oops.Wrapf(err, "bind layer keys for reply id %d", replyID)
	}

	if pb.inbound != nil {
		m.AddInbound(pb.inbound)
	} else {
		m.AddOutbound(pb.outbound)
	}
	return nil
}

func (m *TunnelManager) dispatchBuild(cfg *TunnelConfig, req *BuildRequest, outHint *OutboundTunnel) error {
	env, err := m.codec.EncodeVariableTunnelBuild(cfg.Hops[0].Router, req.Records)
	if err != nil {
		return oops.Wrapf(err, "encode variable tunnel build")
	}

	if outHint != nil {
		return outHint.SendTunnelDataMsg(env)
	}

	hash, err := cfg.Hops[0].Router.IdentHash()
	if err != nil {
		return oops.Wrapf(err, "identity hash for first hop")
	}
	return m.transport.Send(hash, env)
}

// buildOneHopInbound picks a random NetDB peer and launches a one-hop
// inbound build.
func (m *TunnelManager) buildOneHopInbound() error {
	peer, err := m.netdb.RandomRouterInfo()
	if err != nil {
		return oops.Wrapf(err, "select peer for inbound build")
	}
	cfg, err := NewTunnelConfig([]router_info.RouterInfo{peer}, false)
	if err != nil {
		return err
	}
	t := NewInboundTunnel(cfg, nil, nil)
	return m.createBuild(&pendingBuild{cfg: cfg, inbound: t})
}

// buildOneHopOutbound builds a one-hop outbound tunnel whose inverted
// config matches returnPath's config, so replies come back through a
// tunnel we already know.
func (m *TunnelManager) buildOneHopOutbound(returnPath *InboundTunnel) error {
	cfg, err := returnPath.Config().Invert()
	if err != nil {
		return err
	}
	t := NewOutboundTunnel(cfg, nil, m.transport)
	return m.createBuild(&pendingBuild{cfg: cfg, outbound: t})
}

// createZeroHopInbound builds a degenerate one-hop inbound tunnel
// whose single hop is our own router, so we always have somewhere to
// receive replies even before any real build has succeeded.
func (m *TunnelManager) createZeroHopInbound() {
	cfg, err := NewTunnelConfig([]router_info.RouterInfo{m.ctx.RouterInfo()}, false)
	if err != nil {
		log.WithFields(logger.Fields{"at": "TunnelManager.createZeroHopInbound"}).WithError(err).Debug("could not build zero-hop config")
		return
	}
	t := NewInboundTunnel(cfg, nil, nil)
	if err := t.BindLayerKeys(); err != nil {
		log.WithFields(logger.Fields{"at": "TunnelManager.createZeroHopInbound"}).WithError(err).Debug("could not bind layer keys")
		return
	}
	m.insertInbound(t)
}

// releaseAll drops every tunnel in every table on manager
// destruction.
func (m *TunnelManager) releaseAll() {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	m.outbound = nil
	m.inbound = make(map[TunnelID]*InboundTunnel)
	m.transit = make(map[TunnelID]*transitEntry)
	m.pending = make(map[ReplyMessageID]*pendingBuild)
}
