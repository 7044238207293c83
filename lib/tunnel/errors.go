package tunnel

import "errors"

// Sentinel errors describing conditions callers branch on. Errors raised
// at operation boundaries (build assembly, response parsing, dispatch)
// are wrapped with github.com/samber/oops instead; see build.go and
// manager.go.
var (
	// ErrUnknownTunnel reports a lookup miss: logged by dispatch when a
	// frame's TunnelID is in neither the inbound nor the transit table,
	// and returned by HandleBuildResponse when a reply ID has no pending
	// entry.
	ErrUnknownTunnel = errors.New("tunnel: unknown tunnel id")

	// ErrBuildDeclined is returned when every hop of a build attempt
	// rejects the request, or a peer sends back a non-zero ret byte.
	ErrBuildDeclined = errors.New("tunnel: build request declined")

	// ErrBuildTimeout is logged by sweepPending when a pending build
	// has received no reply by the next management tick.
	ErrBuildTimeout = errors.New("tunnel: build request timed out")

	// ErrDispatchException tags a panic recovered from the worker's
	// per-item handling; the item is dropped and the loop continues.
	ErrDispatchException = errors.New("tunnel: dispatch exception")

	// ErrRecordSize is returned when a build record does not match the
	// fixed 528-byte record size.
	ErrRecordSize = errors.New("tunnel: build record has wrong size")

	// ErrFrameSize is returned when a payload is larger than the
	// 1008-byte body of a tunnel data frame.
	ErrFrameSize = errors.New("tunnel: data frame has wrong size")

	// ErrNoHops is returned when a TunnelConfig is built with zero hops.
	ErrNoHops = errors.New("tunnel: config has no hops")

	// ErrTooManyHops is returned when a TunnelConfig requests more hops
	// than config.TunnelDefaults.MaxHops allows.
	ErrTooManyHops = errors.New("tunnel: too many hops requested")

	// ErrManagerStopped is returned by operations attempted after
	// TunnelManager.Stop has completed.
	ErrManagerStopped = errors.New("tunnel: manager stopped")

	// ErrNoPeersAvailable is returned when NextOutbound has no
	// non-failed candidate to sample from.
	ErrNoPeersAvailable = errors.New("tunnel: no peers available")
)
