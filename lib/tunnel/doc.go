// Package tunnel builds, maintains, and multiplexes I2P-style
// cryptographic tunnels.
//
// # Overview
//
// A tunnel is a unidirectional chain of 0..N relaying peers over which
// a local router sends or receives messages anonymously. This package
// covers three things:
//
//   - The layered-encryption tunnel build protocol (BuildProtocol),
//     used to negotiate session keys with each participating hop.
//   - The per-hop data-plane encryption discipline (DataCipher,
//     WrapOutbound, PeelInbound) applied to every message traversing a
//     tunnel.
//   - The tunnel lifecycle manager (TunnelManager), which schedules
//     build attempts, ages out expired tunnels, dispatches inbound
//     messages by tunnel ID, and maintains a steady pool of usable
//     tunnels.
//
// # Roles
//
// HopConfig.IsGateway marks the hop that accepts traffic into the
// tunnel; HopConfig.IsEndpoint marks the hop at which it terminates.
// Everything in between is a transit hop, represented for our own
// tunnels only implicitly (we hold the whole TunnelConfig) and for
// tunnels built by other routers as a TransitTunnel: a single-layer
// forwarder keyed by our own tunnel ID.
//
// # Concurrency
//
// TunnelManager is a single-writer scheduler. One dedicated worker
// goroutine owns the inbound, outbound, transit, pending, and pools
// tables; everything else reaches the manager through PostTunnelData
// (the dispatch queue) or the lock-guarded accessor methods. An
// OutboundTunnel serializes its own SendTunnelDataMsg calls, since its
// per-hop cipher state has strict message-sequential dependence via
// CBC chaining.
//
// # Cryptography
//
// Build records are ElGamal-encrypted through the Codec collaborator,
// out of this package's scope. Data-plane crypto is classic AES-CBC
// with a dual key per hop (a layer key and an IV-masking key), built
// on the standard library's crypto/aes and crypto/cipher.
package tunnel
