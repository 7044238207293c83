// Package config carries default tuning values for the tunnel engine.
package config

import "time"

// TunnelDefaults contains default values for tunnel lifecycle management.
type TunnelDefaults struct {
	// Expiration is how long a built tunnel stays usable after creation.
	// Default: 10 minutes (I2P protocol standard)
	Expiration time.Duration

	// TargetLiveCount is the number of live tunnels the manager tries to
	// keep in each of the inbound and outbound tables.
	// Default: 5
	TargetLiveCount int

	// ManagementInterval is how often the worker sweeps pending builds,
	// ages out expired tunnels, and drives pool maintenance.
	// Default: 15 seconds
	ManagementInterval time.Duration

	// DispatchPollInterval bounds how long the worker blocks waiting for
	// the next inbound message before checking the management clock.
	// Default: 1 second
	DispatchPollInterval time.Duration

	// MaxHops is the largest hop count a single tunnel build may request.
	// Default: 8 (I2P protocol standard)
	MaxHops int

	// StartupDelay is how long the worker waits before its first pass,
	// giving collaborators (transport, netdb) time to initialize.
	// Default: 1 second
	StartupDelay time.Duration
}

// Defaults returns the reference TunnelDefaults.
func Defaults() TunnelDefaults {
	return buildTunnelDefaults()
}

// buildTunnelDefaults constructs the default tunnel configuration values.
func buildTunnelDefaults() TunnelDefaults {
	return TunnelDefaults{
		Expiration:           10 * time.Minute,
		TargetLiveCount:      5,
		ManagementInterval:   15 * time.Second,
		DispatchPollInterval: 1 * time.Second,
		MaxHops:              8,
		StartupDelay:         1 * time.Second,
	}
}
