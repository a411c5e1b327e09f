package config

import "github.com/oriys/bal/internal/balerr"

// Validate checks a Snapshot against the bounds of §3. It never mutates s.
func Validate(s Snapshot) error {
	if len(s.Backends) == 0 {
		return balerr.NewConfigInvalid("backends", "must not be empty")
	}
	seen := make(map[Endpoint]struct{}, len(s.Backends))
	for _, b := range s.Backends {
		if b.Port < 1 || b.Port > 65535 {
			return balerr.NewConfigInvalid("backends[].port", "must be in 1..=65535")
		}
		if b.Host == "" {
			return balerr.NewConfigInvalid("backends[].host", "must not be empty")
		}
		if _, dup := seen[b]; dup {
			return balerr.NewConfigInvalid("backends", "endpoint "+b.String()+" listed more than once")
		}
		seen[b] = struct{}{}
	}

	if s.Listen.Port < 1 || s.Listen.Port > 65535 {
		return balerr.NewConfigInvalid("port", "must be in 1..=65535")
	}
	if s.Listen.BindAddr == "" {
		return balerr.NewConfigInvalid("bind_address", "must not be empty")
	}

	if s.Method != RoundRobin {
		return balerr.NewConfigInvalid("method", "only round_robin is supported")
	}

	r := s.Runtime
	switch {
	case r.HealthCheckIntervalMS < 50:
		return balerr.NewConfigInvalid("runtime.health_check_interval_ms", "must be >= 50")
	case r.HealthCheckTimeoutMS < 50:
		return balerr.NewConfigInvalid("runtime.health_check_timeout_ms", "must be >= 50")
	case r.HealthCheckFailThreshold < 1:
		return balerr.NewConfigInvalid("runtime.health_check_fail_threshold", "must be >= 1")
	case r.HealthCheckSuccessThreshold < 1:
		return balerr.NewConfigInvalid("runtime.health_check_success_threshold", "must be >= 1")
	case r.BackendConnectTimeoutMS < 50:
		return balerr.NewConfigInvalid("runtime.backend_connect_timeout_ms", "must be >= 50")
	case r.FailoverBackoffMaxMS < r.FailoverBackoffInitialMS:
		return balerr.NewConfigInvalid("runtime.failover_backoff_max_ms", "must be >= failover_backoff_initial_ms")
	case r.BackendCooldownMS < 0:
		return balerr.NewConfigInvalid("runtime.backend_cooldown_ms", "must be >= 0")
	case r.ProtectionTriggerThreshold < 1:
		return balerr.NewConfigInvalid("runtime.protection_trigger_threshold", "must be >= 1")
	case r.ProtectionWindowMS < 1:
		return balerr.NewConfigInvalid("runtime.protection_window_ms", "must be >= 1")
	case r.ProtectionStableSuccessThreshold < 1:
		return balerr.NewConfigInvalid("runtime.protection_stable_success_threshold", "must be >= 1")
	case r.MaxConcurrentConnections < 1:
		return balerr.NewConfigInvalid("runtime.max_concurrent_connections", "must be >= 1")
	case r.ConnectionIdleTimeoutMS < 0:
		return balerr.NewConfigInvalid("runtime.connection_idle_timeout_ms", "must be >= 0")
	case r.TCPBacklog < 1:
		return balerr.NewConfigInvalid("runtime.tcp_backlog", "must be >= 1")
	case r.OverloadPolicy != OverloadReject:
		return balerr.NewConfigInvalid("runtime.overload_policy", "only \"reject\" is supported")
	}

	return nil
}
