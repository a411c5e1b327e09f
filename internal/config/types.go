// Package config holds the immutable configuration snapshot, its YAML
// wire format, validation, and the lock-free atomic swap that lets every
// other component pick up a new generation without a lock on the hot path.
package config

import (
	"fmt"
	"time"
)

// Endpoint is a backend's dial target. Hostnames are resolved lazily at
// probe/connect time; resolution failure is treated as a connect failure.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Method selects the load-balancing policy. Only RoundRobin is implemented;
// the type exists so the selector's contract can admit future methods.
type Method string

const (
	RoundRobin Method = "round_robin"
)

// OverloadPolicy selects the admission-control behavior once
// max_concurrent_connections is reached.
type OverloadPolicy string

const (
	OverloadReject OverloadPolicy = "reject"
)

// Runtime holds the tuning parameters of §3, already resolved to
// millisecond durations and validated against their documented bounds.
type Runtime struct {
	HealthCheckIntervalMS            int            `yaml:"health_check_interval_ms"`
	HealthCheckTimeoutMS             int            `yaml:"health_check_timeout_ms"`
	HealthCheckFailThreshold         int            `yaml:"health_check_fail_threshold"`
	HealthCheckSuccessThreshold      int            `yaml:"health_check_success_threshold"`
	BackendConnectTimeoutMS          int            `yaml:"backend_connect_timeout_ms"`
	FailoverBackoffInitialMS         int            `yaml:"failover_backoff_initial_ms"`
	FailoverBackoffMaxMS             int            `yaml:"failover_backoff_max_ms"`
	BackendCooldownMS                int            `yaml:"backend_cooldown_ms"`
	ProtectionTriggerThreshold       int            `yaml:"protection_trigger_threshold"`
	ProtectionWindowMS               int            `yaml:"protection_window_ms"`
	ProtectionStableSuccessThreshold int            `yaml:"protection_stable_success_threshold"`
	MaxConcurrentConnections         int            `yaml:"max_concurrent_connections"`
	ConnectionIdleTimeoutMS          int            `yaml:"connection_idle_timeout_ms"`
	TCPBacklog                       int            `yaml:"tcp_backlog"`
	OverloadPolicy                   OverloadPolicy `yaml:"overload_policy"`
}

func (r Runtime) HealthCheckInterval() time.Duration {
	return time.Duration(r.HealthCheckIntervalMS) * time.Millisecond
}

func (r Runtime) HealthCheckTimeout() time.Duration {
	return time.Duration(r.HealthCheckTimeoutMS) * time.Millisecond
}

func (r Runtime) BackendConnectTimeout() time.Duration {
	return time.Duration(r.BackendConnectTimeoutMS) * time.Millisecond
}

func (r Runtime) FailoverBackoffInitial() time.Duration {
	return time.Duration(r.FailoverBackoffInitialMS) * time.Millisecond
}

func (r Runtime) FailoverBackoffMax() time.Duration {
	return time.Duration(r.FailoverBackoffMaxMS) * time.Millisecond
}

func (r Runtime) BackendCooldown() time.Duration {
	return time.Duration(r.BackendCooldownMS) * time.Millisecond
}

func (r Runtime) ProtectionWindow() time.Duration {
	return time.Duration(r.ProtectionWindowMS) * time.Millisecond
}

func (r Runtime) ConnectionIdleTimeout() time.Duration {
	return time.Duration(r.ConnectionIdleTimeoutMS) * time.Millisecond
}

// Listen is the bind endpoint the proxy accepts connections on.
type Listen struct {
	BindAddr string `yaml:"bind_address"`
	Port     int    `yaml:"port"`
}

func (l Listen) Addr() string {
	return fmt.Sprintf("%s:%d", l.BindAddr, l.Port)
}

// Snapshot is an immutable, fully validated configuration value. Multiple
// generations coexist; a reader acquires the current one via Manager.Current
// and may hold it for the lifetime of a connection without ever observing a
// torn composite.
type Snapshot struct {
	Generation uint64
	Listen     Listen
	Method     Method
	Backends   []Endpoint
	Runtime    Runtime
	LogLevel   string
}

// Equal reports whether two snapshots are value-identical, ignoring
// Generation. Used by Manager.Swap to implement the no-op-swap idempotence
// property of §8.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Listen != o.Listen || s.Method != o.Method || s.Runtime != o.Runtime || s.LogLevel != o.LogLevel {
		return false
	}
	if len(s.Backends) != len(o.Backends) {
		return false
	}
	for i := range s.Backends {
		if s.Backends[i] != o.Backends[i] {
			return false
		}
	}
	return true
}
