package config

// defaultRuntime mirrors the teacher's habit (internal/config.DefaultConfig)
// of building every default in one function rather than scattering zero
// checks through the codebase.
func defaultRuntime(backendCount int) Runtime {
	backlog := 4 * backendCount
	if backlog < 128 {
		backlog = 128
	}
	return Runtime{
		HealthCheckIntervalMS:            2000,
		HealthCheckTimeoutMS:             500,
		HealthCheckFailThreshold:         3,
		HealthCheckSuccessThreshold:      2,
		BackendConnectTimeoutMS:          300,
		FailoverBackoffInitialMS:         50,
		FailoverBackoffMaxMS:             2000,
		BackendCooldownMS:                5000,
		ProtectionTriggerThreshold:       10,
		ProtectionWindowMS:               10000,
		ProtectionStableSuccessThreshold: 20,
		MaxConcurrentConnections:         20000,
		ConnectionIdleTimeoutMS:          300000,
		TCPBacklog:                       backlog,
		OverloadPolicy:                   OverloadReject,
	}
}

// DefaultSnapshot returns a Snapshot with every tuning parameter at its
// documented default and no backends — callers must populate Backends and
// Listen before Validate will accept it.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Method:   RoundRobin,
		LogLevel: "info",
		Listen:   Listen{BindAddr: "127.0.0.1", Port: 8080},
		Runtime:  defaultRuntime(0),
	}
}

// mergeRuntime fills zero-valued fields of partial with the defaults derived
// from backendCount, so a config file only needs to mention the tuning
// values it wants to override.
func mergeRuntime(partial Runtime, backendCount int) Runtime {
	d := defaultRuntime(backendCount)
	if partial.HealthCheckIntervalMS == 0 {
		partial.HealthCheckIntervalMS = d.HealthCheckIntervalMS
	}
	if partial.HealthCheckTimeoutMS == 0 {
		partial.HealthCheckTimeoutMS = d.HealthCheckTimeoutMS
	}
	if partial.HealthCheckFailThreshold == 0 {
		partial.HealthCheckFailThreshold = d.HealthCheckFailThreshold
	}
	if partial.HealthCheckSuccessThreshold == 0 {
		partial.HealthCheckSuccessThreshold = d.HealthCheckSuccessThreshold
	}
	if partial.BackendConnectTimeoutMS == 0 {
		partial.BackendConnectTimeoutMS = d.BackendConnectTimeoutMS
	}
	if partial.FailoverBackoffInitialMS == 0 {
		partial.FailoverBackoffInitialMS = d.FailoverBackoffInitialMS
	}
	if partial.FailoverBackoffMaxMS == 0 {
		partial.FailoverBackoffMaxMS = d.FailoverBackoffMaxMS
	}
	if partial.BackendCooldownMS == 0 {
		partial.BackendCooldownMS = d.BackendCooldownMS
	}
	if partial.ProtectionTriggerThreshold == 0 {
		partial.ProtectionTriggerThreshold = d.ProtectionTriggerThreshold
	}
	if partial.ProtectionWindowMS == 0 {
		partial.ProtectionWindowMS = d.ProtectionWindowMS
	}
	if partial.ProtectionStableSuccessThreshold == 0 {
		partial.ProtectionStableSuccessThreshold = d.ProtectionStableSuccessThreshold
	}
	if partial.MaxConcurrentConnections == 0 {
		partial.MaxConcurrentConnections = d.MaxConcurrentConnections
	}
	if partial.ConnectionIdleTimeoutMS == 0 {
		partial.ConnectionIdleTimeoutMS = d.ConnectionIdleTimeoutMS
	}
	if partial.TCPBacklog == 0 {
		partial.TCPBacklog = d.TCPBacklog
	}
	if partial.OverloadPolicy == "" {
		partial.OverloadPolicy = d.OverloadPolicy
	}
	return partial
}
