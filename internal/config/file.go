package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk YAML shape of §6. `Mode` is accepted for
// backward compatibility and deliberately discarded after parsing.
type fileSchema struct {
	Port        int        `yaml:"port"`
	BindAddress string     `yaml:"bind_address"`
	Method      string     `yaml:"method"`
	LogLevel    string     `yaml:"log_level"`
	Mode        string     `yaml:"mode"` // ignored; kept for backward compatibility
	Backends    []Endpoint `yaml:"backends"`
	Runtime     Runtime    `yaml:"runtime"`
}

// LoadFromFile parses and validates a YAML config file into a Snapshot,
// following the teacher's two-step LoadFromFile/LoadFromEnv overlay order:
// file first, environment variables second.
func LoadFromFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return Snapshot{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	s := DefaultSnapshot()
	s.Listen.Port = fs.Port
	if fs.BindAddress != "" {
		s.Listen.BindAddr = fs.BindAddress
	}
	if fs.Method != "" {
		s.Method = Method(fs.Method)
	}
	if fs.LogLevel != "" {
		s.LogLevel = fs.LogLevel
	}
	s.Backends = fs.Backends
	s.Runtime = mergeRuntime(fs.Runtime, len(fs.Backends))

	LoadFromEnv(&s)

	if err := Validate(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// LoadFromEnv applies the narrow set of environment overrides an on-prem
// operator scripts around, mirroring the teacher's internal/config.LoadFromEnv.
func LoadFromEnv(s *Snapshot) {
	if v := os.Getenv("BAL_LISTEN_ADDR"); v != "" {
		s.Listen.BindAddr = v
	}
	if v := os.Getenv("BAL_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
}
