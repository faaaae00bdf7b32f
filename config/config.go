// x0mesh - Post-Quantum Autonomic Mesh Node
// Copyright (C) 2026 x0tta6bl4-ai
//
// This file is part of x0mesh.
//
// x0mesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x0mesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with x0mesh. If not, see <https://www.gnu.org/licenses/>.

// Package config loads and validates node configuration from YAML or JSON,
// with environment variable substitution and environment-specific defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	NodeID string `yaml:"node_id" json:"node_id"`

	Mesh    *MeshConfig    `yaml:"mesh" json:"mesh"`
	PQC     *PQCConfig     `yaml:"pqc" json:"pqc"`
	MAPEK   *MAPEKConfig   `yaml:"mapek" json:"mapek"`
	Gossip  *GossipConfig  `yaml:"gossip" json:"gossip"`
	KeyVault *KeyVaultConfig `yaml:"keyvault" json:"keyvault"`
	Logging *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
}

// MeshConfig holds beacon, session, and quorum scheduling parameters.
type MeshConfig struct {
	SlotMS                   int           `yaml:"slot_ms" json:"slot_ms"`
	SessionTTLSlots          int64         `yaml:"session_ttl_slots" json:"session_ttl_slots"`
	RotationInterval         time.Duration `yaml:"rotation_interval" json:"rotation_interval"`
	QuarantineThreshold      float64       `yaml:"quarantine_threshold" json:"quarantine_threshold"`
	QuarantineTTL            time.Duration `yaml:"quarantine_ttl" json:"quarantine_ttl"`
	QuorumWindowSlots        int64         `yaml:"quorum_window" json:"quorum_window"`
	VerificationWindow       time.Duration `yaml:"verification_window" json:"verification_window"`
	PeerTelemetryRate        int           `yaml:"peer_telemetry_rate" json:"peer_telemetry_rate"`
	GracefulShutdownDeadline time.Duration `yaml:"graceful_shutdown_deadline" json:"graceful_shutdown_deadline"`
	FallbackTTL              time.Duration `yaml:"fallback_ttl" json:"fallback_ttl"`
	DriftThresholdMS         int           `yaml:"drift_threshold_ms" json:"drift_threshold_ms"`
	DriftDamping             float64       `yaml:"drift_damping" json:"drift_damping"`
}

// PQCConfig controls the post-quantum crypto engine.
type PQCConfig struct {
	KEMAlgorithm   string `yaml:"kem_algorithm" json:"kem_algorithm"`
	SigAlgorithm   string `yaml:"sig_algorithm" json:"sig_algorithm"`
	Workers        int    `yaml:"pqc_workers" json:"pqc_workers"`
	AllowMockPQC   bool   `yaml:"allow_mock_pqc" json:"allow_mock_pqc"`
	ProductionMode bool   `yaml:"production_mode" json:"production_mode"`
}

// MAPEKConfig controls the autonomic control loop cadence.
type MAPEKConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`
}

// GossipConfig controls rate limiting and replay windows.
type GossipConfig struct {
	MaxMsgsPerPeerPerSlot int `yaml:"max_msgs_per_peer_per_slot" json:"max_msgs_per_peer_per_slot"`
	ReplayWindowSize      int `yaml:"replay_window_size" json:"replay_window_size"`
}

// KeyVaultConfig controls at-rest key storage.
type KeyVaultConfig struct {
	Type          string `yaml:"type" json:"type"`
	Directory     string `yaml:"directory" json:"directory"`
	PassphraseEnv string `yaml:"passphrase_env" json:"passphrase_env"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig controls the Prometheus pull endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls the self-check aggregator.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile reads and parses a config file, trying YAML then JSON,
// applies environment variable substitution, fills defaults, and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
		}
	}

	SubstituteEnvVarsInConfig(cfg)
	setDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveToFile serializes cfg to path, choosing JSON or YAML by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate enforces cross-field invariants that cannot be expressed as
// struct defaults, in particular the allow_mock_pqc/production_mode
// mutual exclusivity required at startup.
func Validate(cfg *Config) error {
	if cfg.PQC != nil && cfg.PQC.AllowMockPQC && cfg.PQC.ProductionMode {
		return fmt.Errorf("config: allow_mock_pqc and production_mode are mutually exclusive")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Mesh == nil {
		cfg.Mesh = &MeshConfig{}
	}
	m := cfg.Mesh
	if m.SlotMS == 0 {
		m.SlotMS = 100
	}
	if m.SessionTTLSlots == 0 {
		m.SessionTTLSlots = int64(time.Hour / (time.Duration(m.SlotMS) * time.Millisecond))
	}
	if m.RotationInterval == 0 {
		m.RotationInterval = 24 * time.Hour
	}
	if m.QuarantineThreshold == 0 {
		m.QuarantineThreshold = 0.2
	}
	if m.QuarantineTTL == 0 {
		m.QuarantineTTL = time.Hour
	}
	if m.QuorumWindowSlots == 0 {
		m.QuorumWindowSlots = 3
	}
	if m.VerificationWindow == 0 {
		m.VerificationWindow = 30 * time.Second
	}
	if m.PeerTelemetryRate == 0 {
		m.PeerTelemetryRate = 10
	}
	if m.GracefulShutdownDeadline == 0 {
		m.GracefulShutdownDeadline = 10 * time.Second
	}
	if m.FallbackTTL == 0 {
		m.FallbackTTL = time.Hour
	}
	if m.DriftThresholdMS == 0 {
		m.DriftThresholdMS = 50
	}
	if m.DriftDamping == 0 {
		m.DriftDamping = 0.3
	}

	if cfg.PQC == nil {
		cfg.PQC = &PQCConfig{}
	}
	if cfg.PQC.KEMAlgorithm == "" {
		cfg.PQC.KEMAlgorithm = "KEM-L3"
	}
	if cfg.PQC.SigAlgorithm == "" {
		cfg.PQC.SigAlgorithm = "SIG-L3"
	}
	if cfg.PQC.Workers == 0 {
		cfg.PQC.Workers = 2
	}

	if cfg.MAPEK == nil {
		cfg.MAPEK = &MAPEKConfig{}
	}
	if cfg.MAPEK.TickInterval == 0 {
		cfg.MAPEK.TickInterval = 30 * time.Second
	}

	if cfg.Gossip == nil {
		cfg.Gossip = &GossipConfig{}
	}
	if cfg.Gossip.MaxMsgsPerPeerPerSlot == 0 {
		cfg.Gossip.MaxMsgsPerPeerPerSlot = 50
	}
	if cfg.Gossip.ReplayWindowSize == 0 {
		cfg.Gossip.ReplayWindowSize = 1024
	}

	if cfg.KeyVault == nil {
		cfg.KeyVault = &KeyVaultConfig{}
	}
	if cfg.KeyVault.Type == "" {
		cfg.KeyVault.Type = "encrypted-file"
	}
	if cfg.KeyVault.Directory == "" {
		cfg.KeyVault.Directory = ".x0mesh/keys"
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Enabled: true}
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":9091"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}
