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

package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment variables
// across every string field of cfg that may plausibly carry a placeholder.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.KeyVault != nil {
		cfg.KeyVault.Type = SubstituteEnvVars(cfg.KeyVault.Type)
		cfg.KeyVault.Directory = SubstituteEnvVars(cfg.KeyVault.Directory)
		cfg.KeyVault.PassphraseEnv = SubstituteEnvVars(cfg.KeyVault.PassphraseEnv)
	}

	if cfg.Logging != nil {
		cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
		cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
		cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
		cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	}

	if cfg.Health != nil {
		cfg.Health.Addr = SubstituteEnvVars(cfg.Health.Addr)
		cfg.Health.Path = SubstituteEnvVars(cfg.Health.Path)
	}

	if cfg.PQC != nil {
		cfg.PQC.KEMAlgorithm = SubstituteEnvVars(cfg.PQC.KEMAlgorithm)
		cfg.PQC.SigAlgorithm = SubstituteEnvVars(cfg.PQC.SigAlgorithm)
	}

	cfg.NodeID = SubstituteEnvVars(cfg.NodeID)
}

// GetEnvironment returns the runtime environment from X0_ENV or ENVIRONMENT,
// defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("X0_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction reports whether the runtime environment is production.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment reports whether the runtime environment is development or local.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}
