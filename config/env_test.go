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
	"testing"
)

func TestSubstituteEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "simple variable substitution",
			input:    "${TEST_VAR}",
			envVars:  map[string]string{"TEST_VAR": "value123"},
			expected: "value123",
		},
		{
			name:     "variable with default - variable exists",
			input:    "${TEST_VAR:default}",
			envVars:  map[string]string{"TEST_VAR": "actual"},
			expected: "actual",
		},
		{
			name:     "variable with default - variable missing",
			input:    "${MISSING_VAR:default}",
			envVars:  map[string]string{},
			expected: "default",
		},
		{
			name:     "multiple variables in string",
			input:    "${HOST}:${PORT}",
			envVars:  map[string]string{"HOST": "localhost", "PORT": "9090"},
			expected: "localhost:9090",
		},
		{
			name:     "no variables",
			input:    "plain text",
			envVars:  map[string]string{},
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}
			result := SubstituteEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("SubstituteEnvVars() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		value    string
		expected string
	}{
		{"X0_ENV set", "X0_ENV", "production", "production"},
		{"ENVIRONMENT set", "ENVIRONMENT", "staging", "staging"},
		{"no env var - defaults to development", "", "", "development"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("X0_ENV")
			os.Unsetenv("ENVIRONMENT")
			if tt.envVar != "" {
				os.Setenv(tt.envVar, tt.value)
				defer os.Unsetenv(tt.envVar)
			}
			if result := GetEnvironment(); result != tt.expected {
				t.Errorf("GetEnvironment() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestIsProductionAndDevelopment(t *testing.T) {
	tests := []struct {
		env       string
		wantProd  bool
		wantDev   bool
	}{
		{"production", true, false},
		{"development", false, true},
		{"local", false, true},
		{"staging", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			os.Setenv("X0_ENV", tt.env)
			defer os.Unsetenv("X0_ENV")

			if got := IsProduction(); got != tt.wantProd {
				t.Errorf("IsProduction() = %v, want %v", got, tt.wantProd)
			}
			if got := IsDevelopment(); got != tt.wantDev {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.wantDev)
			}
		})
	}
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	os.Setenv("TEST_KEY_DIR", "/tmp/x0mesh-keys")
	defer os.Unsetenv("TEST_KEY_DIR")

	cfg := &Config{
		KeyVault: &KeyVaultConfig{
			Directory: "${TEST_KEY_DIR}",
		},
		NodeID: "${TEST_NODE_ID:node-a}",
	}

	SubstituteEnvVarsInConfig(cfg)

	if cfg.KeyVault.Directory != "/tmp/x0mesh-keys" {
		t.Errorf("Directory = %q, want %q", cfg.KeyVault.Directory, "/tmp/x0mesh-keys")
	}
	if cfg.NodeID != "node-a" {
		t.Errorf("NodeID = %q, want %q", cfg.NodeID, "node-a")
	}
}
