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

package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/x0tta6bl4-ai/x0mesh/config"
	"github.com/x0tta6bl4-ai/x0mesh/internal/identity"
	"github.com/x0tta6bl4-ai/x0mesh/internal/keyvault"
	"github.com/x0tta6bl4-ai/x0mesh/internal/pqc"
)

var (
	keygenConfigPath string
	keygenKind       string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate identity or session key material",
	Long: `keygen --kind identity forces generation of a brand new node identity
and overwrites whatever is currently persisted in the configured key vault.

keygen --kind session prints a fresh, ephemeral KEM keypair to stdout. Session
keys are never persisted: they exist only for the lifetime of one handshake,
so this is a convenience for manual inspection, not a durable credential.`,
	Example: `  x0node keygen --kind identity --config ./config.yaml
  x0node keygen --kind session --config ./config.yaml`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenConfigPath, "config", "c", "config.yaml", "Path to the node config file")
	keygenCmd.Flags().StringVar(&keygenKind, "kind", "identity", "Kind of key material to generate: identity|session")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(keygenConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine := pqc.NewEngine(pqc.KEMAlgorithm(cfg.PQC.KEMAlgorithm), pqc.SigAlgorithm(cfg.PQC.SigAlgorithm), cfg.PQC.AllowMockPQC, cfg.PQC.ProductionMode)

	switch keygenKind {
	case "identity":
		return runKeygenIdentity(cfg, engine)
	case "session":
		return runKeygenSession(engine)
	default:
		return fmt.Errorf("unknown --kind %q, expected identity or session", keygenKind)
	}
}

func runKeygenIdentity(cfg *config.Config, engine *pqc.Engine) error {
	vault, err := keyvault.New(cfg.KeyVault.Type, cfg.KeyVault.Directory)
	if err != nil {
		return fmt.Errorf("construct keyvault: %w", err)
	}
	passphrase := os.Getenv(cfg.KeyVault.PassphraseEnv)

	id, err := identity.New(engine, cfg.Mesh.RotationInterval, cfg.Mesh.QuarantineTTL)
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	if err := id.Persist(vault, passphrase); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	nodeID, epoch, sig, kemKP := id.CurrentIdentity()
	fmt.Printf("node_id:       %s\n", nodeID.String())
	fmt.Printf("epoch:         %d\n", epoch)
	fmt.Printf("sig_algorithm: %s\n", sig.Algorithm)
	fmt.Printf("kem_algorithm: %s\n", kemKP.Algorithm)
	fmt.Printf("stored in:     %s (%s)\n", cfg.KeyVault.Directory, cfg.KeyVault.Type)
	return nil
}

func runKeygenSession(engine *pqc.Engine) error {
	kp, err := engine.GenerateKEMKeypair()
	if err != nil {
		return fmt.Errorf("generate session kem keypair: %w", err)
	}
	pubBytes, err := kp.PublicKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal session public key: %w", err)
	}
	privBytes, err := kp.PrivateKey.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal session private key: %w", err)
	}

	fmt.Printf("kem_algorithm: %s\n", kp.Algorithm)
	fmt.Printf("public_key:    %s\n", base64.StdEncoding.EncodeToString(pubBytes))
	fmt.Printf("private_key:   %s\n", base64.StdEncoding.EncodeToString(privBytes))
	fmt.Println("this key is ephemeral and was not written to any vault")
	return nil
}
