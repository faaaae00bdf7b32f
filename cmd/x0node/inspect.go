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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/x0tta6bl4-ai/x0mesh/pkg/health"
)

var inspectAddr string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a running node over its health endpoint",
	Long: `A node exposes no RPC or admin protocol of its own: the only live
introspection surface is its health server. inspect is an HTTP client
against that endpoint, not a separate control channel.`,
}

var inspectPeersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Show the mesh's peer composition as last observed by the node",
	RunE:  runInspectPeers,
}

var inspectReputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Show the aggregate state the node's health endpoint exposes",
	Long: `The health endpoint does not currently export a per-peer reputation
breakdown, only the aggregate active/quarantined counts that reputation-driven
quarantine decisions produce. This command surfaces that aggregate view; it
does not invent data the node does not already report.`,
	RunE: runInspectReputation,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectPeersCmd)
	inspectCmd.AddCommand(inspectReputationCmd)
	inspectCmd.PersistentFlags().StringVar(&inspectAddr, "addr", "http://127.0.0.1:9091", "Base address of the target node's health server")
}

func fetchHealth(addr string) (*health.HealthStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/healthz")
	if err != nil {
		return nil, fmt.Errorf("reach node health endpoint: %w", err)
	}
	defer resp.Body.Close()

	var status health.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &status, nil
}

func runInspectPeers(cmd *cobra.Command, args []string) error {
	status, err := fetchHealth(inspectAddr)
	if err != nil {
		return err
	}
	if status.Mesh == nil {
		fmt.Println("node reported no mesh status")
		return nil
	}
	m := status.Mesh
	fmt.Printf("orchestrator_running: %t\n", m.OrchestratorRunning)
	fmt.Printf("last_tick_ago:        %s\n", m.LastTickAgo)
	fmt.Printf("total_peers:          %d\n", m.TotalPeers)
	fmt.Printf("active_peers:         %d\n", m.ActivePeers)
	fmt.Printf("quarantined_peers:    %d\n", m.QuarantinedPeers)
	return nil
}

func runInspectReputation(cmd *cobra.Command, args []string) error {
	status, err := fetchHealth(inspectAddr)
	if err != nil {
		return err
	}
	if status.Mesh == nil {
		fmt.Println("node reported no mesh status")
		return nil
	}
	m := status.Mesh
	fmt.Printf("active_peers:      %d\n", m.ActivePeers)
	fmt.Printf("quarantined_peers: %d\n", m.QuarantinedPeers)
	if m.QuarantinedPeers > 0 {
		fmt.Println("one or more peers have been quarantined by the reputation system")
	}
	return nil
}
