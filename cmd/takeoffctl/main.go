// Package main implements the takeoffctl CLI for manual operations against
// the takeoffd HTTP server and its stored artifacts.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the takeoffd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "takeoffctl",
	Short: "CLI for takeoffd operations",
	Long: `takeoffctl is a command-line interface for the takeoffd daemon.
It executes takeoff runs, inspects and verifies stored ledger snapshots,
and validates policy files before they are deployed.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "takeoffd server URL")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(validatePolicyCmd)
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check takeoffd server health",
	Long: `Check the health status of the takeoffd HTTP server.

Examples:
  # Check health
  takeoffctl health

  # Check health on a different server
  takeoffctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches internal/server/server.go HealthResponse
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(fmt.Sprintf("%s/health", serverURL))
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("%s: %s\n", health.Service, health.Status)
	return nil
}

// httpClient returns the client used for all server calls.
func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
