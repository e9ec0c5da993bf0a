package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/server"
)

var (
	// run command flags
	runDocID    string
	runDocName  string
	runDocURI   string
	runDocType  string
	runPolicyID string
	runMaxPages int
	runJSON     bool
)

func init() {
	runCmd.Flags().StringVar(&runDocID, "id", "", "Document identifier (required)")
	runCmd.Flags().StringVar(&runDocName, "name", "", "Document display name")
	runCmd.Flags().StringVar(&runDocURI, "uri", "", "Document location")
	runCmd.Flags().StringVar(&runDocType, "type", "framing_plan", "Drawing kind")
	runCmd.Flags().StringVar(&runPolicyID, "policy", "", "Policy id (unknown ids resolve to default)")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "Extraction page bound (0 uses the policy limit)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output the full run result as JSON")
	_ = runCmd.MarkFlagRequired("id")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a takeoff run for a document",
	Long: `Execute the takeoff pipeline for one document on the takeoffd server.

The run outcome is reported even when stages failed; failed stages appear in
the error list and the partial ledger is still persisted.

Examples:
  # Run against the default policy
  takeoffctl run --id plan-a101 --uri s3://plans/a101.pdf

  # Run under a project policy with a page cap
  takeoffctl run --id plan-a101 --policy acme-residential --max-pages 20`,
	RunE: runRun,
}

// runRun handles the run command
func runRun(cmd *cobra.Command, args []string) error {
	req := server.RunRequest{
		Document: extract.Document{
			ID:   runDocID,
			Name: runDocName,
			URI:  runDocURI,
			Type: runDocType,
		},
		MaxPages: runMaxPages,
		PolicyID: runPolicyID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := httpClient().Post(fmt.Sprintf("%s/v1/runs", serverURL), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var result server.RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if runJSON {
		return printJSON(result)
	}

	fmt.Printf("Run %s (policy %s)\n", result.RunID, result.PolicyID)
	fmt.Printf("Success: %v  Persisted: %v\n", result.Success, result.Persisted)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tSTATE\tATTEMPTS\tDURATION")
	for _, stage := range result.Stages {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", stage.Stage, stage.State, stage.Attempts, stage.Duration)
	}
	w.Flush()

	fmt.Printf("\nLedger: %d evidence, %d assumptions, %d inferences, %d decisions, %d flags (%d open)\n",
		result.Summary.EvidenceCount, result.Summary.AssumptionCount,
		result.Summary.InferenceCount, result.Summary.DecisionCount,
		result.Summary.FlagCount, result.Summary.OpenFlagCount)

	for _, d := range result.Decisions {
		fmt.Printf("  %s = %v\n", d.Topic, d.SelectedValue)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "stage error: %s\n", msg)
	}
	return nil
}

// printJSON renders any value as indented JSON on stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// serverError turns a non-200 response into a readable error.
func serverError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, body.Message)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
