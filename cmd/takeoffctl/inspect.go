package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plumblinelabs/takeoffd/internal/server"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
)

var (
	// inspect command flags
	inspectJSON bool
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output the stored snapshot as JSON")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <document> [run]",
	Short: "Inspect stored ledgers for a document",
	Long: `Inspect the ledgers takeoffd has stored for a document.

With only a document id, lists the stored run ids. With a run id, fetches
that run's ledger snapshot and prints its summary.

Examples:
  # List runs for a document
  takeoffctl inspect plan-a101

  # Show one run's ledger
  takeoffctl inspect plan-a101 3f8a9c12-...

  # Dump the raw snapshot
  takeoffctl inspect plan-a101 3f8a9c12-... --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInspect,
}

// runInspect handles the inspect command
func runInspect(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return listRuns(args[0])
	}
	return showLedger(args[0], args[1])
}

// listRuns prints the stored run ids for a document.
func listRuns(documentID string) error {
	resp, err := httpClient().Get(fmt.Sprintf("%s/v1/ledgers/%s", serverURL, documentID))
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var list server.RunListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if inspectJSON {
		return printJSON(list)
	}
	if len(list.Runs) == 0 {
		fmt.Printf("No stored runs for document %s\n", documentID)
		return nil
	}
	fmt.Printf("Runs for document %s:\n", documentID)
	for _, runID := range list.Runs {
		fmt.Printf("  %s\n", runID)
	}
	return nil
}

// showLedger fetches one run's snapshot and prints its summary.
func showLedger(documentID, runID string) error {
	data, err := fetchSnapshot(documentID, runID)
	if err != nil {
		return err
	}

	if inspectJSON {
		fmt.Println(string(data))
		return nil
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return fmt.Errorf("stored snapshot is unreadable: %w", err)
	}
	l, err := snap.Rebuild()
	if err != nil {
		return fmt.Errorf("stored snapshot does not replay: %w", err)
	}

	s := l.Summary()
	fmt.Printf("Ledger %s (run %s, policy %s)\n", s.LedgerID, s.RunID, s.PolicyID)
	fmt.Printf("Created: %s", s.CreatedAt.Format("2006-01-02 15:04:05"))
	if s.CompletedAt != nil {
		fmt.Printf("  Completed: %s", s.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tCOUNT")
	fmt.Fprintf(w, "evidence\t%d\n", s.EvidenceCount)
	fmt.Fprintf(w, "assumptions\t%d\n", s.AssumptionCount)
	fmt.Fprintf(w, "inferences\t%d\n", s.InferenceCount)
	fmt.Fprintf(w, "decisions\t%d\n", s.DecisionCount)
	fmt.Fprintf(w, "flags\t%d (%d open)\n", s.FlagCount, s.OpenFlagCount)
	w.Flush()

	fmt.Printf("Mean confidence: %.2f\n", s.MeanConfidence)
	for _, d := range l.AllDecisions() {
		fmt.Printf("  %s = %v  (%s)\n", d.Topic, d.SelectedValue, d.Justification)
	}
	for _, f := range l.AllFlags() {
		if !f.Resolved {
			fmt.Printf("  [%s/%s] %s\n", f.Type, f.Severity, f.Message)
		}
	}
	return nil
}

// fetchSnapshot retrieves the raw snapshot JSON for one run.
func fetchSnapshot(documentID, runID string) ([]byte, error) {
	resp, err := httpClient().Get(fmt.Sprintf("%s/v1/ledgers/%s/%s", serverURL, documentID, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}
