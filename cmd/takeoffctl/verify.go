package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plumblinelabs/takeoffd/internal/snapshot"
)

var (
	// verify command flags
	verifyFile string
)

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "Verify a local snapshot file instead of a stored run")
}

var verifyCmd = &cobra.Command{
	Use:   "verify [document] [run]",
	Short: "Verify a stored ledger's integrity",
	Long: `Verify a ledger snapshot against the full structural and referential audit.

The snapshot is replayed through the same append path a live run uses and
then audited; every violation is reported, not just the first. Run this
before trusting a ledger's decisions for export.

Examples:
  # Verify a stored run
  takeoffctl verify plan-a101 3f8a9c12-...

  # Verify a snapshot file on disk
  takeoffctl verify --file ./ledger.json`,
	Args: cobra.MaximumNArgs(2),
	RunE: runVerify,
}

// runVerify handles the verify command
func runVerify(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	var subject string

	switch {
	case verifyFile != "":
		subject = verifyFile
		data, err = os.ReadFile(verifyFile)
		if err != nil {
			return fmt.Errorf("failed to read snapshot file: %w", err)
		}
	case len(args) == 2:
		subject = fmt.Sprintf("%s/%s", args[0], args[1])
		data, err = fetchSnapshot(args[0], args[1])
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("provide a document and run id, or --file")
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: snapshot is unreadable: %w", subject, err)
	}
	l, err := snap.Rebuild()
	if err != nil {
		return fmt.Errorf("%s: snapshot does not replay: %w", subject, err)
	}

	violations := l.ValidateIntegrity()
	if len(violations) == 0 {
		s := l.Summary()
		total := s.EvidenceCount + s.AssumptionCount + s.InferenceCount + s.DecisionCount + s.FlagCount
		fmt.Printf("%s: ledger %s is consistent (%d entities)\n", subject, l.ID(), total)
		return nil
	}

	fmt.Fprintf(os.Stderr, "%s: %d integrity violation(s):\n", subject, len(violations))
	for _, v := range violations {
		fmt.Fprintf(os.Stderr, "  %s\n", v)
	}
	return fmt.Errorf("ledger failed integrity audit")
}
