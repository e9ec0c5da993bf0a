package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/policy"
)

var validatePolicyCmd = &cobra.Command{
	Use:   "validate-policy <file>",
	Short: "Validate a policy file before deployment",
	Long: `Validate a YAML policy file the way takeoffd loads it: the override is
merged onto the default policy and the merged result is checked against the
schema and domain rules (acceptance thresholds, reliability weight sums,
tiebreaker coverage).

A file that fails here would silently fall back to the default policy on the
server, so validate before deploying to the policy directory.

Examples:
  takeoffctl validate-policy ./policies/acme-residential.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidatePolicy,
}

// runValidatePolicy handles the validate-policy command
func runValidatePolicy(cmd *cobra.Command, args []string) error {
	path := args[0]

	// A throwaway resolver: LoadPolicyFile performs the same merge and
	// validation the daemon does at startup.
	resolver := policy.NewResolver(zap.NewNop())
	p, err := resolver.LoadPolicyFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: INVALID\n", path)
		return err
	}

	fmt.Printf("%s: OK\n", path)
	fmt.Printf("Policy %s (version %s)\n", p.ID, p.Version)
	if p.Description != "" {
		fmt.Printf("  %s\n", p.Description)
	}
	fmt.Printf("Thresholds: accept=%.2f gap=%.2f ambiguity=%.2f\n",
		p.Thresholds.AcceptInference, p.Thresholds.ConflictGap, p.Thresholds.MaxAmbiguity)

	sources := make([]string, 0, len(p.Priors.SourceReliability))
	for source := range p.Priors.SourceReliability {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	fmt.Print("Reliability:")
	for _, source := range sources {
		fmt.Printf(" %s=%.2f", source, p.Priors.SourceReliability[source])
	}
	fmt.Println()
	fmt.Printf("Tiebreakers: %v\n", p.Tiebreakers)
	return nil
}
