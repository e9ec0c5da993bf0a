package stages

import "github.com/plumblinelabs/takeoffd/internal/extract"

// RunInput is the document payload a pipeline run starts from. Stages
// pass it through unchanged; everything they produce goes to the ledger.
type RunInput struct {
	Document extract.Document   `json:"document"`
	Siblings []extract.Document `json:"siblings,omitempty"`

	// MaxPages bounds extraction; zero defers to the policy's limit.
	MaxPages int `json:"max_pages,omitempty"`
}
