package stages

import (
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/strategy"
)

// Deps carries the shared dependencies of the standard pipeline.
type Deps struct {
	Extractor extract.Client
	Registry  *strategy.Registry
	Flags     *featureflag.Service
	Region    string
	Logger    *zap.Logger
}

// NewStandardPipeline assembles the four-stage takeoff pipeline:
// evidence collection, assumption seeding, multi-strategy inference,
// conflict resolution. A nil Registry gets the built-in strategies.
func NewStandardPipeline(deps Deps) *pipeline.Pipeline {
	if deps.Registry == nil {
		deps.Registry = strategy.NewDefaultRegistry()
	}
	return pipeline.NewPipeline("takeoff").
		AddStage(NewEvidenceCollection(deps.Extractor, deps.Flags, deps.Logger)).
		AddStage(NewAssumptionSeeding(deps.Region, deps.Logger)).
		AddStage(NewMultiStrategyInference(deps.Registry, deps.Logger)).
		AddStage(NewConflictResolution(deps.Flags, deps.Logger))
}
