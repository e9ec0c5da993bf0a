package stages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
)

// Extractor names stamped on evidence sources.
const (
	extractorText      = "plan-text"
	extractorTable     = "plan-table"
	extractorSymbol    = "plan-symbol"
	extractorDimension = "plan-dimension"
	extractorSchedule  = "plan-schedule"
	extractorVision    = "plan-vision"
)

// EvidenceCollection turns a document into ledger evidence. It extracts
// the document once, then fans out over per-block collectors; the vision
// collector only runs when enableVisionStrategies is on. A failing
// collector contributes zero evidence and the stage still succeeds, so
// the only stage-level failure is the extraction call itself.
type EvidenceCollection struct {
	client extract.Client
	flags  *featureflag.Service
	logger *zap.Logger
}

// NewEvidenceCollection creates the evidence collection stage.
func NewEvidenceCollection(client extract.Client, flags *featureflag.Service, logger *zap.Logger) *EvidenceCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceCollection{
		client: client,
		flags:  flags,
		logger: logger,
	}
}

func (s *EvidenceCollection) Name() string { return "evidence_collection" }

// ValidateInput requires a RunInput naming a document.
func (s *EvidenceCollection) ValidateInput(input any) error {
	in, ok := input.(RunInput)
	if !ok {
		return fmt.Errorf("want stages.RunInput, got %T", input)
	}
	if in.Document.ID == "" {
		return errors.New("document id required")
	}
	return nil
}

// collector converts one block family of an extraction into evidence.
type collector struct {
	name string
	run  func(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error)
}

// Execute extracts the document and appends every collected evidence
// record before returning, so downstream stages and auditors see the full
// collection even if a later stage fails.
func (s *EvidenceCollection) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	in, ok := input.(RunInput)
	if !ok {
		return nil, fmt.Errorf("evidence collection: want stages.RunInput, got %T", input)
	}

	log := s.logger.With(
		zap.String("stage", s.Name()),
		zap.String("trace_id", pctx.TraceID()),
		zap.String("document_id", in.Document.ID),
	)

	pol := pctx.Policy()
	maxPages := in.MaxPages
	if maxPages == 0 || maxPages > pol.Extraction.MaxPages {
		maxPages = pol.Extraction.MaxPages
	}

	extraction, err := s.client.Extract(ctx, extract.Request{
		Document: in.Document,
		Siblings: in.Siblings,
		MaxPages: maxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction failed for document %s: %w", in.Document.ID, err)
	}

	collectors := []collector{
		{"text", s.collectText},
		{"tables", s.collectTables},
		{"symbols", s.collectSymbols},
		{"dimensions", s.collectDimensions},
		{"schedules", s.collectSchedules},
	}
	if s.flags != nil && s.flags.Enabled(featureflag.EnableVisionStrategies) {
		collectors = append(collectors, collector{"vision", s.collectVision})
	}

	total := 0
	for _, c := range collectors {
		cctx := pctx.Child(s.Name() + "." + c.name)
		n, err := c.run(cctx, extraction, in.Document, pol.Extraction.MinEvidenceConfidence)
		total += n
		if err != nil {
			// Collector failures yield missing evidence, not a dead run.
			log.Warn("collector failed",
				zap.String("collector", c.name),
				zap.Int("collected", n),
				zap.Error(err))
		}
	}

	log.Info("evidence collected",
		zap.Int("count", total),
		zap.Int("pages", extraction.Pages))
	return in, nil
}

// appendEvidence validates minimum confidence and appends. Malformed
// records are the collector's problem; append failures bubble up.
func (s *EvidenceCollection) appendEvidence(cctx *pipeline.Context, ev *ledger.Evidence, minConfidence float64) (bool, error) {
	if ev.Source.Confidence < minConfidence {
		s.logger.Debug("dropping low-confidence block",
			zap.String("collector", cctx.Stage()),
			zap.Float64("confidence", ev.Source.Confidence),
			zap.Float64("minimum", minConfidence))
		return false, nil
	}
	if err := cctx.Ledger().AddEvidence(ev); err != nil {
		return false, err
	}
	return true, nil
}

func (s *EvidenceCollection) collectText(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Text {
		ev, err := ledger.NewEvidence(ledger.EvidenceText, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorText,
			Confidence:    block.Confidence,
		}, ledger.TextContentOf(block.Raw))
		if err != nil {
			s.logger.Warn("skipping malformed text block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append text evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

func (s *EvidenceCollection) collectTables(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Tables {
		ev, err := ledger.NewEvidence(ledger.EvidenceTable, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorTable,
			Confidence:    block.Confidence,
		}, ledger.TableContentOf(block.Caption, block.Headers, block.Rows))
		if err != nil {
			s.logger.Warn("skipping malformed table block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append table evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

func (s *EvidenceCollection) collectSymbols(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Symbols {
		ev, err := ledger.NewEvidence(ledger.EvidenceSymbol, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorSymbol,
			Confidence:    block.Confidence,
		}, ledger.SymbolContentOf(block.Symbol, block.Count, block.Properties))
		if err != nil {
			s.logger.Warn("skipping malformed symbol block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append symbol evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

func (s *EvidenceCollection) collectDimensions(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Dimensions {
		ev, err := ledger.NewEvidence(ledger.EvidenceDimension, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorDimension,
			Confidence:    block.Confidence,
		}, ledger.DimensionContentOf(block.Label, block.Value, block.Unit))
		if err != nil {
			s.logger.Warn("skipping malformed dimension block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append dimension evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

func (s *EvidenceCollection) collectSchedules(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Schedules {
		ev, err := ledger.NewEvidence(ledger.EvidenceSchedule, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorSchedule,
			Confidence:    block.Confidence,
		}, ledger.ScheduleContentOf(block.Name, block.Columns, block.Rows))
		if err != nil {
			s.logger.Warn("skipping malformed schedule block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append schedule evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

func (s *EvidenceCollection) collectVision(cctx *pipeline.Context, ex *extract.Extraction, doc extract.Document, minConfidence float64) (int, error) {
	count := 0
	for _, block := range ex.Images {
		ev, err := ledger.NewEvidence(ledger.EvidenceImage, ledger.Source{
			DocumentID:    doc.ID,
			PageNumber:    block.Page,
			ExtractorName: extractorVision,
			Confidence:    block.Confidence,
		}, ledger.ImageContentOf(block.URI, block.MediaType, block.Description))
		if err != nil {
			s.logger.Warn("skipping malformed image block", zap.Int("page", block.Page), zap.Error(err))
			continue
		}
		added, err := s.appendEvidence(cctx, ev, minConfidence)
		if err != nil {
			return count, fmt.Errorf("append image evidence: %w", err)
		}
		if added {
			count++
		}
	}
	return count, nil
}

var _ pipeline.Stage = (*EvidenceCollection)(nil)
var _ pipeline.InputValidator = (*EvidenceCollection)(nil)
