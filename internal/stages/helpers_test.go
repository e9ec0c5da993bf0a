package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/policy"
	"github.com/plumblinelabs/takeoffd/internal/strategy"
)

func newRunContext() *pipeline.Context {
	return pipeline.NewContext(ledger.New("run-1", policy.DefaultPolicyID), policy.Default())
}

// defaultFlags returns a flag service with built-in defaults, ignoring
// the test process environment.
func defaultFlags() *featureflag.Service {
	return featureflag.NewWithLookup(zap.NewNop(), func(string) (string, bool) { return "", false })
}

func testInput() RunInput {
	return RunInput{Document: extract.Document{ID: "doc-1", Name: "plan.pdf", Type: "floor_plan"}}
}

// runStages executes stages in order outside the executor, threading the
// output like the executor would.
func runStages(t *testing.T, pctx *pipeline.Context, stages ...pipeline.Stage) {
	t.Helper()
	var input any = testInput()
	for _, st := range stages {
		out, err := st.Execute(context.Background(), input, pctx)
		require.NoError(t, err, "stage %s", st.Name())
		input = out
	}
}

func addTestEvidence(t *testing.T, l *ledger.Ledger, typ ledger.EvidenceType, confidence float64) *ledger.Evidence {
	t.Helper()
	var content ledger.Content
	switch typ {
	case ledger.EvidenceSchedule:
		content = ledger.ScheduleContentOf("FLOOR JOIST SCHEDULE",
			[]string{"MARK", "SPECIES"},
			[]map[string]string{{"MARK": "FJ-1", "SPECIES": "SPF"}})
	case ledger.EvidenceDimension:
		content = ledger.DimensionContentOf("STUD SPACING", 16, "in")
	default:
		content = ledger.TextContentOf("ALL FRAMING LUMBER TO BE SPF NO.2 OR BETTER")
	}
	ev, err := ledger.NewEvidence(typ, ledger.Source{
		DocumentID:    "doc-1",
		PageNumber:    1,
		ExtractorName: "test-extractor",
		Confidence:    confidence,
	}, content)
	require.NoError(t, err)
	require.NoError(t, l.AddEvidence(ev))
	return ev
}

func addTestInference(t *testing.T, l *ledger.Ledger, topic string, value any, confidence float64, evidenceIDs ...string) *ledger.Inference {
	t.Helper()
	inf, err := ledger.NewInference(topic, value, confidence, "test_method")
	require.NoError(t, err)
	inf.UsedEvidence = evidenceIDs
	require.NoError(t, l.AddInference(inf))
	return inf
}

// fakeStrategy answers its topic with a fixed result or error.
type fakeStrategy struct {
	name   string
	topic  string
	result strategy.Result
	err    error
}

func (f *fakeStrategy) Name() string                    { return f.name }
func (f *fakeStrategy) Topic() string                   { return f.topic }
func (f *fakeStrategy) CanHandle(strategy.Context) bool { return true }

func (f *fakeStrategy) Execute(ctx context.Context, _ strategy.Context) (strategy.Result, error) {
	if err := ctx.Err(); err != nil {
		return strategy.Result{}, err
	}
	return f.result, f.err
}

var _ strategy.Strategy = (*fakeStrategy)(nil)
