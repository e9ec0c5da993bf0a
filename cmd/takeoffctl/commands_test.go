package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/plumblinelabs/takeoffd/internal/config"
	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/server"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
	"github.com/plumblinelabs/takeoffd/internal/stages"
)

// ctlServer starts an httptest server backed by a real run service and
// points the global serverURL at it for the duration of the test.
func ctlServer(t *testing.T) snapshot.Store {
	t.Helper()

	store := snapshot.NewMemoryStore()
	logger := zaptest.NewLogger(t)
	runs := server.NewRunService(server.RunDeps{
		Stages: stages.Deps{
			Extractor: extract.NewStubClient(),
			Flags:     featureflag.NewWithLookup(logger, func(string) (string, bool) { return "", false }),
			Region:    "northeast",
			Logger:    logger,
		},
		Store:  store,
		Logger: logger,
	})
	cfg := &config.Config{}
	cfg.Observability.ServiceName = "takeoffd"
	srv := server.NewServer(cfg, runs, zaptest.NewLogger(t))

	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)

	prev := serverURL
	serverURL = ts.URL
	t.Cleanup(func() { serverURL = prev })

	return store
}

func TestRunCommand_ExecutesAgainstServer(t *testing.T) {
	ctlServer(t)

	runDocID = "plan-a101"
	runDocName = "First floor framing"
	runDocType = "framing_plan"
	runPolicyID = ""
	runMaxPages = 0
	runJSON = false

	err := runRun(runCmd, nil)
	require.NoError(t, err)
}

func TestInspectCommand_ListsAndShowsRuns(t *testing.T) {
	store := ctlServer(t)

	// Seed one stored run directly.
	l := ledger.New("run-1", "default")
	require.NoError(t, snapshot.Save(context.Background(), store, "plan-a101", l))

	inspectJSON = false
	require.NoError(t, runInspect(inspectCmd, []string{"plan-a101"}))
	require.NoError(t, runInspect(inspectCmd, []string{"plan-a101", "run-1"}))

	err := runInspect(inspectCmd, []string{"plan-a101", "no-such-run"})
	require.Error(t, err)
}

func TestVerifyCommand_LocalFile(t *testing.T) {
	l := ledger.New("run-1", "default")
	data, err := snapshot.Capture(l).Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	verifyFile = path
	t.Cleanup(func() { verifyFile = "" })
	require.NoError(t, runVerify(verifyCmd, nil))
}

func TestVerifyCommand_RejectsCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	verifyFile = path
	t.Cleanup(func() { verifyFile = "" })
	err := runVerify(verifyCmd, nil)
	require.Error(t, err)
}

func TestVerifyCommand_RequiresArgsOrFile(t *testing.T) {
	verifyFile = ""
	err := runVerify(verifyCmd, nil)
	require.Error(t, err)
}

func TestValidatePolicyCommand(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
id: acme-residential
version: "2.1.0"
thresholds:
  accept_inference: 0.75
`), 0o600))
	assert.NoError(t, runValidatePolicy(validatePolicyCmd, []string{good}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
id: too-loose
version: "1.0.0"
thresholds:
  accept_inference: 0.2
`), 0o600))
	assert.Error(t, runValidatePolicy(validatePolicyCmd, []string{bad}))

	assert.Error(t, runValidatePolicy(validatePolicyCmd, []string{filepath.Join(dir, "missing.yaml")}))
}
