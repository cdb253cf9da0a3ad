package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/rules"
)

const itauStatement = "../../internal/ofx/testdata/bank_itau.ofx"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OFXINGEST_DATABASE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("OFXINGEST_STORAGE_LOCAL_DIR", filepath.Join(dir, "files"))
	t.Setenv("OFXINGEST_COMPANY_DEFAULT_ID", "acme")
	t.Setenv("OFXINGEST_BATCH_CHUNK_DELAY", "0s")
	t.Setenv("OFXINGEST_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "validate", itauStatement)
	require.NoError(t, err)
	assert.Contains(t, out, "Kind:         bank")
	assert.Contains(t, out, "Transactions: 4")
}

func TestValidate_RejectsNonOFX(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := run(t, "validate", path)
	assert.Error(t, err)
}

func TestIngest_WaitsForCompletion(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "ingest", itauStatement)
	require.NoError(t, err)
	assert.Contains(t, out, "accepted: 4 transactions")
	assert.Contains(t, out, "completed: 4 successful, 0 failed")

	out, err = run(t, "uploads")
	require.NoError(t, err)
	assert.Contains(t, out, "bank_itau.ofx")

	out, err = run(t, "files")
	require.NoError(t, err)
	assert.Contains(t, out, "bank_itau.ofx")

	_, err = run(t, "ingest", itauStatement)
	assert.Error(t, err)
}

func TestIngest_NoWaitThenRecover(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "ingest", "--wait=false", itauStatement)
	require.NoError(t, err)
	assert.NotContains(t, out, "completed")

	out, err = run(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "from item 0")

	out, err = run(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to recover")
}

func TestRules_ImportThenExport(t *testing.T) {
	dir := setupEnv(t)

	_, err := run(t, "rules", "export")
	var noRules *rules.NoRulesFoundError
	require.ErrorAs(t, err, &noRules)

	doc := rules.ExportDocument{
		Version:    rules.ExportVersion,
		CompanyID:  "other",
		Categories: []rules.ExportedCategory{{ID: "c1", Name: "Transporte", Type: "expense"}},
		Rules: []rules.ExportedRule{{
			ID: "r1", CategoryID: "c1", CategoryName: "Transporte",
			RulePattern: "UBER", RuleType: "contains", ConfidenceScore: 0.9, Active: true,
			Examples: []string{},
		}},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	out, err := run(t, "rules", "import", "--dry-run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")

	out, err = run(t, "rules", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 imported")

	out, err = run(t, "rules", "export", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "rulePattern: UBER")
	assert.Contains(t, out, "companyId: acme")

	outFile := filepath.Join(dir, "export.json")
	_, err = run(t, "rules", "export", "--out", outFile)
	require.NoError(t, err)
	exported, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(exported), `"rulePattern": "UBER"`)
}

func TestRulesImport_UnknownStrategy(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","rules":[],"categories":[]}`), 0o644))

	_, err := run(t, "rules", "import", "--strategy", "overwrite", path)
	var invalid *rules.InvalidDocumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")
}

func TestWarehouse_Disabled(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "warehouse", "count", "up-1")
	assert.ErrorIs(t, err, errWarehouseDisabled)
}

func TestValidate_RenderRoundTrips(t *testing.T) {
	setupEnv(t)

	rendered, err := run(t, "validate", "--render", itauStatement)
	require.NoError(t, err)
	assert.Contains(t, rendered, "OFXHEADER:100")

	doc, err := ofx.Parse(rendered)
	require.NoError(t, err)
	assert.Len(t, doc.Items, 4)
}
