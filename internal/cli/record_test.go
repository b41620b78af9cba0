package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanchatmangpt/cleanroom/internal/baseline"
)

func TestRecordCommandWritesBundle(t *testing.T) {
	dir := t.TempDir()
	state := t.TempDir()
	path := writeScenario(t, dir, "checkout.yaml", "checkout")

	out, err := execute(t, "--state-dir", state, "record", path)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded checkout  digest=")

	bundlePath := filepath.Join(state, "baselines", "checkout.json")
	data, err := os.ReadFile(bundlePath)
	require.NoError(t, err)

	b, err := baseline.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "checkout", b.ScenarioName)
	assert.Equal(t, "fixed-seed-1", b.Config.Determinism.Seed)
}

func TestRecordCommandByteIdenticalDigests(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "checkout.yaml", "checkout")

	stateA := t.TempDir()
	stateB := t.TempDir()
	require.NoError(t, errOnly(execute(t, "--state-dir", stateA, "record", path)))
	require.NoError(t, errOnly(execute(t, "--state-dir", stateB, "record", path)))

	a := loadBundleFile(t, filepath.Join(stateA, "baselines", "checkout.json"))
	b := loadBundleFile(t, filepath.Join(stateB, "baselines", "checkout.json"))
	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, string(a.CanonicalTrace), string(b.CanonicalTrace))
}

func TestRecordCommandOutputFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "checkout.yaml", "checkout")
	outFile := filepath.Join(t.TempDir(), "bundle.json")

	_, err := execute(t, "--state-dir", t.TempDir(), "record", path, "--output", outFile)
	require.NoError(t, err)

	b := loadBundleFile(t, outFile)
	assert.Equal(t, "checkout", b.ScenarioName)
}

func TestRecordCommandOutputRequiresSingleScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", "alpha")
	writeScenario(t, dir, "b.yaml", "beta")

	_, err := execute(t, "--state-dir", t.TempDir(), "record", dir, "--output", filepath.Join(t.TempDir(), "x.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecordCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps: {not: a list}\n"), 0o644))

	_, err := execute(t, "--state-dir", t.TempDir(), "record", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func errOnly(_ string, err error) error { return err }

func loadBundleFile(t *testing.T, path string) *baseline.Baseline {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	b, err := baseline.Decode(data)
	require.NoError(t, err)
	return b
}
