package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// writeScenario writes a seeded, clock-frozen scenario document and
// returns its path.
func writeScenario(t *testing.T, dir, file, name string) string {
	t.Helper()

	doc := fmt.Sprintf(`name: %s
description: checkout flow under a fixed seed
determinism:
  seed: fixed-seed-1
  freeze_clock: "2024-01-01T00:00:00Z"
steps:
  - name: order.create
    emit_uuid: order.id
    emit_timestamp: order.created_at
  - name: order.charge
    attrs:
      amount: 1999
      currency: USD
`, name)

	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// writeDriftedScenario is writeScenario with one changed attribute, so
// its canonical digest differs from the original.
func writeDriftedScenario(t *testing.T, dir, file, name string) string {
	t.Helper()

	doc := fmt.Sprintf(`name: %s
determinism:
  seed: fixed-seed-1
  freeze_clock: "2024-01-01T00:00:00Z"
steps:
  - name: order.create
    emit_uuid: order.id
    emit_timestamp: order.created_at
  - name: order.charge
    attrs:
      amount: 2499
      currency: USD
`, name)

	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}
