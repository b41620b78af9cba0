package baseline

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanchatmangpt/cleanroom/internal/canonical"
	"github.com/seanchatmangpt/cleanroom/internal/determinism"
	"github.com/seanchatmangpt/cleanroom/internal/scenario"
)

func makeBaseline(t *testing.T, seed string) *Baseline {
	t.Helper()

	sc := &scenario.Scenario{
		Name: "checkout",
		Determinism: determinism.Config{
			Seed:        seed,
			FreezeClock: "2024-01-01T00:00:00Z",
		},
		Steps: []scenario.Step{
			{Name: "order.create", EmitUUID: "order.id"},
			{Name: "order.charge", Attrs: map[string]any{"amount": 1999}},
		},
	}
	dctx, err := sc.NewContext()
	require.NoError(t, err)

	tr, err := scenario.NewStepRunner(nil).Run(context.Background(), sc, dctx)
	require.NoError(t, err)

	form, err := canonical.Canonicalize(tr, canonical.Options{})
	require.NoError(t, err)

	b, err := New(sc, form, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return b
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	b := makeBaseline(t, "seed-a")

	require.NoError(t, s.Save(context.Background(), b))

	got, err := s.Load("checkout")
	require.NoError(t, err)
	assert.Equal(t, b.Digest, got.Digest)
	assert.Equal(t, b.ScenarioName, got.ScenarioName)
	assert.Equal(t, "seed-a", got.Config.Determinism.Seed)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)

	form, err := got.Form()
	require.NoError(t, err)
	assert.Equal(t, "checkout", form.ScenarioName)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.Load("never-recorded")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "never-recorded")
}

func TestLoadTruncatedIsValidationError(t *testing.T) {
	s := openStore(t)
	b := makeBaseline(t, "seed-a")
	require.NoError(t, s.Save(context.Background(), b))

	path := s.Path("checkout")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = s.Load("checkout")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), path)
}

func TestLoadUnknownSchemaVersion(t *testing.T) {
	s := openStore(t)
	b := makeBaseline(t, "seed-a")
	require.NoError(t, s.Save(context.Background(), b))

	path := s.Path("checkout")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mangled := strings.Replace(string(data), SchemaVersion, "cleanroom/baseline/v999", 1)
	require.NoError(t, os.WriteFile(path, []byte(mangled), 0o644))

	_, err = s.Load("checkout")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "schema version")
}

func TestDecodeDigestMismatch(t *testing.T) {
	b := makeBaseline(t, "seed-a")
	b.Digest = strings.Repeat("0", 64)

	data, err := b.Encode()
	require.NoError(t, err)

	_, err = Decode(data)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestSaveReplacesExisting(t *testing.T) {
	s := openStore(t)

	first := makeBaseline(t, "seed-a")
	second := makeBaseline(t, "seed-b")
	require.NotEqual(t, first.Digest, second.Digest)

	require.NoError(t, s.Save(context.Background(), first))
	require.NoError(t, s.Save(context.Background(), second))

	got, err := s.Load("checkout")
	require.NoError(t, err)
	assert.Equal(t, second.Digest, got.Digest)
}

func TestHistoryNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := makeBaseline(t, "seed-a")
	second := makeBaseline(t, "seed-b")
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	hist, err := s.History(ctx, "checkout")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, second.Digest, hist[0].Digest)
	assert.Equal(t, first.Digest, hist[1].Digest)
	assert.Equal(t, first.CreatedAt, hist[1].CreatedAt)
}

func TestLatestResolvesNewestGeneration(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := makeBaseline(t, "seed-a")
	second := makeBaseline(t, "seed-b")
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	entry, err := s.Latest(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, second.Digest, entry.Digest)
	assert.Equal(t, s.Path("checkout"), entry.Path)
}

func TestLatestUnknownScenarioIsNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.Latest(context.Background(), "never-recorded")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestHistoryEmptyForUnknownScenario(t *testing.T) {
	s := openStore(t)

	hist, err := s.History(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := makeBaseline(t, "seed-a")

	data, err := b.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b.Digest, got.Digest)
	assert.Equal(t, b.ScenarioName, got.ScenarioName)

	form, err := got.Form()
	require.NoError(t, err)
	reDigest, err := canonical.Digest(form)
	require.NoError(t, err)
	assert.Equal(t, b.Digest, reDigest)
}

func TestEncodeDecodeVolatilePlaceholders(t *testing.T) {
	// Placeholder values contain angle brackets, which the bundle codec
	// escapes in transit; the digest must survive that anyway.
	sc := &scenario.Scenario{
		Name:         "volatile",
		Determinism:  determinism.Config{FreezeClock: "2024-01-01T00:00:00Z"},
		VolatileKeys: []string{"request.id"},
		Steps: []scenario.Step{
			{Name: "api.call", EmitUUID: "request.id"},
		},
	}
	dctx, err := sc.NewContext()
	require.NoError(t, err)
	tr, err := scenario.NewStepRunner(nil).Run(context.Background(), sc, dctx)
	require.NoError(t, err)

	b, err := Record(sc, tr, dctx.Now())
	require.NoError(t, err)
	assert.Contains(t, string(b.CanonicalTrace), "<volatile:0>")

	data, err := b.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b.Digest, got.Digest)
}

func TestDecodeTamperedTrace(t *testing.T) {
	b := makeBaseline(t, "seed-a")

	data, err := b.Encode()
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"i": 1999`, `"i": 2499`, 1)
	require.NotEqual(t, string(data), tampered)

	_, err = Decode([]byte(tampered))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestRecordRunsProduceIdenticalDigests(t *testing.T) {
	a := makeBaseline(t, "seed-a")
	b := makeBaseline(t, "seed-a")
	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, string(a.CanonicalTrace), string(b.CanonicalTrace))
}
