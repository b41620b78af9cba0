package canonical

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// The canonical serialization is the hashed surface: any byte change here
// invalidates every recorded digest. The golden file pins it.
//
// To regenerate after a deliberate schema change:
//
//	go test ./internal/canonical -update
func TestMarshalGolden(t *testing.T) {
	form, err := Canonicalize(checkoutTrace(), Options{})
	require.NoError(t, err)

	data, err := Marshal(form)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "checkout_canonical", data)
}
