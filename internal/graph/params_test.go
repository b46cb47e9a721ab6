package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams_valid(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
}

func TestParams_validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero window", func(p *Params) { p.MaxBack = 0 }},
		{"negative window", func(p *Params) { p.MaxBack = -3 }},
		{"zero tau", func(p *Params) { p.DistTau = 0 }},
		{"negative steepness", func(p *Params) { p.DistP = -1 }},
		{"beta above one", func(p *Params) { p.Beta = 1.5 }},
		{"zero topK", func(p *Params) { p.TopK = 0 }},
		{"zero iters", func(p *Params) { p.Iters = 0 }},
		{"negative dm proximity", func(p *Params) { p.DMProximity = -1 }},
		{"dm mass above one", func(p *Params) { p.DMMass = 2 }},
		{"zero merge window", func(p *Params) { p.MergeWindow = 0 }},
		{"rounds out of range", func(p *Params) { p.Rounds = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParams_hashStable(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, p.Hash(), p.Hash())
	assert.Len(t, p.Hash(), 12)

	q := p
	q.TopK++
	assert.NotEqual(t, p.Hash(), q.Hash(), "different params must hash differently")
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_back: 20\ntop_k: 5\n"), 0600))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 20, p.MaxBack)
	assert.Equal(t, 5, p.TopK)
	// Unspecified fields keep their defaults.
	assert.Equal(t, DefaultParams().DistTau, p.DistTau)
}

func TestLoadParams_invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_back: -4\n"), 0600))
	_, err := LoadParams(path)
	assert.Error(t, err)
}

func TestHill(t *testing.T) {
	assert.Equal(t, 1.0, hill(0, 4, 2))
	assert.InDelta(t, 0.5, hill(4, 4, 2), 1e-9, "half strength at tau")
	assert.Greater(t, hill(1, 4, 2), hill(2, 4, 2), "monotonically decreasing")
	assert.Greater(t, hill(100, 4, 2), 0.0, "bounded above zero")
}
