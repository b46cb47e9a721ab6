// Package graph implements the causal link kernel and the hierarchical
// merger: windowed candidate-edge scoring, top-K selection, iterative
// backward reweighting, and multi-round annealing of links into composite
// nodes. All of it is deterministic for fixed inputs and params.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// KernelVersion is bumped whenever scoring semantics change, so stored runs
// can be traced to the exact logic that produced them.
const KernelVersion = "kernel/v1"

// Params is the immutable configuration bundle for one extraction run.
type Params struct {
	MaxBack        int     `json:"max_back" yaml:"max_back"`                 // forward window for cause→effect candidates
	DistTau        float64 `json:"dist_tau" yaml:"dist_tau"`                 // half-strength distance of the hill kernel
	DistP          float64 `json:"dist_p" yaml:"dist_p"`                     // hill steepness
	BetaLex        float64 `json:"beta_lex" yaml:"beta_lex"`                 // lexical-overlap weight
	Beta           float64 `json:"beta" yaml:"beta"`                         // backward-reweight strength
	Iters          int     `json:"iters" yaml:"iters"`                       // reweight rounds
	TopK           int     `json:"top_k" yaml:"top_k"`                       // incoming-edge cap per effect
	DMProximity    int     `json:"dm_proximity" yaml:"dm_proximity"`         // DM-statement fallback window (not calibrated)
	DMMass         float64 `json:"dm_mass" yaml:"dm_mass"`                   // confidence discount for fallback effects
	UseIDF         bool    `json:"use_idf" yaml:"use_idf"`                   // IDF-weight lexical overlap across the session
	MergeWindow    int     `json:"merge_window" yaml:"merge_window"`         // center-distance window for anneal pairs
	MergeThreshold float64 `json:"merge_threshold" yaml:"merge_threshold"`   // minimum bridge strength to merge
	Rounds         int     `json:"rounds" yaml:"rounds"`                     // total rounds incl. the kernel's link round (1..3)
}

// DefaultParams returns the tunables used when no params file is supplied.
func DefaultParams() Params {
	return Params{
		MaxBack:        12,
		DistTau:        4.0,
		DistP:          2.0,
		BetaLex:        1.5,
		Beta:           0.6,
		Iters:          3,
		TopK:           3,
		DMProximity:    5,
		DMMass:         0.4,
		UseIDF:         true,
		MergeWindow:    20,
		MergeThreshold: 0.15,
		Rounds:         3,
	}
}

// Validate rejects parameter bundles the kernel cannot run with. These are
// caller programming errors and must fail fast rather than be corrected.
func (p Params) Validate() error {
	if p.MaxBack <= 0 {
		return fmt.Errorf("max_back must be positive, got %d", p.MaxBack)
	}
	if p.DistTau <= 0 || p.DistP <= 0 {
		return fmt.Errorf("dist_tau and dist_p must be positive, got %v / %v", p.DistTau, p.DistP)
	}
	if p.BetaLex < 0 || p.Beta < 0 || p.Beta > 1 {
		return fmt.Errorf("beta_lex must be >= 0 and beta in [0,1], got %v / %v", p.BetaLex, p.Beta)
	}
	if p.Iters <= 0 || p.TopK <= 0 {
		return fmt.Errorf("iters and top_k must be positive, got %d / %d", p.Iters, p.TopK)
	}
	if p.DMProximity < 0 || p.DMMass < 0 || p.DMMass > 1 {
		return fmt.Errorf("dm_proximity must be >= 0 and dm_mass in [0,1], got %d / %v", p.DMProximity, p.DMMass)
	}
	if p.MergeWindow <= 0 || p.MergeThreshold < 0 {
		return fmt.Errorf("merge_window must be positive and merge_threshold >= 0, got %d / %v", p.MergeWindow, p.MergeThreshold)
	}
	if p.Rounds < 1 || p.Rounds > 3 {
		return fmt.Errorf("rounds must be in [1,3], got %d", p.Rounds)
	}
	return nil
}

// JSON returns the canonical JSON encoding of the params, used both for
// provenance storage and for hashing.
func (p Params) JSON() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// Hash returns a truncated hex digest of the canonical params JSON for
// compact provenance display and snapshot keying.
func (p Params) Hash() string {
	h := sha256.Sum256([]byte(p.JSON()))
	return hex.EncodeToString(h[:])[:12]
}

// LoadParams reads a YAML params file and overlays it on the defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// hill is the distance kernel: monotonically decreasing, bounded in (0, 1],
// half strength at tau, steepness p.
func hill(distance float64, tau, p float64) float64 {
	if distance <= 0 {
		return 1.0
	}
	return 1.0 / (1.0 + math.Pow(distance/tau, p))
}
