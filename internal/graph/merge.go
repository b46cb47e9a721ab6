package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/keeminlee/meepo/internal/transcript"
)

// Phase labels what a round did: the kernel's initial link extraction or a
// merge (anneal) pass.
type Phase string

const (
	PhaseLink   Phase = "link"
	PhaseAnneal Phase = "anneal"
)

// mergePair is a scored candidate pairing of two same-level nodes.
type mergePair struct {
	left, right *Link // ordered by timeline position
	bridge      float64
}

// Anneal runs one merge round over the node set: candidate pairs of
// same-level nodes whose centers fall within the merge window are scored with
// the kernel's distance+lexical formula over their concatenated anchor text;
// pairs above the merge threshold become composite nodes one level higher.
// Each node is consumed by at most one composite per round. Returns the node
// set with new composites appended.
func Anneal(sessionID string, nodes []*Link, lines []transcript.Line, p Params, round int) ([]*Link, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("anneal round %d: %w", round, err)
	}
	arena := make(map[string]*Link, len(nodes))
	for _, n := range nodes {
		if _, dup := arena[n.ID]; dup {
			return nil, fmt.Errorf("anneal round %d: duplicate node id %s", round, n.ID)
		}
		arena[n.ID] = n
	}
	// Composites referencing unknown members indicate an upstream invariant
	// violation; abort rather than dropping the edge.
	for _, n := range nodes {
		for _, m := range n.Members {
			if _, ok := arena[m]; !ok {
				return nil, fmt.Errorf("anneal round %d: composite %s references missing member %s", round, n.ID, m)
			}
		}
	}

	// Only the current top level participates in this round's pairing.
	maxLevel := 0
	for _, n := range nodes {
		if n.Kind != KindSingleton && n.Level > maxLevel {
			maxLevel = n.Level
		}
	}
	if maxLevel == 0 {
		return nodes, nil
	}
	var pool []*Link
	for _, n := range nodes {
		if n.Kind != KindSingleton && n.Level == maxLevel {
			pool = append(pool, n)
		}
	}
	sort.Slice(pool, func(a, b int) bool {
		if pool[a].Center != pool[b].Center {
			return pool[a].Center < pool[b].Center
		}
		return pool[a].ID < pool[b].ID
	})

	var pairs []mergePair
	for ai := 0; ai < len(pool); ai++ {
		for bi := ai + 1; bi < len(pool); bi++ {
			a, b := pool[ai], pool[bi]
			d := b.Center - a.Center
			if d > float64(p.MergeWindow) {
				break
			}
			bridge := hill(d, p.DistTau, p.DistP) *
				(1 + p.BetaLex*lexicalOverlap(nodeText(a, arena, lines), nodeText(b, arena, lines), nil))
			if bridge < p.MergeThreshold {
				continue
			}
			pairs = append(pairs, mergePair{left: a, right: b, bridge: bridge})
		}
	}
	// Strongest bridges merge first; each child is consumed once per round.
	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].bridge != pairs[b].bridge {
			return pairs[a].bridge > pairs[b].bridge
		}
		if pairs[a].left.Center != pairs[b].left.Center {
			return pairs[a].left.Center < pairs[b].left.Center
		}
		return pairs[a].left.ID < pairs[b].left.ID
	})

	consumed := make(map[string]bool)
	out := nodes
	for _, pr := range pairs {
		if consumed[pr.left.ID] || consumed[pr.right.ID] {
			continue
		}
		consumed[pr.left.ID] = true
		consumed[pr.right.ID] = true
		level := maxLevel + 1
		comp := &Link{
			ID:               compositeID(sessionID, level, pr.left.ID, pr.right.ID),
			SessionID:        sessionID,
			Actor:            pr.left.Actor,
			CauseIndex:       NoAnchor,
			EffectIndex:      NoAnchor,
			Mass:             pr.left.Mass + pr.right.Mass,
			Strength:         pr.bridge,
			StrengthInternal: pr.bridge + pr.left.StrengthInternal + pr.right.StrengthInternal,
			Claimed:          true,
			Kind:             KindComposite,
			Level:            level,
			Members:          []string{pr.left.ID, pr.right.ID},
			Center:           (pr.left.Center + pr.right.Center) / 2,
		}
		out = append(out, comp)
	}
	return out, nil
}

// nodeText concatenates the cause and effect anchor text of a node's level-1
// descendants, walked iteratively through the arena with a visited guard so
// a cyclic member reference surfaces as truncation instead of hanging.
func nodeText(n *Link, arena map[string]*Link, lines []transcript.Line) string {
	var parts []string
	visited := make(map[string]bool)
	stack := []*Link{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.ID] {
			continue
		}
		visited[cur.ID] = true
		if cur.Level <= 1 || len(cur.Members) == 0 {
			if cur.CauseIndex != NoAnchor && cur.CauseIndex < len(lines) {
				parts = append(parts, lines[cur.CauseIndex].Content)
			}
			if cur.EffectIndex != NoAnchor && cur.EffectIndex < len(lines) {
				parts = append(parts, lines[cur.EffectIndex].Content)
			}
			continue
		}
		// Push right then left so text reads in timeline order.
		for i := len(cur.Members) - 1; i >= 0; i-- {
			if child, ok := arena[cur.Members[i]]; ok {
				stack = append(stack, child)
			}
		}
	}
	return strings.Join(parts, " ")
}

// RoundMetrics captures per-round observability counts and percentile stats
// for regression tracking and tuning dashboards.
type RoundMetrics struct {
	Round      int   `json:"round"`
	Phase      Phase `json:"phase"`
	Singletons int   `json:"singletons"`
	Links      int   `json:"links"`
	Composites int   `json:"composites"`
	Mass       Stats `json:"mass"`
	Strength   Stats `json:"strength"`
}

// Stats is a compact percentile summary.
type Stats struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	Max float64 `json:"max"`
}

func computeStats(vals []float64) Stats {
	if len(vals) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	pick := func(q float64) float64 {
		idx := int(math.Ceil(q*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return Stats{
		Min: sorted[0],
		P50: pick(0.5),
		P90: pick(0.9),
		Max: sorted[len(sorted)-1],
	}
}

// MeasureRound summarizes a node set after a round completes.
func MeasureRound(round int, phase Phase, nodes []*Link) RoundMetrics {
	m := RoundMetrics{Round: round, Phase: phase}
	var masses, strengths []float64
	for _, n := range nodes {
		switch n.Kind {
		case KindSingleton:
			m.Singletons++
		case KindLink:
			m.Links++
		case KindComposite:
			m.Composites++
		}
		masses = append(masses, n.Mass)
		strengths = append(strengths, n.Strength)
	}
	m.Mass = computeStats(masses)
	m.Strength = computeStats(strengths)
	return m
}

// Run executes the full pipeline for one session: kernel extraction
// (round 1, phase link) followed by up to two anneal rounds. It is a pure
// function of its inputs plus params; nothing is shared between sessions.
func Run(sessionID string, lines []transcript.Line, mask *transcript.Mask, actors []transcript.Actor, p Params, logger *zap.Logger) ([]*Link, []RoundMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nodes, err := ExtractLinks(sessionID, lines, mask, actors, p, logger)
	if err != nil {
		return nil, nil, err
	}
	metrics := []RoundMetrics{MeasureRound(1, PhaseLink, nodes)}

	for round := 2; round <= p.Rounds; round++ {
		nodes, err = Anneal(sessionID, nodes, lines, p, round)
		if err != nil {
			return nil, nil, err
		}
		rm := MeasureRound(round, PhaseAnneal, nodes)
		metrics = append(metrics, rm)
		logger.Info("anneal round complete",
			zap.String("session", sessionID),
			zap.Int("round", round),
			zap.Int("composites", rm.Composites))
	}
	return nodes, metrics, nil
}
