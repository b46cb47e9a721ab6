package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/keeminlee/meepo/internal/detect"
	"github.com/keeminlee/meepo/internal/transcript"
)

// edge is a scored cause→effect candidate pairing.
type edge struct {
	cause  int
	effect int
	base   float64 // score before reweighting
	weight float64 // score after reweighting
}

// lexicon holds per-token document frequencies over the eligible lines of a
// session, for IDF-weighted overlap.
type lexicon struct {
	df map[string]int
	n  int
}

func buildLexicon(lines []transcript.Line, mask *transcript.Mask) *lexicon {
	lex := &lexicon{df: make(map[string]int)}
	for _, ln := range lines {
		if !mask.EligibleAt(ln.Index) {
			continue
		}
		lex.n++
		seen := make(map[string]bool)
		for _, t := range tokens(ln.Content) {
			if !seen[t] {
				seen[t] = true
				lex.df[t]++
			}
		}
	}
	return lex
}

func (l *lexicon) idf(tok string) float64 {
	df := l.df[tok]
	if df == 0 {
		df = 1
	}
	return math.Log(1.0 + float64(l.n)/float64(df))
}

func tokens(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// lexicalOverlap is token-set Jaccard overlap between two texts, IDF-weighted
// over the session corpus when lex is non-nil.
func lexicalOverlap(a, b string, lex *lexicon) float64 {
	setA := make(map[string]bool)
	for _, t := range tokens(a) {
		setA[t] = true
	}
	setB := make(map[string]bool)
	for _, t := range tokens(b) {
		setB[t] = true
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	union := make(map[string]bool, len(setA)+len(setB))
	for t := range setA {
		union[t] = true
	}
	for t := range setB {
		union[t] = true
	}
	var inter, total float64
	for t := range union {
		w := 1.0
		if lex != nil {
			w = lex.idf(t)
		}
		total += w
		if setA[t] && setB[t] {
			inter += w
		}
	}
	if total == 0 {
		return 0
	}
	return inter / total
}

// reweightFloor bounds how far a competing edge can be scaled down in a
// single round, so weak edges stay representable rather than collapsing to 0.
const reweightFloor = 0.05

// ExtractLinks runs the causal link kernel over one session: classification
// of eligible lines, windowed candidate-edge scoring, the DM-proximity
// companion pass, top-K selection per effect, and iterative backward
// reweighting. It emits one claimed level-1 link per surviving edge plus a
// singleton node for every detected cause or effect that matched no edge.
func ExtractLinks(sessionID string, lines []transcript.Line, mask *transcript.Mask, actors []transcript.Actor, p Params, logger *zap.Logger) ([]*Link, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("extract links: %w", err)
	}
	if len(mask.Eligible) != len(lines) {
		return nil, fmt.Errorf("extract links: mask length %d does not match %d transcript lines", len(mask.Eligible), len(lines))
	}

	// Pass 1: classify eligible lines. The set of pattern-matched effect
	// indexes is the claimed set threaded into the DM-proximity pass.
	causes := make(map[int]detect.CauseDetection)
	effects := make(map[int]detect.EffectDetection)
	claimed := make(map[int]bool)
	for _, ln := range lines {
		if !mask.EligibleAt(ln.Index) {
			continue
		}
		if c := detect.DetectCause(ln.Content); c.Match {
			causes[ln.Index] = c
		}
		if e := detect.DetectEffect(ln.Content); e.Match {
			effects[ln.Index] = e
			claimed[ln.Index] = true
		}
	}

	// Pass 2: DM-proximity fallback. Any eligible DM line shortly after a
	// detected cause becomes a low-confidence dm_statement candidate unless
	// a pattern-matched effect already claims it.
	dmEffects := dmProximityPass(lines, mask, actors, causes, claimed, p)

	lookupEffect := func(j int) (detect.EffectDetection, bool) {
		if e, ok := effects[j]; ok {
			return e, true
		}
		e, ok := dmEffects[j]
		return e, ok
	}

	var lex *lexicon
	if p.UseIDF {
		lex = buildLexicon(lines, mask)
	}

	// Candidate edges: forward window only; effect anchors never precede
	// their cause.
	causeIdxs := sortedKeys(causes)
	byEffect := make(map[int][]*edge)
	for _, i := range causeIdxs {
		c := causes[i]
		hi := i + p.MaxBack
		if hi >= len(lines) {
			hi = len(lines) - 1
		}
		for j := i + 1; j <= hi; j++ {
			if !mask.EligibleAt(j) {
				continue
			}
			e, ok := lookupEffect(j)
			if !ok {
				continue
			}
			if e.Type == detect.EffectDMStatement && j-i > p.DMProximity {
				continue
			}
			d := float64(j - i)
			score := hill(d, p.DistTau, p.DistP) *
				(1 + p.BetaLex*lexicalOverlap(lines[i].Content, lines[j].Content, lex)) *
				c.Mass * e.Mass
			byEffect[j] = append(byEffect[j], &edge{cause: i, effect: j, base: score, weight: score})
		}
	}

	// Top-K per effect, then backward reweighting.
	for j, in := range byEffect {
		sortEdges(in)
		if len(in) > p.TopK {
			byEffect[j] = in[:p.TopK]
		}
	}
	for r := 0; r < p.Iters; r++ {
		for _, in := range byEffect {
			reweightRound(in, p.Beta)
		}
	}

	links := emitLinks(sessionID, lines, actors, causes, effects, byEffect, p)

	logger.Info("kernel extracted links",
		zap.String("session", sessionID),
		zap.Int("causes", len(causes)),
		zap.Int("effects", len(effects)),
		zap.Int("dm_fallback", len(dmEffects)),
		zap.Int("nodes", len(links)))
	return links, nil
}

// dmProximityPass finds eligible DM lines within p.DMProximity after a
// detected cause and returns them as dm_statement effect candidates. The
// claimed set from the pattern pass is read-only here.
func dmProximityPass(lines []transcript.Line, mask *transcript.Mask, actors []transcript.Actor, causes map[int]detect.CauseDetection, claimed map[int]bool, p Params) map[int]detect.EffectDetection {
	out := make(map[int]detect.EffectDetection)
	for i := range causes {
		hi := i + p.DMProximity
		if hi >= len(lines) {
			hi = len(lines) - 1
		}
		for j := i + 1; j <= hi; j++ {
			if claimed[j] || !mask.EligibleAt(j) {
				continue
			}
			if !transcript.IsDMAuthor(actors, lines[j].Author) {
				continue
			}
			out[j] = detect.EffectDetection{Match: true, Type: detect.EffectDMStatement, Mass: p.DMMass}
		}
	}
	return out
}

// sortEdges orders incoming edges by descending weight, ties broken by
// ascending cause index for determinism.
func sortEdges(in []*edge) {
	sort.SliceStable(in, func(a, b int) bool {
		if in[a].weight != in[b].weight {
			return in[a].weight > in[b].weight
		}
		return in[a].cause < in[b].cause
	})
}

// reweightRound applies one round of backward reweighting to the incoming
// edges of a single effect: the dominant edge is untouched, every other edge
// is scaled down in proportion to beta and its relative score gap. Dominant
// edges are fixed points, so extra rounds change nothing about the winner.
func reweightRound(in []*edge, beta float64) {
	if len(in) < 2 {
		return
	}
	sortEdges(in)
	top := in[0].weight
	if top <= 0 {
		return
	}
	for _, e := range in[1:] {
		gap := (top - e.weight) / top
		factor := 1 - beta*gap
		if factor < reweightFloor {
			factor = reweightFloor
		}
		e.weight *= factor
	}
}

// emitLinks materializes level-1 links for surviving edges and singletons
// for detected candidates that matched nothing, in deterministic order.
func emitLinks(sessionID string, lines []transcript.Line, actors []transcript.Actor, causes map[int]detect.CauseDetection, effects map[int]detect.EffectDetection, byEffect map[int][]*edge, p Params) []*Link {
	var all []*edge
	for _, in := range byEffect {
		all = append(all, in...)
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].cause != all[b].cause {
			return all[a].cause < all[b].cause
		}
		return all[a].effect < all[b].effect
	})

	matchedCause := make(map[int]bool)
	matchedEffect := make(map[int]bool)
	var links []*Link
	for _, e := range all {
		matchedCause[e.cause] = true
		matchedEffect[e.effect] = true
		c := causes[e.cause]
		eff, ok := effects[e.effect]
		if !ok {
			eff = detect.EffectDetection{Type: detect.EffectDMStatement, Mass: p.DMMass}
		}
		l := &Link{
			ID:          linkID(sessionID, e.cause, e.effect),
			SessionID:   sessionID,
			Actor:       transcript.AttributeActor(actors, lines[e.cause].Author),
			CauseIndex:  e.cause,
			EffectIndex: e.effect,
			CauseType:   c.Type,
			EffectType:  eff.Type,
			Mass:        c.Mass + eff.Mass,
			Strength:    e.weight,
			// Level-1 internal strength seeds composite accumulation.
			StrengthInternal: e.weight,
			Claimed:          true,
			Kind:             KindLink,
			Level:            1,
			Center:           float64(e.cause+e.effect) / 2,
		}
		links = append(links, l)
	}

	for _, i := range sortedKeys(causes) {
		if matchedCause[i] {
			continue
		}
		c := causes[i]
		links = append(links, &Link{
			ID:          singletonID(sessionID, "cause", i),
			SessionID:   sessionID,
			Actor:       transcript.AttributeActor(actors, lines[i].Author),
			CauseIndex:  i,
			EffectIndex: NoAnchor,
			CauseType:   c.Type,
			Mass:        c.Mass,
			Kind:        KindSingleton,
			Level:       1,
			Center:      float64(i),
		})
	}
	for _, j := range sortedKeys(effects) {
		if matchedEffect[j] {
			continue
		}
		e := effects[j]
		links = append(links, &Link{
			ID:          singletonID(sessionID, "effect", j),
			SessionID:   sessionID,
			Actor:       transcript.AttributeActor(actors, lines[j].Author),
			CauseIndex:  NoAnchor,
			EffectIndex: j,
			EffectType:  e.Type,
			Mass:        e.Mass,
			Kind:        KindSingleton,
			Level:       1,
			Center:      float64(j),
		})
	}
	return links
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
