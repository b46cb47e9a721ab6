package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/keeminlee/meepo/internal/transcript"
)

// outlineSpan is a node projected onto the transcript: its line extent plus
// the parent composite it nests under, if any.
type outlineSpan struct {
	node       *Link
	start, end int
	parent     *outlineSpan
	order      int // encounter order, for deterministic tie-breaks
}

// RenderOutline projects a node set back onto transcript order as an
// indented outline: a span marker opens where a node's extent starts, the
// enclosed transcript lines print beneath it, and indentation depth follows
// the active ancestor spans. Read-only; the node set and transcript are not
// modified.
func RenderOutline(nodes []*Link, lines []transcript.Line) (string, error) {
	spans, err := buildSpans(nodes, lines)
	if err != nil {
		return "", err
	}
	assignParents(spans)

	byStart := make(map[int][]*outlineSpan)
	for _, s := range spans {
		byStart[s.start] = append(byStart[s.start], s)
	}
	// Wider and higher-level spans open first at the same start line.
	for _, group := range byStart {
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].end != group[b].end {
				return group[a].end > group[b].end
			}
			if group[a].node.Level != group[b].node.Level {
				return group[a].node.Level > group[b].node.Level
			}
			return group[a].order < group[b].order
		})
	}

	var b strings.Builder
	var active []*outlineSpan
	for _, ln := range lines {
		for _, s := range byStart[ln.Index] {
			indent := depthOf(s, active)
			fmt.Fprintf(&b, "%s[L%d %s mass=%.2f strength=%.2f lines %d-%d]\n",
				strings.Repeat("  ", indent), s.node.Level, s.node.Kind, s.node.Mass, s.node.Strength, s.start, s.end)
			active = append(active, s)
		}
		fmt.Fprintf(&b, "%s%03d %s: %s\n",
			strings.Repeat("  ", len(active)), ln.Index, ln.Author, ln.Content)
		// Close spans whose end line has just been emitted.
		kept := active[:0]
		for _, s := range active {
			if s.end > ln.Index {
				kept = append(kept, s)
			}
		}
		active = kept
	}
	return b.String(), nil
}

// buildSpans computes each node's (start, end) line extent by expanding
// composites to their level-1 descendants through an ID-indexed arena,
// iteratively and with a visited guard so member cycles are reported as data
// bugs instead of recursing forever.
func buildSpans(nodes []*Link, lines []transcript.Line) ([]*outlineSpan, error) {
	arena := make(map[string]*Link, len(nodes))
	for _, n := range nodes {
		arena[n.ID] = n
	}
	var spans []*outlineSpan
	for order, n := range nodes {
		start, end := len(lines), -1
		visited := make(map[string]bool)
		stack := []*Link{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[cur.ID] {
				return nil, fmt.Errorf("outline: cycle through node %s", cur.ID)
			}
			visited[cur.ID] = true
			if cur.Level <= 1 || len(cur.Members) == 0 {
				s, e := cur.span()
				if s < start {
					start = s
				}
				if e > end {
					end = e
				}
				continue
			}
			for _, m := range cur.Members {
				child, ok := arena[m]
				if !ok {
					return nil, fmt.Errorf("outline: node %s references missing member %s", cur.ID, m)
				}
				stack = append(stack, child)
			}
		}
		if end < 0 || start >= len(lines) {
			continue
		}
		spans = append(spans, &outlineSpan{node: n, start: start, end: end, order: order})
	}
	return spans, nil
}

// assignParents picks, for each span, the enclosing composite with the
// smallest level difference; ties go to the earliest encountered.
func assignParents(spans []*outlineSpan) {
	for _, s := range spans {
		var best *outlineSpan
		for _, cand := range spans {
			if cand == s || cand.node.Kind != KindComposite {
				continue
			}
			if cand.start > s.start || cand.end < s.end || cand.node.Level <= s.node.Level {
				continue
			}
			if best == nil ||
				cand.node.Level-s.node.Level < best.node.Level-s.node.Level ||
				(cand.node.Level == best.node.Level && cand.order < best.order) {
				best = cand
			}
		}
		s.parent = best
	}
}

// depthOf counts active ancestor spans for indentation; when a span has no
// tracked ancestor among the active set, it falls back to the number of
// distinct higher active levels.
func depthOf(s *outlineSpan, active []*outlineSpan) int {
	depth := 0
	for p := s.parent; p != nil; p = p.parent {
		for _, a := range active {
			if a == p {
				depth++
				break
			}
		}
	}
	if depth > 0 || s.parent != nil {
		return depth
	}
	levels := make(map[int]bool)
	for _, a := range active {
		if a.node.Level > s.node.Level {
			levels[a.node.Level] = true
		}
	}
	return len(levels)
}
