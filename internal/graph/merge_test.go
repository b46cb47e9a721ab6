package graph

import (
	"reflect"
	"testing"

	"github.com/keeminlee/meepo/internal/transcript"
)

func runPipeline(t *testing.T, lines []transcript.Line, p Params) ([]*Link, []RoundMetrics) {
	t.Helper()
	mask := fullMask(t, len(lines))
	nodes, metrics, err := Run("s1", lines, mask, testActors, p, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return nodes, metrics
}

func TestAnneal_mergesAdjacentLinks(t *testing.T) {
	lines := sampleSessionLines(t)
	p := DefaultParams()
	p.Rounds = 2
	nodes, metrics := runPipeline(t, lines, p)

	var composites []*Link
	for _, n := range nodes {
		if n.Kind == KindComposite {
			composites = append(composites, n)
		}
	}
	if len(composites) == 0 {
		t.Fatal("expected at least one composite from adjacent related links")
	}
	for _, c := range composites {
		if c.Level != 2 {
			t.Errorf("round-2 composite at level %d", c.Level)
		}
		if len(c.Members) != 2 {
			t.Errorf("composite %s has %d members, want exactly 2", c.ID, len(c.Members))
		}
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 rounds of metrics, got %d", len(metrics))
	}
	if metrics[0].Phase != PhaseLink || metrics[1].Phase != PhaseAnneal {
		t.Errorf("phases = %s, %s", metrics[0].Phase, metrics[1].Phase)
	}
	if metrics[1].Composites != len(composites) {
		t.Errorf("metrics report %d composites, counted %d", metrics[1].Composites, len(composites))
	}
}

func TestAnneal_compositeValidity(t *testing.T) {
	lines := sampleSessionLines(t)
	p := DefaultParams()
	p.Rounds = 3
	nodes, _ := runPipeline(t, lines, p)

	arena := make(map[string]*Link)
	for _, n := range nodes {
		arena[n.ID] = n
	}
	memberOwner := make(map[string]string)
	for _, n := range nodes {
		if n.Level < 2 {
			continue
		}
		if len(n.Members) != 2 {
			t.Fatalf("composite %s has %d members", n.ID, len(n.Members))
		}
		for _, m := range n.Members {
			child, ok := arena[m]
			if !ok {
				t.Fatalf("composite %s references missing member %s", n.ID, m)
			}
			if child.Level >= n.Level {
				t.Errorf("member %s level %d not strictly below composite level %d", m, child.Level, n.Level)
			}
			if owner, taken := memberOwner[m]; taken {
				t.Errorf("member %s consumed by both %s and %s", m, owner, n.ID)
			}
			memberOwner[m] = n.ID
		}
	}
}

func TestAnneal_strengthInternalGrows(t *testing.T) {
	lines := sampleSessionLines(t)
	p := DefaultParams()
	p.Rounds = 3
	nodes, _ := runPipeline(t, lines, p)

	arena := make(map[string]*Link)
	for _, n := range nodes {
		arena[n.ID] = n
	}
	for _, n := range nodes {
		if n.Kind != KindComposite {
			continue
		}
		left, right := arena[n.Members[0]], arena[n.Members[1]]
		if n.StrengthInternal <= left.StrengthInternal || n.StrengthInternal <= right.StrengthInternal {
			t.Errorf("composite %s internal strength %v does not exceed children (%v, %v)",
				n.ID, n.StrengthInternal, left.StrengthInternal, right.StrengthInternal)
		}
		if left.Center > right.Center {
			t.Errorf("composite %s members not in timeline order", n.ID)
		}
		if n.Mass != left.Mass+right.Mass {
			t.Errorf("composite %s mass %v, want sum of children %v", n.ID, n.Mass, left.Mass+right.Mass)
		}
	}
}

func TestAnneal_thresholdBlocksMerges(t *testing.T) {
	lines := sampleSessionLines(t)
	p := DefaultParams()
	p.Rounds = 2
	p.MergeThreshold = 1e9
	nodes, metrics := runPipeline(t, lines, p)
	for _, n := range nodes {
		if n.Kind == KindComposite {
			t.Errorf("no composite should clear an unreachable threshold, got %s", n.ID)
		}
	}
	if metrics[1].Composites != 0 {
		t.Errorf("metrics report %d composites", metrics[1].Composites)
	}
}

func TestAnneal_missingMemberFatal(t *testing.T) {
	lines := sampleSessionLines(t)
	nodes := []*Link{
		{ID: "comp:s1:L2:a+b", SessionID: "s1", Kind: KindComposite, Level: 2, Members: []string{"ghost", "also-ghost"}},
	}
	if _, err := Anneal("s1", nodes, lines, DefaultParams(), 2); err == nil {
		t.Fatal("a composite referencing a missing member must abort")
	}
}

func TestAnneal_duplicateIDFatal(t *testing.T) {
	lines := sampleSessionLines(t)
	n := &Link{ID: "link:s1:0-1", SessionID: "s1", Kind: KindLink, Level: 1}
	if _, err := Anneal("s1", []*Link{n, n}, lines, DefaultParams(), 2); err == nil {
		t.Fatal("duplicate node IDs must abort")
	}
}

func TestRun_determinism(t *testing.T) {
	lines := sampleSessionLines(t)
	mask := fullMask(t, len(lines))
	p := DefaultParams()

	n1, m1, err := Run("s1", lines, mask, testActors, p, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	n2, m2, err := Run("s1", lines, mask, testActors, p, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(n1, n2) {
		t.Error("node sets differ between identical runs")
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Error("round metrics differ between identical runs")
	}
}

func TestComputeStats(t *testing.T) {
	s := computeStats([]float64{0.4, 0.1, 0.3, 0.2})
	if s.Min != 0.1 || s.Max != 0.4 {
		t.Errorf("min/max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 0.2 {
		t.Errorf("p50 = %v, want 0.2", s.P50)
	}
	if s.P90 != 0.4 {
		t.Errorf("p90 = %v, want 0.4", s.P90)
	}
	if z := computeStats(nil); z != (Stats{}) {
		t.Errorf("empty stats should be zero, got %+v", z)
	}
}
