package store

import (
	"context"
	"os"
	"testing"

	"github.com/keeminlee/meepo/internal/detect"
	"github.com/keeminlee/meepo/internal/graph"
)

// setupTestStore creates a temporary store for testing
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir := t.TempDir()
	original := os.Getenv("MEEPO_DATA_DIR")
	os.Setenv("MEEPO_DATA_DIR", tmpDir)
	t.Cleanup(func() { os.Setenv("MEEPO_DATA_DIR", original) })

	s, err := NewStore()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLinks() []*graph.Link {
	link := &graph.Link{
		ID: "link:s1:0-1", SessionID: "s1", Actor: "Mira",
		CauseIndex: 0, EffectIndex: 1,
		CauseType: detect.CauseDeclare, EffectType: detect.EffectRoll,
		Mass: 1.9, Strength: 0.8, StrengthInternal: 0.8,
		Claimed: true, Kind: graph.KindLink, Level: 1, Center: 0.5,
	}
	single := &graph.Link{
		ID: "singleton:s1:cause:4", SessionID: "s1", Actor: "Torvald",
		CauseIndex: 4, EffectIndex: graph.NoAnchor,
		CauseType: detect.CauseQuestion,
		Mass:      0.75, Kind: graph.KindSingleton, Level: 1, Center: 4,
	}
	comp := &graph.Link{
		ID: "comp:s1:L2:a+b", SessionID: "s1", Actor: "Mira",
		CauseIndex: graph.NoAnchor, EffectIndex: graph.NoAnchor,
		Mass: 2.6, Strength: 0.4, StrengthInternal: 1.3,
		Claimed: true, Kind: graph.KindComposite, Level: 2,
		Members: []string{"link:s1:0-1", "singleton:s1:cause:4"}, Center: 2.2,
	}
	return []*graph.Link{link, single, comp}
}

func sampleMetrics() []graph.RoundMetrics {
	return []graph.RoundMetrics{
		{Round: 1, Phase: graph.PhaseLink, Singletons: 1, Links: 1,
			Mass: graph.Stats{Min: 0.75, P50: 1.9, P90: 1.9, Max: 1.9}},
		{Round: 2, Phase: graph.PhaseAnneal, Singletons: 1, Links: 1, Composites: 1,
			Strength: graph.Stats{Min: 0, P50: 0.4, P90: 0.8, Max: 0.8}},
	}
}

func TestSaveRun_roundtrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := graph.DefaultParams()

	run, err := s.SaveRun(ctx, "s1", p, sampleLinks(), sampleMetrics(), Skip)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID != "s1:"+p.Hash() {
		t.Errorf("run id = %q", run.ID)
	}
	if run.KernelVersion != graph.KernelVersion {
		t.Errorf("kernel version = %q", run.KernelVersion)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("stored run not found")
	}
	if len(got.Links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(got.Links))
	}
	byID := make(map[string]*graph.Link)
	for _, l := range got.Links {
		byID[l.ID] = l
	}
	link := byID["link:s1:0-1"]
	if link == nil || link.CauseIndex != 0 || link.EffectIndex != 1 || !link.Claimed {
		t.Errorf("level-1 link not restored faithfully: %+v", link)
	}
	single := byID["singleton:s1:cause:4"]
	if single == nil || single.EffectIndex != graph.NoAnchor {
		t.Errorf("singleton null anchor not restored: %+v", single)
	}
	comp := byID["comp:s1:L2:a+b"]
	if comp == nil || len(comp.Members) != 2 {
		t.Errorf("composite members not restored: %+v", comp)
	}

	if len(got.Metrics) != 2 {
		t.Fatalf("expected 2 metric rounds, got %d", len(got.Metrics))
	}
	if got.Metrics[1].Phase != graph.PhaseAnneal || got.Metrics[1].Composites != 1 {
		t.Errorf("round 2 metrics not restored: %+v", got.Metrics[1])
	}
}

func TestSaveRun_skipKeepsExisting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := graph.DefaultParams()

	if _, err := s.SaveRun(ctx, "s1", p, sampleLinks(), sampleMetrics(), Skip); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	// Second write with the same params hash and fewer links is skipped.
	run, err := s.SaveRun(ctx, "s1", p, sampleLinks()[:1], nil, Skip)
	if err != nil {
		t.Fatalf("SaveRun skip: %v", err)
	}
	if len(run.Links) != 3 {
		t.Errorf("skip policy should return the existing snapshot, got %d links", len(run.Links))
	}
}

func TestSaveRun_overwriteReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := graph.DefaultParams()

	if _, err := s.SaveRun(ctx, "s1", p, sampleLinks(), sampleMetrics(), Skip); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	run, err := s.SaveRun(ctx, "s1", p, sampleLinks()[:1], sampleMetrics()[:1], Overwrite)
	if err != nil {
		t.Fatalf("SaveRun overwrite: %v", err)
	}
	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Links) != 1 || len(got.Metrics) != 1 {
		t.Errorf("overwrite should replace the snapshot, got %d links, %d metric rounds",
			len(got.Links), len(got.Metrics))
	}
}

func TestSaveRun_differentParamsCoexist(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := graph.DefaultParams()
	q := p
	q.TopK++

	if _, err := s.SaveRun(ctx, "s1", p, sampleLinks(), nil, Skip); err != nil {
		t.Fatalf("SaveRun p: %v", err)
	}
	if _, err := s.SaveRun(ctx, "s1", q, sampleLinks()[:1], nil, Skip); err != nil {
		t.Fatalf("SaveRun q: %v", err)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("parameter sets must produce disjoint snapshots, got %d runs", len(runs))
	}
}

func TestLatestRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	got, err := s.LatestRun(ctx, "nope")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown session, got %+v", got)
	}

	p := graph.DefaultParams()
	if _, err := s.SaveRun(ctx, "s1", p, sampleLinks(), nil, Skip); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err = s.LatestRun(ctx, "s1")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got == nil || got.SessionID != "s1" {
		t.Errorf("latest run not found: %+v", got)
	}
}

func TestSaveRun_emptySession(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.SaveRun(context.Background(), "", graph.DefaultParams(), nil, nil, Skip); err == nil {
		t.Fatal("empty session id must be rejected")
	}
}
