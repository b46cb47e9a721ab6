package acceptance

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/keeminlee/meepo/internal/graph"
	"github.com/keeminlee/meepo/internal/transcript"
)

// scenarioState holds state between steps of one scenario.
type scenarioState struct {
	sessionID string
	lines     []transcript.Line
	spans     []transcript.RegimeSpan
	params    graph.Params
	nodes     []*graph.Link
	second    []*graph.Link
}

var testActors = []transcript.Actor{
	{Name: "Dungeon Master", Aliases: []string{"DM"}, DM: true},
	{Name: "Mira"},
	{Name: "Torvald"},
}

func (s *scenarioState) loadTranscript(sessionID string, table *godog.Table) error {
	s.sessionID = sessionID
	s.lines = nil
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		if len(row.Cells) != 2 {
			return fmt.Errorf("transcript row %d needs author and content", i)
		}
		s.lines = append(s.lines, transcript.Line{
			Index:       len(s.lines),
			Author:      row.Cells[0].Value,
			Content:     transcript.Normalize(row.Cells[1].Value),
			TimestampMS: int64(len(s.lines)) * 1000,
		})
	}
	return nil
}

func (s *scenarioState) aSessionWithTranscript(sessionID string, table *godog.Table) error {
	s.params = graph.DefaultParams()
	return s.loadTranscript(sessionID, table)
}

func (s *scenarioState) aSessionWithWindowAndTranscript(sessionID string, maxBack int, table *godog.Table) error {
	s.params = graph.DefaultParams()
	s.params.MaxBack = maxBack
	return s.loadTranscript(sessionID, table)
}

func (s *scenarioState) linesMarkedAsCombat(start, end int) error {
	s.spans = append(s.spans, transcript.RegimeSpan{Start: start, End: end, Kind: transcript.RegimeCombat})
	return nil
}

func (s *scenarioState) extract() error {
	mask, err := transcript.BuildMask(len(s.lines), s.spans, false)
	if err != nil {
		return err
	}
	s.nodes, err = graph.ExtractLinks(s.sessionID, s.lines, mask, testActors, s.params, nil)
	return err
}

func (s *scenarioState) extractTwice() error {
	if err := s.extract(); err != nil {
		return err
	}
	first := s.nodes
	if err := s.extract(); err != nil {
		return err
	}
	s.second = s.nodes
	s.nodes = first
	return nil
}

func (s *scenarioState) levelOneLinks() []*graph.Link {
	var out []*graph.Link
	for _, n := range s.nodes {
		if n.Kind == graph.KindLink {
			out = append(out, n)
		}
	}
	return out
}

func (s *scenarioState) exactlyNLinks(n int) error {
	if got := len(s.levelOneLinks()); got != n {
		return fmt.Errorf("expected %d level-1 links, got %d", n, got)
	}
	return nil
}

func (s *scenarioState) linkAnchors(causeIdx, effectIdx int) error {
	for _, l := range s.levelOneLinks() {
		if l.CauseIndex == causeIdx && l.EffectIndex == effectIdx {
			return nil
		}
	}
	return fmt.Errorf("no link anchors %d -> %d", causeIdx, effectIdx)
}

func (s *scenarioState) linkCauseType(want string) error {
	for _, l := range s.levelOneLinks() {
		if string(l.CauseType) == want {
			return nil
		}
	}
	return fmt.Errorf("no link with cause type %q", want)
}

func (s *scenarioState) singletonAtLine(idx int) error {
	for _, n := range s.nodes {
		if n.Kind == graph.KindSingleton && n.CauseIndex == idx {
			return nil
		}
	}
	return fmt.Errorf("no cause singleton at line %d", idx)
}

func (s *scenarioState) edgeStrongerThan(nearIdx, farIdx int) error {
	var near, far *graph.Link
	for _, l := range s.levelOneLinks() {
		switch l.EffectIndex {
		case nearIdx:
			near = l
		case farIdx:
			far = l
		}
	}
	if near == nil || far == nil {
		return fmt.Errorf("expected edges to lines %d and %d", nearIdx, farIdx)
	}
	if near.Strength <= far.Strength {
		return fmt.Errorf("edge to %d (%v) does not dominate edge to %d (%v)",
			nearIdx, near.Strength, farIdx, far.Strength)
	}
	return nil
}

func (s *scenarioState) identicalRuns() error {
	if len(s.nodes) != len(s.second) {
		return fmt.Errorf("node counts differ: %d vs %d", len(s.nodes), len(s.second))
	}
	for i := range s.nodes {
		a, b := s.nodes[i], s.second[i]
		if a.ID != b.ID || a.Strength != b.Strength {
			return fmt.Errorf("node %d differs: %s/%v vs %s/%v", i, a.ID, a.Strength, b.ID, b.Strength)
		}
	}
	return nil
}

func (s *scenarioState) noNodes() error {
	if len(s.nodes) != 0 {
		return fmt.Errorf("expected no nodes, got %d", len(s.nodes))
	}
	return nil
}

// InitializeScenario registers step definitions
func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &scenarioState{}
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		*state = scenarioState{}
		return c, nil
	})

	ctx.Step(`^a session "([^"]*)" with the transcript:$`, state.aSessionWithTranscript)
	ctx.Step(`^a session "([^"]*)" with max back window (\d+) and the transcript:$`, state.aSessionWithWindowAndTranscript)
	ctx.Step(`^lines (\d+) to (\d+) are marked as combat$`, state.linesMarkedAsCombat)
	ctx.Step(`^I extract causal links$`, state.extract)
	ctx.Step(`^I extract causal links twice$`, state.extractTwice)
	ctx.Step(`^exactly (\d+) level-1 links? (?:is|are) produced$`, state.exactlyNLinks)
	ctx.Step(`^the link anchors cause line (\d+) to effect line (\d+)$`, state.linkAnchors)
	ctx.Step(`^the link cause type is "([^"]*)"$`, state.linkCauseType)
	ctx.Step(`^a singleton represents the cause at line (\d+)$`, state.singletonAtLine)
	ctx.Step(`^the edge to line (\d+) is stronger than the edge to line (\d+)$`, state.edgeStrongerThan)
	ctx.Step(`^both runs produce identical link IDs and strengths$`, state.identicalRuns)
	ctx.Step(`^no nodes are produced$`, state.noNodes)
}
