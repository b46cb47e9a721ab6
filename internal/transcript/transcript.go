// Package transcript provides the transcript data model for session analysis:
// ordered lines, discourse regime spans, and the eligibility mask that filters
// out-of-character and combat chatter before causal extraction runs.
package transcript

import (
	"fmt"
	"strings"
)

// Line is a single transcript entry. Index is the stable 0-based ordinal
// within a session and is the ground truth ordering for all downstream spans.
type Line struct {
	Index       int    `json:"index"`
	Author      string `json:"author"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"ts_ms"`
}

// RegimeKind tags a discourse regime span.
type RegimeKind string

const (
	RegimeOOCHard RegimeKind = "ooc_hard"
	RegimeOOCSoft RegimeKind = "ooc_soft"
	RegimeCombat  RegimeKind = "combat"
)

// RegimeSpan is an inclusive [Start, End] index range over transcript lines.
type RegimeSpan struct {
	Start int        `json:"start"`
	End   int        `json:"end"`
	Kind  RegimeKind `json:"kind"`
}

// Normalize trims and collapses internal whitespace in a line's content.
func Normalize(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// validateSpan checks a regime span against transcript length n.
// Malformed spans are caller programming errors and fail fast.
func validateSpan(s RegimeSpan, n int) error {
	switch s.Kind {
	case RegimeOOCHard, RegimeOOCSoft, RegimeCombat:
	default:
		return fmt.Errorf("unknown regime kind %q", s.Kind)
	}
	if s.Start < 0 || s.End < s.Start || s.End >= n {
		return fmt.Errorf("regime span [%d, %d] out of range for %d lines", s.Start, s.End, n)
	}
	return nil
}
