package graph

import (
	"fmt"

	"github.com/keeminlee/meepo/internal/detect"
)

// NodeKind discriminates between the three node shapes the engine produces.
type NodeKind string

const (
	KindSingleton NodeKind = "singleton"
	KindLink      NodeKind = "link"
	KindComposite NodeKind = "composite"
)

// NoAnchor marks an absent cause or effect anchor on singleton nodes.
const NoAnchor = -1

// Link is the persisted unit of causal structure. Level-1 links pair a cause
// anchor with an effect anchor; composites (level >= 2) bundle exactly two
// lower-level children. IDs are deterministic functions of session and
// anchors, so re-extraction on unchanged input reproduces them byte for byte.
type Link struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Actor     string `json:"actor,omitempty"`

	CauseIndex  int `json:"cause_anchor_index"`  // NoAnchor when absent
	EffectIndex int `json:"effect_anchor_index"` // NoAnchor when absent

	CauseType  detect.CauseType  `json:"cause_type,omitempty"`
	EffectType detect.EffectType `json:"effect_type,omitempty"`

	Mass             float64 `json:"mass"`
	Strength         float64 `json:"strength"`
	StrengthInternal float64 `json:"strength_internal"`
	Claimed          bool    `json:"claimed"`

	Kind    NodeKind `json:"node_kind"`
	Level   int      `json:"level"`
	Members []string `json:"members,omitempty"` // exactly two child IDs when Level >= 2
	Center  float64  `json:"center_index"`
}

// linkID derives the deterministic ID for a level-1 link.
func linkID(sessionID string, causeIdx, effectIdx int) string {
	return fmt.Sprintf("link:%s:%d-%d", sessionID, causeIdx, effectIdx)
}

// singletonID derives the deterministic ID for an unmatched cause or effect.
// role is "cause" or "effect".
func singletonID(sessionID, role string, idx int) string {
	return fmt.Sprintf("singleton:%s:%s:%d", sessionID, role, idx)
}

// compositeID derives the deterministic ID for a merged node. Child IDs are
// themselves deterministic, so composites stay stable across re-extraction.
func compositeID(sessionID string, level int, leftID, rightID string) string {
	return fmt.Sprintf("comp:%s:L%d:%s+%s", sessionID, level, leftID, rightID)
}

// span returns the (start, end) transcript extent of a level-1 or singleton
// node. Composites are expanded by the renderer, not here.
func (l *Link) span() (int, int) {
	start, end := l.CauseIndex, l.EffectIndex
	if start == NoAnchor {
		start = end
	}
	if end == NoAnchor {
		end = start
	}
	return start, end
}
