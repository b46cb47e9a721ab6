package transcript

import "fmt"

// ExcludedRange records why a run of lines was masked out.
type ExcludedRange struct {
	Start  int        `json:"start"`
	End    int        `json:"end"`
	Reason RegimeKind `json:"reason"`
}

// Mask is the per-line eligibility filter for causal analysis. Eligible is
// parallel to the transcript; Excluded lists the ranges that were masked and
// why. A Mask is built once per run and read-only afterwards.
type Mask struct {
	Eligible []bool          `json:"eligible"`
	Excluded []ExcludedRange `json:"excluded"`
}

// BuildMask initializes every line as eligible, then applies each regime span
// as an exclusion. ooc_hard and combat exclusions are non-overridable;
// includeOOCSoft re-includes ooc_soft spans (and drops their exclusion
// entries), which is the only override path and happens here, before any
// detection sees the mask.
func BuildMask(numLines int, spans []RegimeSpan, includeOOCSoft bool) (*Mask, error) {
	if numLines < 0 {
		return nil, fmt.Errorf("negative transcript length %d", numLines)
	}
	m := &Mask{Eligible: make([]bool, numLines)}
	for i := range m.Eligible {
		m.Eligible[i] = true
	}
	for _, s := range spans {
		if err := validateSpan(s, numLines); err != nil {
			return nil, fmt.Errorf("build mask: %w", err)
		}
		if s.Kind == RegimeOOCSoft && includeOOCSoft {
			continue
		}
		for i := s.Start; i <= s.End; i++ {
			m.Eligible[i] = false
		}
		m.Excluded = append(m.Excluded, ExcludedRange{Start: s.Start, End: s.End, Reason: s.Kind})
	}
	return m, nil
}

// EligibleAt reports whether line i survives masking. Out-of-range indexes
// are ineligible rather than a panic so window scans can probe freely.
func (m *Mask) EligibleAt(i int) bool {
	if i < 0 || i >= len(m.Eligible) {
		return false
	}
	return m.Eligible[i]
}
