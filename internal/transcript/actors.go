package transcript

import "strings"

// Actor is a session participant with a canonical name and known aliases.
// DM marks the participant running the table; DM lines feed the proximity
// fallback in the kernel.
type Actor struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	DM      bool     `json:"dm,omitempty"`
}

// AttributeActor resolves a line's author field to a canonical actor name by
// longest-substring matching against names and aliases (case-insensitive).
// Falls back to the raw author when nothing matches.
func AttributeActor(actors []Actor, author string) string {
	lowered := strings.ToLower(author)
	best := ""
	bestLen := 0
	for _, a := range actors {
		for _, cand := range append([]string{a.Name}, a.Aliases...) {
			c := strings.ToLower(strings.TrimSpace(cand))
			if c == "" {
				continue
			}
			if strings.Contains(lowered, c) && len(c) > bestLen {
				best = a.Name
				bestLen = len(c)
			}
		}
	}
	if best == "" {
		return author
	}
	return best
}

// IsDMAuthor reports whether the author resolves to the DM. When no actor
// list is available it falls back to conventional author markers.
func IsDMAuthor(actors []Actor, author string) bool {
	lowered := strings.ToLower(author)
	for _, a := range actors {
		if !a.DM {
			continue
		}
		for _, cand := range append([]string{a.Name}, a.Aliases...) {
			c := strings.ToLower(strings.TrimSpace(cand))
			if c != "" && strings.Contains(lowered, c) {
				return true
			}
		}
	}
	if len(actors) == 0 {
		return strings.Contains(lowered, "dm") || strings.Contains(lowered, "gm") ||
			strings.Contains(lowered, "dungeon master")
	}
	return false
}
