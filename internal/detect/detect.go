// Package detect classifies transcript lines as cause (intent) or effect
// (consequence) candidates using ordered pattern tables. Matching is pure and
// stateless: first matcher wins, absence of a match is a valid result.
package detect

import (
	"regexp"
	"strings"
)

// CauseType tags what kind of intent a line expresses.
type CauseType string

const (
	CauseQuestion CauseType = "question"
	CauseRequest  CauseType = "request"
	CausePropose  CauseType = "propose"
	CauseDeclare  CauseType = "declare"
)

// EffectType tags what kind of consequence a line expresses.
type EffectType string

const (
	EffectRoll          EffectType = "roll"
	EffectInformation   EffectType = "information"
	EffectDeterministic EffectType = "deterministic"
	EffectCommitment    EffectType = "commitment"
	EffectDMStatement   EffectType = "dm_statement"
	EffectOther         EffectType = "other"
)

// CauseDetection is the result of cause classification. Mass is a heuristic
// confidence in [0,1] used as a multiplicative scoring weight, not a
// calibrated probability.
type CauseDetection struct {
	Match bool
	Type  CauseType
	Mass  float64
}

// EffectDetection is the result of effect classification. RollKind carries
// the ability/skill sub-type for roll effects when one was recognized.
type EffectDetection struct {
	Match    bool
	Type     EffectType
	Mass     float64
	RollKind string
}

// Fixed vocabulary tables. Order within openers does not matter; order of the
// matcher tables below does (first match wins).

var strongInterrogatives = []string{
	"what", "where", "when", "who", "why", "how",
	"do you", "does the", "did you", "is there", "are there",
	"can i", "can we", "could i", "could we", "should i", "should we",
	"will the", "would the",
}

var requestOpeners = []string{
	"can you", "could you", "would you", "i want to", "i'd like to",
	"i would like to", "let me", "help me",
}

var proposalOpeners = []string{
	"maybe we", "we could", "we should", "how about", "what if", "let's",
}

var actionVerbs = map[string]bool{
	"attack": true, "search": true, "open": true, "look": true, "check": true,
	"roll": true, "cast": true, "grab": true, "take": true, "move": true,
	"go": true, "talk": true, "speak": true, "sneak": true, "climb": true,
	"pick": true, "throw": true, "ask": true, "investigate": true,
	"persuade": true, "intimidate": true, "hide": true, "listen": true,
	"push": true, "pull": true, "read": true, "follow": true, "examine": true,
	"try": true, "use": true, "drink": true, "light": true, "shoot": true,
}

var rollKeywords = []string{
	"roll", "check", "save", "saving throw", "d20", "dice", "advantage",
	"initiative", "attack roll",
}

var rollRe = regexp.MustCompile(`(?i)\b(roll(?:ed|s|ing)?|d(?:4|6|8|10|12|20|100)\b|natural\s+(?:1|20)|nat\s*(?:1|20)|dc\s*\d+|saving\s+throw|with\s+(?:dis)?advantage)`)

var rollKinds = []string{
	"strength", "dexterity", "constitution", "intelligence", "wisdom",
	"charisma", "perception", "stealth", "persuasion", "deception",
	"intimidation", "athletics", "acrobatics", "investigation", "insight",
	"arcana", "history", "nature", "religion", "survival", "initiative",
	"attack", "save",
}

var informationRe = regexp.MustCompile(`(?i)\byou\s+(see|notice|learn|find|hear|realize|realise|remember|sense|spot|feel|discover)\b|\breveals?\b|\bit\s+appears\b|\bturns\s+out\b`)

var deterministicRe = regexp.MustCompile(`(?i)\byou\s+(open|close|succeed|manage|unlock|break|climb\s+over|light|pull|push)\b|\bthe\s+\w+\s+(opens|closes|breaks|falls|swings|gives\s+way)\b|\bsuccessfully\b|\bit\s+works\b`)

var commitmentRe = regexp.MustCompile(`(?i)\b(i|we)(?:'ll|\s+will|\s+shall)\b|\bagreed\b|\bdeal\b|\bi\s+promise\b|\bi\s+swear\b|\byou\s+have\s+my\s+word\b|\blet's\s+do\s+it\b`)

const minCauseAlnum = 6

// tokenize lowercases, strips punctuation, and splits on whitespace.
func tokenize(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func alnumLen(s string) int {
	n := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			n++
		}
	}
	return n
}

func hasOpener(lower string, openers []string) bool {
	for _, o := range openers {
		if strings.HasPrefix(lower, o+" ") || lower == o || strings.HasPrefix(lower, o+"?") || strings.HasPrefix(lower, o+",") {
			return true
		}
	}
	return false
}

func actionVerbWithin(toks []string, n int) bool {
	if n > len(toks) {
		n = len(toks)
	}
	for i := 0; i < n; i++ {
		if actionVerbs[toks[i]] {
			return true
		}
	}
	return false
}

func hasRollKeyword(lower string) bool {
	for _, k := range rollKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// causeMatchers is the ordered cause table; evaluation stops at the first
// matcher that fires.
var causeMatchers = []struct {
	name  string
	match func(lower string, toks []string) (CauseType, float64, bool)
}{
	{"interrogative", func(lower string, toks []string) (CauseType, float64, bool) {
		if !hasOpener(lower, strongInterrogatives) {
			return "", 0, false
		}
		if !strings.HasSuffix(strings.TrimSpace(lower), "?") && len(toks) < 4 && !actionVerbWithin(toks, 6) {
			return "", 0, false
		}
		mass := 0.75
		if hasRollKeyword(lower) || actionVerbWithin(toks, 6) {
			mass = 0.9
		}
		return CauseQuestion, mass, true
	}},
	{"request", func(lower string, toks []string) (CauseType, float64, bool) {
		if !hasOpener(lower, requestOpeners) || !actionVerbWithin(toks, 5) {
			return "", 0, false
		}
		mass := 0.85
		if hasRollKeyword(lower) {
			mass = 0.95
		}
		return CauseRequest, mass, true
	}},
	{"declare", func(lower string, toks []string) (CauseType, float64, bool) {
		if len(toks) < 4 || toks[0] != "i" || !actionVerbs[toks[1]] {
			return "", 0, false
		}
		mass := 0.9
		if hasRollKeyword(lower) {
			mass = 1.0
		}
		return CauseDeclare, mass, true
	}},
	{"weak", func(lower string, toks []string) (CauseType, float64, bool) {
		trimmed := strings.TrimSpace(lower)
		switch {
		case hasOpener(lower, proposalOpeners):
			return CausePropose, 0.65, true
		case strings.HasSuffix(trimmed, "?"):
			return CauseQuestion, 0.65, true
		case strings.Contains(lower, "please"):
			return CauseRequest, 0.45, true
		}
		return "", 0, false
	}},
}

// DetectCause classifies a line as an intent candidate. Lines shorter than
// six alphanumeric characters are never causes.
func DetectCause(content string) CauseDetection {
	if alnumLen(content) < minCauseAlnum {
		return CauseDetection{}
	}
	lower := strings.ToLower(strings.TrimSpace(content))
	toks := tokenize(content)
	for _, m := range causeMatchers {
		if typ, mass, ok := m.match(lower, toks); ok {
			return CauseDetection{Match: true, Type: typ, Mass: mass}
		}
	}
	return CauseDetection{}
}

// effectMatchers is the ordered effect table; roll vocabulary has highest
// precedence so "you rolled a 3, you see nothing" classifies as a roll.
var effectMatchers = []struct {
	name  string
	match func(lower string) (EffectType, float64, string, bool)
}{
	{"roll", func(lower string) (EffectType, float64, string, bool) {
		if !rollRe.MatchString(lower) {
			return "", 0, "", false
		}
		kind := ""
		for _, k := range rollKinds {
			if strings.Contains(lower, k) {
				kind = k
				break
			}
		}
		return EffectRoll, 1.0, kind, true
	}},
	{"information", func(lower string) (EffectType, float64, string, bool) {
		if informationRe.MatchString(lower) {
			return EffectInformation, 0.7, "", true
		}
		return "", 0, "", false
	}},
	{"deterministic", func(lower string) (EffectType, float64, string, bool) {
		if deterministicRe.MatchString(lower) {
			return EffectDeterministic, 0.85, "", true
		}
		return "", 0, "", false
	}},
	{"commitment", func(lower string) (EffectType, float64, string, bool) {
		if commitmentRe.MatchString(lower) {
			return EffectCommitment, 0.8, "", true
		}
		return "", 0, "", false
	}},
	{"short_answer", func(lower string) (EffectType, float64, string, bool) {
		toks := tokenize(lower)
		if len(toks) == 0 || len(toks) > 2 {
			return "", 0, "", false
		}
		if assentWords[toks[0]] {
			return EffectCommitment, 0.5, "", true
		}
		return "", 0, "", false
	}},
}

// assentWords catch bare answers to a preceding question ("Yes.", "sure").
var assentWords = map[string]bool{
	"yes": true, "no": true, "yeah": true, "yep": true, "nope": true,
	"okay": true, "ok": true, "sure": true, "fine": true, "absolutely": true,
}

// DetectEffect classifies a line as a consequence candidate.
func DetectEffect(content string) EffectDetection {
	lower := strings.ToLower(strings.TrimSpace(content))
	if lower == "" {
		return EffectDetection{}
	}
	for _, m := range effectMatchers {
		if typ, mass, kind, ok := m.match(lower); ok {
			return EffectDetection{Match: true, Type: typ, Mass: mass, RollKind: kind}
		}
	}
	return EffectDetection{}
}
