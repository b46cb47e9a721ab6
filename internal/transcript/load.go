package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// rawLine is the on-disk shape of a transcript entry (JSONL export from the
// session recorder: one object per line, already filtered to primary
// narrative weight content).
type rawLine struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	TSMS    int64  `json:"ts_ms"`
}

// LoadLines reads a transcript JSONL file and assigns stable 0-based indexes
// in file order. Blank lines are skipped; a malformed line is a fatal input
// error, not something to silently drop.
func LoadLines(path string) ([]Line, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var lines []Line
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var r rawLine
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", lineNo, err)
		}
		lines = append(lines, Line{
			Index:       len(lines),
			Author:      r.Author,
			Content:     Normalize(r.Content),
			TimestampMS: r.TSMS,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript scan: %w", err)
	}
	return lines, nil
}

// LoadSpans reads a regime-span sidecar file: a JSON array of
// {start, end, kind} objects over the same line indexing.
func LoadSpans(path string) ([]RegimeSpan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regime spans: %w", err)
	}
	var spans []RegimeSpan
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, fmt.Errorf("parse regime spans: %w", err)
	}
	return spans, nil
}

// LoadActors reads a participant list: a JSON array of
// {name, aliases, dm} objects.
func LoadActors(path string) ([]Actor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actors: %w", err)
	}
	var actors []Actor
	if err := json.Unmarshal(data, &actors); err != nil {
		return nil, fmt.Errorf("parse actors: %w", err)
	}
	return actors, nil
}
