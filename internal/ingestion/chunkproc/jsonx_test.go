package chunkproc

import (
	"testing"
)

func TestParseModelJSONKeepsCommaSequencesInsideStrings(t *testing.T) {
	var out struct {
		Questions []struct {
			Question string   `json:"question"`
			Options  []string `json:"options"`
			Answer   string   `json:"answer"`
		} `json:"questions"`
	}
	// Valid JSON whose string values contain ", ]" and ", }" sequences.
	raw := `{"questions":[{"question":"Which slice literal is valid: [1, 2, ] or [1, 2]?","options":["[1, 2, ]","[1, 2]"],"answer":"[1, 2, ]"}]}`
	if err := parseModelJSON(raw, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(out.Questions))
	}
	q := out.Questions[0]
	if q.Question != "Which slice literal is valid: [1, 2, ] or [1, 2]?" {
		t.Fatalf("question text mutated: %q", q.Question)
	}
	if q.Options[0] != "[1, 2, ]" || q.Answer != "[1, 2, ]" {
		t.Fatalf("string values mutated: options=%v answer=%q", q.Options, q.Answer)
	}
}

func TestParseModelJSONStripsStructuralTrailingCommas(t *testing.T) {
	var out struct {
		Segments []ScriptSegment `json:"segments"`
	}
	raw := `{"segments":[{"voice":"nova","text":"Last thought.",},]}`
	if err := parseModelJSON(raw, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out.Segments) != 1 || out.Segments[0].Voice != "nova" {
		t.Fatalf("unexpected parse result: %+v", out)
	}
}
