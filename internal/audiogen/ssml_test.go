package audiogen

import (
	"strings"
	"testing"

	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
)

func TestBuildSSMLSingleVoice(t *testing.T) {
	segs := []chunkproc.ScriptSegment{
		{Voice: "alloy", Text: "Photosynthesis is the key process.", Keywords: []string{"Photosynthesis"}},
		{Voice: "alloy", Text: "It happens in chloroplasts."},
	}

	ssml := BuildSSML(segs, "alloy")
	if !strings.HasPrefix(ssml, "<speak>") || !strings.HasSuffix(ssml, "</speak>") {
		t.Fatalf("missing speak wrapper: %s", ssml)
	}
	if strings.Contains(ssml, "<voice") {
		t.Fatalf("single-voice script should not emit voice blocks: %s", ssml)
	}
	if !strings.Contains(ssml, `<emphasis level="moderate">Photosynthesis</emphasis>`) {
		t.Fatalf("keyword not emphasized: %s", ssml)
	}
}

func TestBuildSSMLMultiVoice(t *testing.T) {
	segs := []chunkproc.ScriptSegment{
		{Voice: "alloy", Text: "Question: what powers a cell?"},
		{Voice: "echo", Text: "The mitochondria."},
	}

	ssml := BuildSSML(segs, "alloy")
	if !strings.Contains(ssml, `<voice name="alloy">`) || !strings.Contains(ssml, `<voice name="echo">`) {
		t.Fatalf("expected per-speaker voice blocks: %s", ssml)
	}
}

func TestBuildSSMLEscapesMarkup(t *testing.T) {
	segs := []chunkproc.ScriptSegment{
		{Voice: "alloy", Text: `x < y & "quotes"`},
	}

	ssml := BuildSSML(segs, "alloy")
	if strings.Contains(ssml, `x < y`) {
		t.Fatalf("text not escaped: %s", ssml)
	}
	if !strings.Contains(ssml, "x &lt; y &amp; &quot;quotes&quot;") {
		t.Fatalf("unexpected escaping: %s", ssml)
	}
}

func TestNormalizeVoice(t *testing.T) {
	if got := normalizeVoice("Echo"); got != "echo" {
		t.Fatalf("expected echo, got %s", got)
	}
	if got := normalizeVoice("robotic"); got != defaultVoice {
		t.Fatalf("expected default voice for invalid input, got %s", got)
	}
	if got := normalizeVoice(""); got != defaultVoice {
		t.Fatalf("expected default voice for empty input, got %s", got)
	}
}
