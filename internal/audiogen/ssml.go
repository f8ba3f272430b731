package audiogen

import (
	"strings"

	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
)

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// BuildSSML renders a narration script as SSML. Keyword spans are wrapped in
// emphasis tags; when the script carries more than one distinct voice, each
// speaker turn is wrapped in its own voice block.
func BuildSSML(segments []chunkproc.ScriptSegment, defaultVoice string) string {
	multiVoice := distinctVoiceCount(segments) > 1

	var b strings.Builder
	b.WriteString("<speak>")
	for _, seg := range segments {
		text := renderSegmentText(seg)
		if text == "" {
			continue
		}
		if multiVoice {
			voice := strings.TrimSpace(seg.Voice)
			if voice == "" {
				voice = defaultVoice
			}
			b.WriteString(`<voice name="`)
			b.WriteString(ssmlEscaper.Replace(voice))
			b.WriteString(`">`)
			b.WriteString(text)
			b.WriteString("</voice>")
		} else {
			b.WriteString("<p>")
			b.WriteString(text)
			b.WriteString("</p>")
		}
	}
	b.WriteString("</speak>")
	return b.String()
}

func renderSegmentText(seg chunkproc.ScriptSegment) string {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return ""
	}
	escaped := ssmlEscaper.Replace(text)
	for _, kw := range seg.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		ekw := ssmlEscaper.Replace(kw)
		escaped = strings.Replace(escaped, ekw, `<emphasis level="moderate">`+ekw+`</emphasis>`, 1)
	}
	return escaped
}

func distinctVoiceCount(segments []chunkproc.ScriptSegment) int {
	seen := map[string]struct{}{}
	for _, seg := range segments {
		v := strings.TrimSpace(seg.Voice)
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
