package audiogen

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/fablecast-backend/internal/clients/openai"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type fakeSpeech struct {
	t        *testing.T
	segments []any
	got      []openai.SpeechSegment
}

func (f *fakeSpeech) GenerateJSON(_ context.Context, _, _ string, _ string, _ map[string]any) (map[string]any, error) {
	return map[string]any{"segments": f.segments}, nil
}

func (f *fakeSpeech) SynthesizeSpeechSegment(_ context.Context, seg openai.SpeechSegment) ([]byte, error) {
	f.got = append(f.got, seg)
	return makeWAV(f.t, 24000, make([]byte, 48)), nil
}

func newTestSynthesizer(t *testing.T, speech SpeechClient) *synthesizer {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &synthesizer{
		log:    log,
		speech: speech,
		sleep:  func(time.Duration) {},
	}
}

func TestGPT4oSynthesisForwardsSegmentInstructions(t *testing.T) {
	fake := &fakeSpeech{t: t, segments: []any{
		map[string]any{"voice": "nova", "text": "Tides follow the moon.", "instructions": "calm and slow"},
		map[string]any{"voice": "echo", "text": "High water comes twice a day.", "instructions": "brisk, matter of fact"},
	}}
	s := newTestSynthesizer(t, fake)

	wav, details, err := s.synthesizeGPT4o(context.Background(), SectionInput{
		Index:   0,
		Title:   "Tides",
		Content: "The gravitational pull of the moon drives the tides.",
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(fake.got) != 2 {
		t.Fatalf("expected 2 speech calls, got %d", len(fake.got))
	}
	if fake.got[0].Voice != "nova" || fake.got[0].Instructions != "calm and slow" {
		t.Fatalf("first segment lost its delivery instructions: %+v", fake.got[0])
	}
	if fake.got[1].Instructions != "brisk, matter of fact" {
		t.Fatalf("second segment lost its delivery instructions: %+v", fake.got[1])
	}
	if len(wav) != wavHeaderSize+96 {
		t.Fatalf("concatenated wav size = %d", len(wav))
	}
	if len(details) != 2 || details[0].Voice != "nova" {
		t.Fatalf("unexpected segment details: %+v", details)
	}
}

func TestGPT4oSynthesisNormalizesUnknownVoice(t *testing.T) {
	fake := &fakeSpeech{t: t, segments: []any{
		map[string]any{"voice": "baritone", "text": "Spring tides are the largest.", "instructions": ""},
	}}
	s := newTestSynthesizer(t, fake)

	_, _, err := s.synthesizeGPT4o(context.Background(), SectionInput{
		Index:   1,
		Title:   "Spring tides",
		Content: "When sun and moon align, their pulls combine.",
	})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(fake.got) != 1 || fake.got[0].Voice != defaultVoice {
		t.Fatalf("expected unknown voice to fall back to %q, got %+v", defaultVoice, fake.got)
	}
}
