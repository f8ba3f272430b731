package chunkproc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func newTestProcessor(t *testing.T, llm *fakeLLM, slept *[]time.Duration) *processor {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &processor{
		log: log,
		llm: llm,
		sleep: func(d time.Duration) {
			if slept != nil {
				*slept = append(*slept, d)
			}
		},
	}
}

const longContent = "Photosynthesis converts light energy into chemical energy stored in glucose."

func TestProcessShortContentSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	p := newTestProcessor(t, llm, nil)

	res, err := p.Process(context.Background(), "", "too short", ModeAudioScript, "", false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Empty {
		t.Fatalf("expected empty result for short chunk")
	}
	if llm.calls != 0 {
		t.Fatalf("expected no LLM calls, got %d", llm.calls)
	}
}

func TestProcessAudioScript(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`{"segments":[{"voice":"alloy","text":"Welcome back.","keywords":["photosynthesis"]}]}`,
	}}
	p := newTestProcessor(t, llm, nil)

	res, err := p.Process(context.Background(), "prior part", longContent, ModeAudioScript, "", false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].Voice != "alloy" {
		t.Fatalf("unexpected segments: %+v", res.Segments)
	}
}

func TestProcessQuestionSetToleratesFencedJSON(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		"Here you go:\n```json\n{\"questions\":[{\"question\":\"What does photosynthesis produce?\",\"options\":[\"Glucose\",\"Iron\"],\"answer\":\"Glucose\",\"explanation\":\"Stated directly.\"},]}\n```",
	}}
	p := newTestProcessor(t, llm, nil)

	res, err := p.Process(context.Background(), "", longContent, ModeQuestionSet, "", true)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0].Answer != "Glucose" {
		t.Fatalf("unexpected questions: %+v", res.Questions)
	}
}

func TestProcessRetriesWithExponentialBackoff(t *testing.T) {
	llm := &fakeLLM{
		errs: []error{errors.New("rate limited"), errors.New("rate limited")},
		responses: []string{"", "",
			`{"segments":[{"voice":"alloy","text":"Recovered."}]}`,
		},
	}
	var slept []time.Duration
	p := newTestProcessor(t, llm, &slept)

	res, err := p.Process(context.Background(), "", longContent, ModeAudioScript, "", false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if llm.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", llm.calls)
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != 1000*time.Millisecond {
		t.Fatalf("unexpected backoff sequence: %v", slept)
	}
}

func TestProcessExhaustsRetries(t *testing.T) {
	llm := &fakeLLM{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	var slept []time.Duration
	p := newTestProcessor(t, llm, &slept)

	_, err := p.Process(context.Background(), "", longContent, ModeQuestionSet, "", false)
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", llm.calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %v", slept)
	}
}

func TestParseModelJSONStrictFallback(t *testing.T) {
	var out struct {
		Segments []ScriptSegment `json:"segments"`
	}
	raw := `{"segments":[{"voice":"echo","text":"plain strict JSON"}]}`
	if err := parseModelJSON(raw, &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out.Segments) != 1 || out.Segments[0].Voice != "echo" {
		t.Fatalf("unexpected parse result: %+v", out)
	}
}
