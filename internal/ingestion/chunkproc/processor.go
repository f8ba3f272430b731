package chunkproc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type Mode string

const (
	ModeAudioScript Mode = "audio-script"
	ModeQuestionSet Mode = "question-set"
)

const (
	minContentLen  = 20
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// ScriptSegment is one speaker turn of a narration script.
type ScriptSegment struct {
	Voice        string   `json:"voice"`
	Text         string   `json:"text"`
	Keywords     []string `json:"keywords,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Result holds the structured output for whichever mode ran. Empty marks a
// chunk that was too short to be worth an LLM call.
type Result struct {
	Segments  []ScriptSegment
	Questions []domain.Question
	Empty     bool
}

// TextGenerator is the slice of the LLM client this package needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type Processor interface {
	Process(ctx context.Context, previousContent, content string, mode Mode, instructions string, isLastPart bool) (*Result, error)
}

type processor struct {
	log   *logger.Logger
	llm   TextGenerator
	sleep func(time.Duration)
}

func NewProcessor(llm TextGenerator, log *logger.Logger) (Processor, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &processor{
		log:   log.With("service", "ChunkProcessor"),
		llm:   llm,
		sleep: time.Sleep,
	}, nil
}

func (p *processor) Process(ctx context.Context, previousContent, content string, mode Mode, instructions string, isLastPart bool) (*Result, error) {
	if mode != ModeAudioScript && mode != ModeQuestionSet {
		return nil, fmt.Errorf("unknown chunk mode %q", mode)
	}
	if len(strings.TrimSpace(content)) < minContentLen {
		return &Result{Empty: true}, nil
	}

	system := audioScriptSystem
	if mode == ModeQuestionSet {
		system = questionSetSystem
	}
	user := buildUserPrompt(mode, previousContent, content, instructions, isLastPart)

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := p.processOnce(ctx, system, user, mode)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		p.log.Warn("Chunk processing retrying",
			"mode", string(mode),
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
		p.sleep(backoff)
		backoff *= 2
	}
	return nil, fmt.Errorf("chunk processing failed after %d attempts: %w", maxAttempts, lastErr)
}

func (p *processor) processOnce(ctx context.Context, system, user string, mode Mode) (*Result, error) {
	text, err := p.llm.GenerateText(ctx, system, user)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeAudioScript:
		var parsed struct {
			Segments []ScriptSegment `json:"segments"`
		}
		if err := parseModelJSON(text, &parsed); err != nil {
			return nil, err
		}
		segs := parsed.Segments[:0]
		for _, s := range parsed.Segments {
			if strings.TrimSpace(s.Text) == "" {
				continue
			}
			segs = append(segs, s)
		}
		if len(segs) == 0 {
			return nil, fmt.Errorf("script response contained no usable segments")
		}
		return &Result{Segments: segs}, nil

	case ModeQuestionSet:
		var parsed struct {
			Questions []domain.Question `json:"questions"`
		}
		if err := parseModelJSON(text, &parsed); err != nil {
			return nil, err
		}
		qs := parsed.Questions[:0]
		for _, q := range parsed.Questions {
			if strings.TrimSpace(q.Question) == "" || len(q.Options) == 0 {
				continue
			}
			qs = append(qs, q)
		}
		if len(qs) == 0 {
			return nil, fmt.Errorf("question response contained no usable questions")
		}
		return &Result{Questions: qs}, nil
	}
	return nil, fmt.Errorf("unknown chunk mode %q", mode)
}
