package audiogen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/fablecast-backend/internal/clients/gcp"
	"github.com/yungbote/fablecast-backend/internal/clients/openai"
	"github.com/yungbote/fablecast-backend/internal/data/repos"
	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/ingestion/chunkproc"
	"github.com/yungbote/fablecast-backend/internal/platform/dbctx"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

const (
	maxAttempts  = 3
	defaultVoice = "alloy"
)

var allowedVoices = map[string]struct{}{
	"alloy":   {},
	"echo":    {},
	"fable":   {},
	"onyx":    {},
	"nova":    {},
	"shimmer": {},
}

// SectionInput is one section's worth of work for the synthesizer. The TTS
// method consumes Segments (a narration script produced upstream); the gpt4o
// method consumes Content and derives its own speech segments.
type SectionInput struct {
	CollectionID uuid.UUID
	Index        int
	Title        string
	SectionType  string
	Content      string
	Segments     []chunkproc.ScriptSegment
}

// SpeechClient is the slice of the OpenAI client the gpt4o method needs.
type SpeechClient interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	SynthesizeSpeechSegment(ctx context.Context, seg openai.SpeechSegment) ([]byte, error)
}

type Synthesizer interface {
	SynthesizeSection(dbc dbctx.Context, method string, in SectionInput) (*domain.Audio, error)
}

type synthesizer struct {
	log            *logger.Logger
	tts            gcp.TextToSpeech
	speech         SpeechClient
	bucket         gcp.BucketService
	audioRepo      repos.AudioRepo
	collectionRepo repos.AudioCollectionRepo
	sleep          func(time.Duration)
}

func NewSynthesizer(
	tts gcp.TextToSpeech,
	speech SpeechClient,
	bucket gcp.BucketService,
	audioRepo repos.AudioRepo,
	collectionRepo repos.AudioCollectionRepo,
	log *logger.Logger,
) (Synthesizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if bucket == nil || audioRepo == nil || collectionRepo == nil {
		return nil, fmt.Errorf("bucket and repos required")
	}
	return &synthesizer{
		log:            log.With("service", "AudioSynthesizer"),
		tts:            tts,
		speech:         speech,
		bucket:         bucket,
		audioRepo:      audioRepo,
		collectionRepo: collectionRepo,
		sleep:          time.Sleep,
	}, nil
}

// SynthesizeSection runs the whole per-section attempt (transform, segment
// synthesis, concatenation, upload, persistence) under a linear retry:
// attempt n sleeps n*1000ms before the next try.
func (s *synthesizer) SynthesizeSection(dbc dbctx.Context, method string, in SectionInput) (*domain.Audio, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if dbc.Ctx != nil && dbc.Ctx.Err() != nil {
			return nil, dbc.Ctx.Err()
		}

		audio, err := s.synthesizeOnce(dbc, method, in)
		if err == nil {
			return audio, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		wait := time.Duration(attempt) * time.Second
		s.log.Warn("Section synthesis retrying",
			"collection_id", in.CollectionID,
			"section_index", in.Index,
			"method", method,
			"attempt", attempt,
			"backoff", wait.String(),
			"error", err.Error(),
		)
		s.sleep(wait)
	}
	return nil, fmt.Errorf("section %d synthesis failed after %d attempts: %w", in.Index, maxAttempts, lastErr)
}

func (s *synthesizer) synthesizeOnce(dbc dbctx.Context, method string, in SectionInput) (*domain.Audio, error) {
	var (
		wav     []byte
		details []domain.AudioSegmentDetail
		err     error
	)
	switch method {
	case domain.AudioMethodTTS:
		wav, details, err = s.synthesizeTTS(dbc.Ctx, in)
	case domain.AudioMethodGPT4o:
		wav, details, err = s.synthesizeGPT4o(dbc.Ctx, in)
	default:
		return nil, fmt.Errorf("unknown audio method %q", method)
	}
	if err != nil {
		return nil, err
	}

	duration, err := WAVDurationSec(wav)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("audio/%s/%03d.wav", in.CollectionID, in.Index)
	if err := s.bucket.UploadFile(dbc.Ctx, key, bytes.NewReader(wav)); err != nil {
		return nil, err
	}

	segJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	audio := &domain.Audio{
		ID:           uuid.New(),
		CollectionID: in.CollectionID,
		Index:        in.Index,
		Title:        in.Title,
		URL:          s.bucket.GetPublicURL(key),
		DurationSec:  duration,
		SectionType:  in.SectionType,
		Segments:     datatypes.JSON(segJSON),
	}
	if _, err := s.audioRepo.Create(dbc, []*domain.Audio{audio}); err != nil {
		return nil, err
	}
	if err := s.collectionRepo.AddPlaytime(dbc, in.CollectionID, duration); err != nil {
		return nil, err
	}
	return audio, nil
}

func (s *synthesizer) synthesizeTTS(ctx context.Context, in SectionInput) ([]byte, []domain.AudioSegmentDetail, error) {
	if s.tts == nil {
		return nil, nil, fmt.Errorf("tts client not configured")
	}
	if len(in.Segments) == 0 {
		return nil, nil, fmt.Errorf("no script segments for section %d", in.Index)
	}

	ssml := BuildSSML(in.Segments, defaultVoice)
	wav, err := s.tts.SynthesizeSSML(ctx, ssml, gcp.TTSConfig{})
	if err != nil {
		return nil, nil, err
	}

	duration, err := WAVDurationSec(wav)
	if err != nil {
		return nil, nil, err
	}
	details := make([]domain.AudioSegmentDetail, 0, len(in.Segments))
	for _, seg := range in.Segments {
		details = append(details, domain.AudioSegmentDetail{
			Voice: normalizeVoice(seg.Voice),
			Text:  snippet(seg.Text),
		})
	}
	if len(details) == 1 {
		details[0].DurationSec = duration
	}
	return wav, details, nil
}

func (s *synthesizer) synthesizeGPT4o(ctx context.Context, in SectionInput) ([]byte, []domain.AudioSegmentDetail, error) {
	if s.speech == nil {
		return nil, nil, fmt.Errorf("speech client not configured")
	}
	segments, err := s.transformToSegments(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if len(segments) == 0 {
		return nil, nil, fmt.Errorf("no valid audio segments for section %d", in.Index)
	}

	tmpDir, err := os.MkdirTemp("", "audiogen-*")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(tmpDir)

	buffers := make([][]byte, 0, len(segments))
	details := make([]domain.AudioSegmentDetail, 0, len(segments))
	for i, seg := range segments {
		wav, err := s.speech.SynthesizeSpeechSegment(ctx, openai.SpeechSegment{
			Voice:        seg.Voice,
			Text:         seg.Text,
			Instructions: seg.Instructions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("segment %d: %w", i, err)
		}
		if err := os.WriteFile(fmt.Sprintf("%s/seg_%03d.wav", tmpDir, i), wav, 0o644); err != nil {
			return nil, nil, err
		}
		duration, err := WAVDurationSec(wav)
		if err != nil {
			return nil, nil, fmt.Errorf("segment %d: %w", i, err)
		}
		buffers = append(buffers, wav)
		details = append(details, domain.AudioSegmentDetail{
			Voice:       seg.Voice,
			DurationSec: duration,
			Text:        snippet(seg.Text),
		})
	}

	wav, err := ConcatWAV(buffers)
	if err != nil {
		return nil, nil, err
	}
	return wav, details, nil
}

type speechSegmentSpec struct {
	Voice        string
	Text         string
	Instructions string
}

func (s *synthesizer) transformToSegments(ctx context.Context, in SectionInput) ([]speechSegmentSpec, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("empty section content")
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"segments": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"voice":        map[string]any{"type": "string"},
						"text":         map[string]any{"type": "string"},
						"instructions": map[string]any{"type": "string"},
					},
					"required":             []string{"voice", "text", "instructions"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"segments"},
		"additionalProperties": false,
	}

	system := "You split educational text into short spoken segments for a multi-speaker audio lesson. " +
		"Choose voices from: alloy, echo, fable, onyx, nova, shimmer."
	user := fmt.Sprintf("Section %q:\n%s", in.Title, in.Content)

	obj, err := s.speech.GenerateJSON(ctx, system, user, "speech_segments", schema)
	if err != nil {
		return nil, err
	}

	rawSegs, _ := obj["segments"].([]any)
	out := make([]speechSegmentSpec, 0, len(rawSegs))
	for _, rs := range rawSegs {
		m, _ := rs.(map[string]any)
		if m == nil {
			continue
		}
		text, _ := m["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		voice, _ := m["voice"].(string)
		instructions, _ := m["instructions"].(string)
		out = append(out, speechSegmentSpec{
			Voice:        normalizeVoice(voice),
			Text:         strings.TrimSpace(text),
			Instructions: strings.TrimSpace(instructions),
		})
	}
	return out, nil
}

// ---------- helpers ----------

func normalizeVoice(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if _, ok := allowedVoices[v]; ok {
		return v
	}
	return defaultVoice
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 120 {
		return text
	}
	return text[:120] + "..."
}
