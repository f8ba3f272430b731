package gcp

import (
	"context"
	"fmt"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/fablecast-backend/internal/platform/ctxutil"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

// TextToSpeech renders SSML into a LINEAR16 WAV payload. The returned bytes
// carry a full RIFF header, so segments can be concatenated downstream.
type TextToSpeech interface {
	SynthesizeSSML(ctx context.Context, ssml string, cfg TTSConfig) ([]byte, error)
	Close() error
}

type TTSConfig struct {
	LanguageCode string
	VoiceName    string
	SpeakingRate float64
}

type ttsService struct {
	log        *logger.Logger
	client     *texttospeech.Client
	maxRetries int
}

func NewTextToSpeech(log *logger.Logger) (TextToSpeech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.TextToSpeech")

	ctx := context.Background()
	client, err := texttospeech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("texttospeech client: %w", err)
	}

	return &ttsService{log: slog, client: client, maxRetries: 2}, nil
}

func (s *ttsService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *ttsService) SynthesizeSSML(ctx context.Context, ssml string, cfg TTSConfig) ([]byte, error) {
	if ssml == "" {
		return nil, fmt.Errorf("empty ssml")
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	lang := cfg.LanguageCode
	if lang == "" {
		lang = "en-US"
	}
	rate := cfg.SpeakingRate
	if rate <= 0 {
		rate = 1.0
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: ssml},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         cfg.VoiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
			SpeakingRate:  rate,
		},
	}

	resp, err := s.retrySynth(ctx, func() (*texttospeechpb.SynthesizeSpeechResponse, error) {
		return s.client.SynthesizeSpeech(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("texttospeech SynthesizeSpeech: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("texttospeech returned empty audio")
	}
	return resp.AudioContent, nil
}

func (s *ttsService) retrySynth(ctx context.Context, fn func() (*texttospeechpb.SynthesizeSpeechResponse, error)) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
