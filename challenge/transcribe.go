package challenge

import (
	"bytes"
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoBackend is returned when no speech-to-text backend is configured.
var ErrNoBackend = errors.New("no transcription backend configured")

// Transcriber converts a challenge audio resource to text. Production runs
// must supply a real speech-to-text backend; the default declines rather
// than fabricate an answer.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// NoTranscriber is the reference behavior when no backend is configured:
// the audio strategy fails and the chain moves on.
type NoTranscriber struct{}

func (NoTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", ErrNoBackend
}

// WhisperTranscriber transcribes challenge audio through the OpenAI
// audio transcription API.
type WhisperTranscriber struct {
	client *openai.Client
}

// NewWhisperTranscriber creates a Whisper-backed transcriber
func NewWhisperTranscriber(apiKey string) *WhisperTranscriber {
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
	}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "challenge.mp3",
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
