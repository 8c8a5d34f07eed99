package transcribe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAI speech-to-text via audio.transcriptions.
type openAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns a Recognizer backed by the OpenAI transcription API.
// baseURL may point at any compatible server; empty keeps the default.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) Recognizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	if model == "" {
		model = openai.Whisper1
	}
	return &openAIBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *openAIBackend) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audio.Path,
		Language: baseLanguage(language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &RequestError{Backend: "openai", Status: apiErr.HTTPStatusCode, Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &RequestError{Backend: "openai", Status: reqErr.HTTPStatusCode, Err: err}
		}
		return "", &RequestError{Backend: "openai", Err: err}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrNotUnderstood
	}
	return resp.Text, nil
}
