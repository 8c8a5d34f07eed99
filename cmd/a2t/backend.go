package main

import (
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/config"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

// recognizerFactory returns a constructor for the configured backend. Each
// worker calls it once.
func recognizerFactory(cfg *config.Config) (transcribe.Factory, error) {
	switch cfg.Backend {
	case config.BackendGoogle:
		g := cfg.Google
		return func() transcribe.Recognizer {
			return transcribe.NewGoogle(g.Endpoint, g.Key, cfg.RecognizeTimeout)
		}, nil
	case config.BackendOpenAI:
		o := cfg.OpenAI
		return func() transcribe.Recognizer {
			return transcribe.NewOpenAI(o.APIKey, o.Model, o.BaseURL, cfg.RecognizeTimeout)
		}, nil
	case config.BackendCloudflare:
		cf := cfg.Cloudflare
		return func() transcribe.Recognizer {
			return transcribe.NewCloudflare(cf.AccountID, cf.APIToken, cf.Model, cf.Endpoint, cfg.RecognizeTimeout)
		}, nil
	case config.BackendLocal:
		l := cfg.Local
		return func() transcribe.Recognizer {
			return transcribe.NewLocal(l.Command, l.Model, l.Threads)
		}, nil
	}
	return nil, errors.Errorf("unknown backend: %s", cfg.Backend)
}
