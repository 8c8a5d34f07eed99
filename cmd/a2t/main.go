package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/config"
	"github.com/zudsniper/audio2text/internal/logging"
	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/output"
	"github.com/zudsniper/audio2text/internal/pipeline"
	"github.com/zudsniper/audio2text/internal/server"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

var (
	infoTag = color.New(color.FgBlue)
	warnTag = color.New(color.FgYellow)
	okTag   = color.New(color.FgGreen)
	failTag = color.New(color.FgRed)
)

func info(msg string, a ...any) {
	infoTag.Fprint(os.Stderr, "[info] ")
	fmt.Fprintf(os.Stderr, msg+"\n", a...)
}

func warn(msg string, a ...any) {
	warnTag.Fprint(os.Stderr, "[warn] ")
	fmt.Fprintf(os.Stderr, msg+"\n", a...)
}

func ok(msg string, a ...any) {
	okTag.Fprint(os.Stderr, "[ok] ")
	fmt.Fprintf(os.Stderr, msg+"\n", a...)
}

func fail(msg string, a ...any) {
	failTag.Fprint(os.Stderr, "[error] ")
	fmt.Fprintf(os.Stderr, msg+"\n", a...)
}

// cliSink prints job events as status lines.
type cliSink struct{}

func (cliSink) Progress(done, total int) {
	info("progress %d/%d (%d%%)", done, total, done*100/max(total, 1))
}
func (cliSink) ChunkMessage(msg string) { info("%s", msg) }
func (cliSink) Error(msg string)        { fail("%s", msg) }
func (cliSink) Finished(text string)    { ok("Transcription done: %d characters", len(text)) }

type flags struct {
	inPath, outPath, format, title string
	configPath, serveAddr          string
	listLanguages                  bool

	language, backend, tmpDir, ffmpeg, logLevel, logFile string
	workers                                              int
	chunk, recognizeTimeout                              time.Duration

	openaiAPIKey, openaiModel, cfAccountID, cfAPIToken, cfModel, localModel string
}

func parseFlags() (*flags, map[string]bool) {
	var f flags
	flag.StringVar(&f.inPath, "input", "", "Input audio file path (-i)")
	flag.StringVar(&f.inPath, "i", "", "Input audio file path")
	flag.StringVar(&f.outPath, "output", "", "Output transcript file (-o); defaults to the input name")
	flag.StringVar(&f.outPath, "o", "", "Output transcript file")
	flag.StringVar(&f.format, "format", "", "Output format: md|txt (default from the output extension)")
	flag.StringVar(&f.title, "title", "", "Document title (default: source tags or file name)")
	flag.StringVar(&f.configPath, "config", os.Getenv("A2T_CONFIG"), "YAML config file (or A2T_CONFIG)")
	flag.StringVar(&f.serveAddr, "serve", "", "Serve the HTTP job API on this address instead of converting one file")
	flag.BoolVar(&f.listLanguages, "list-languages", false, "List the language catalogue and exit")

	flag.StringVar(&f.language, "language", "", "Language tag, e.g. fr-FR")
	flag.StringVar(&f.backend, "backend", "", "Recognition backend: google|openai|cloudflare|local")
	flag.IntVar(&f.workers, "workers", 0, "Parallel workers (0 = CPUs - 1)")
	flag.DurationVar(&f.chunk, "chunk", 0, "Chunk duration")
	flag.DurationVar(&f.recognizeTimeout, "recognize-timeout", 0, "Per-chunk recognition timeout (0 = none)")
	flag.StringVar(&f.tmpDir, "tmpdir", "", "Temporary working directory (default system temp)")
	flag.StringVar(&f.ffmpeg, "ffmpeg", "", "ffmpeg binary")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error")
	flag.StringVar(&f.logFile, "log-file", "", "Also append logs to this file")

	flag.StringVar(&f.openaiAPIKey, "openai-api-key", "", "OpenAI API key (or OPENAI_API_KEY)")
	flag.StringVar(&f.openaiModel, "openai-model", "", "OpenAI transcription model")
	flag.StringVar(&f.cfAccountID, "cf-account-id", "", "Cloudflare Account ID (or CF_ACCOUNT_ID)")
	flag.StringVar(&f.cfAPIToken, "cf-api-token", "", "Cloudflare API Token (or CF_API_TOKEN)")
	flag.StringVar(&f.cfModel, "cf-model", "", "Cloudflare AI model identifier")
	flag.StringVar(&f.localModel, "local-model", "", "whisper.cpp model file for the local backend")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return &f, set
}

// apply overlays explicitly set flags onto cfg.
func (f *flags) apply(cfg *config.Config, set map[string]bool) {
	str := func(name string, src string, dst *string) {
		if set[name] {
			*dst = src
		}
	}
	str("language", f.language, &cfg.Language)
	str("backend", f.backend, &cfg.Backend)
	str("tmpdir", f.tmpDir, &cfg.TmpDir)
	str("ffmpeg", f.ffmpeg, &cfg.FFmpeg)
	str("log-level", f.logLevel, &cfg.Log.Level)
	str("log-file", f.logFile, &cfg.Log.File)
	str("openai-api-key", f.openaiAPIKey, &cfg.OpenAI.APIKey)
	str("openai-model", f.openaiModel, &cfg.OpenAI.Model)
	str("cf-account-id", f.cfAccountID, &cfg.Cloudflare.AccountID)
	str("cf-api-token", f.cfAPIToken, &cfg.Cloudflare.APIToken)
	str("cf-model", f.cfModel, &cfg.Cloudflare.Model)
	str("local-model", f.localModel, &cfg.Local.Model)
	if set["workers"] {
		cfg.Workers = f.workers
	}
	if set["chunk"] {
		cfg.ChunkDuration = f.chunk
	}
	if set["recognize-timeout"] {
		cfg.RecognizeTimeout = f.recognizeTimeout
	}
	if set["serve"] {
		cfg.Server.Addr = f.serveAddr
	}
}

func main() { os.Exit(run()) }

func run() int {
	if err := config.LoadDefaultEnv(); err != nil {
		warn("env files: %v", err)
	}
	f, set := parseFlags()

	if f.listLanguages {
		for _, name := range transcribe.LanguageNames() {
			fmt.Printf("%s\t%s\n", transcribe.Languages[name], name)
		}
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fail("%v", err)
		return 2
	}
	if err := cfg.ApplyEnv(); err != nil {
		fail("environment: %v", err)
		return 2
	}
	f.apply(cfg, set)
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
		return 2
	}

	log, closer, err := logging.New("a2t", cfg.Log)
	if err != nil {
		fail("%v", err)
		return 2
	}
	defer closer.Close()

	factory, err := recognizerFactory(cfg)
	if err != nil {
		fail("%v", err)
		return 2
	}
	normalizer := media.NewNormalizer(media.FFmpeg{
		Path:       cfg.FFmpeg,
		SampleRate: cfg.SampleRate,
		Timeout:    cfg.DecodeTimeout,
	}, cfg.TmpDir, log)
	opts := pipeline.Options{
		Workers:          cfg.Workers,
		ChunkDuration:    cfg.ChunkDuration,
		TmpDir:           cfg.TmpDir,
		RecognizeTimeout: cfg.RecognizeTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if set["serve"] {
		ctrl := pipeline.NewController(normalizer, factory, pipeline.LogSink{Log: log.Named("events")}, opts, log)
		srv := server.New(ctrl, server.Options{DefaultLanguage: cfg.Language, UploadDir: cfg.TmpDir}, log)
		info("Serving job API on %s (%s backend)", cfg.Server.Addr, cfg.Backend)
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			fail("%v", err)
			return 1
		}
		return 0
	}

	return convert(ctx, f, cfg, pipeline.NewController(normalizer, factory, cliSink{}, opts, log))
}

func convert(ctx context.Context, f *flags, cfg *config.Config, ctrl *pipeline.Controller) int {
	if f.inPath == "" {
		fail("missing --input/-i audio path")
		return 2
	}
	format := output.FormatForPath(f.outPath)
	if f.format != "" {
		var err error
		if format, err = output.ParseFormat(f.format); err != nil {
			fail("%v", err)
			return 2
		}
	}
	outPath := f.outPath
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(f.inPath), filepath.Ext(f.inPath))
		outPath = base + "." + string(format)
	}
	title := f.title
	if title == "" {
		title = output.TitleFor(f.inPath)
	}

	info("Transcribing %s (%s, %s backend)...", f.inPath, cfg.Language, cfg.Backend)
	job := ctrl.NewJob(f.inPath, cfg.Language)
	tr, err := ctrl.Run(ctx, job)
	code := 0
	switch {
	case errors.Is(err, pipeline.ErrCancelled) && tr == nil:
		warn("Interrupted before transcription started")
		return 130
	case errors.Is(err, pipeline.ErrCancelled):
		warn("Interrupted; writing the partial transcript")
		code = 130
	case err != nil:
		fail("transcription failed: %v", err)
		return 1
	}

	meta := output.Metadata{
		Title:     title,
		Source:    f.inPath,
		Language:  cfg.Language,
		Backend:   cfg.Backend,
		Generated: time.Now(),
	}
	if err := output.Write(outPath, format, meta, tr); err != nil {
		fail("writing output: %v", err)
		return 1
	}
	ok("Wrote %s", outPath)
	return code
}
