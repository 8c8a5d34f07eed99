package transcribe

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// localBackend shells out to a whisper.cpp style executable:
//
//	whisper-cli -m MODEL -l fr -nt -np -f clip.wav
//
// and reads the transcript from stdout.
type localBackend struct {
	command string
	model   string
	threads string
}

// NewLocal returns a Recognizer running a local whisper.cpp binary.
func NewLocal(command, model, threads string) Recognizer {
	if command == "" {
		command = "whisper-cli"
	}
	return &localBackend{command: command, model: model, threads: threads}
}

func (l *localBackend) Recognize(ctx context.Context, audio Audio, language string) (string, error) {
	args := []string{"-l", baseLanguage(language), "-nt", "-np", "-f", audio.Path}
	if l.model != "" {
		args = append([]string{"-m", l.model}, args...)
	}
	if l.threads != "" {
		args = append(args, "-t", l.threads)
	}
	cmd := exec.CommandContext(ctx, l.command, args...)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return "", &RequestError{Backend: "local", Err: errors.Errorf("%s failed: %s", l.command, strings.TrimSpace(stderr.String()))}
		}
		return "", &RequestError{Backend: "local", Err: errors.Wrap(err, "run helper")}
	}

	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && line != "[BLANK_AUDIO]" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", ErrNotUnderstood
	}
	return strings.Join(lines, " "), nil
}
