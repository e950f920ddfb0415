// Package command runs shell commands for chat sessions with a timeout, a
// bounded output buffer and an optional asciinema recording.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/aieditor/backend/internal/buffer"
	"github.com/aieditor/backend/internal/logger"
)

const (
	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 30 * time.Second

	// DefaultOutputLimit is how many trailing output bytes are kept.
	DefaultOutputLimit = 64 * 1024
)

// Config holds configuration for the runner.
type Config struct {
	Timeout     time.Duration
	OutputLimit int
	// RecordDir, when set, receives one .cast file per run.
	RecordDir string
	// Shell defaults to /bin/sh.
	Shell string
}

// Result describes a finished command.
type Result struct {
	Command  string
	Output   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
	// Truncated is set when older output was dropped to honor the limit.
	Truncated bool
	// Recording is the cast file path, empty when recording is off or failed.
	Recording string
}

// Runner executes shell command lines.
type Runner struct {
	config Config
}

// NewRunner creates a new Runner, filling in defaults.
func NewRunner(config Config) *Runner {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.OutputLimit <= 0 {
		config.OutputLimit = DefaultOutputLimit
	}
	if config.Shell == "" {
		config.Shell = "/bin/sh"
	}
	return &Runner{config: config}
}

// Timeout returns the per-run timeout.
func (r *Runner) Timeout() time.Duration {
	return r.config.Timeout
}

// Run executes line with the shell in dir. A non-zero exit status or a
// timeout is reported in the Result, not as an error; errors mean the
// command could not be started at all.
func (r *Runner) Run(ctx context.Context, dir, line string) (*Result, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "prepare working directory")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	out := buffer.NewRingBuffer(r.config.OutputLimit)
	var sink io.Writer = out

	rec := r.startRecording(line)
	if rec != nil {
		sink = io.MultiWriter(out, rec)
		rec.Input(line + "\n")
	}

	cmd := exec.CommandContext(ctx, r.config.Shell, "-c", line)
	cmd.Dir = dir
	cmd.Stdout = sink
	cmd.Stderr = sink
	// Children that inherit the pipes must not keep Wait blocked.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Command:  line,
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
		fmt.Fprintf(out, "\ncommand timed out after %s", r.config.Timeout)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		r.finishRecording(rec, result)
		return nil, errors.Wrap(err, "run command")
	}

	result.Output = out.String()
	result.Truncated = out.Truncated()
	r.finishRecording(rec, result)

	log.Info().
		Str("component", "command").
		Str("command", line).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Bool("timed_out", result.TimedOut).
		Msg("command finished")

	return result, nil
}

func (r *Runner) startRecording(line string) *logger.Recorder {
	if r.config.RecordDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.config.RecordDir, 0755); err != nil {
		log.Warn().Err(err).Str("component", "command").Msg("recording disabled")
		return nil
	}

	name := fmt.Sprintf("%s-%s.cast", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	rec, err := logger.Create(filepath.Join(r.config.RecordDir, name), logger.CastHeader{
		Command: line,
		Title:   line,
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "command").Msg("recording disabled")
		return nil
	}
	return rec
}

func (r *Runner) finishRecording(rec *logger.Recorder, result *Result) {
	if rec == nil {
		return
	}
	rec.Marker(fmt.Sprintf("exit %d", result.ExitCode))
	if err := rec.Close(); err != nil {
		log.Warn().Err(err).Str("component", "command").Str("path", rec.Path()).Msg("recording incomplete")
		return
	}
	result.Recording = rec.Path()
}
