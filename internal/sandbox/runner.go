package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"collabedit/internal/domain"
	collabSvc "collabedit/internal/domain/services/collab"
)

//go:embed runners.yaml
var defaultRunners []byte

// maxOutputBytes caps how much of each stream is returned to the caller
const maxOutputBytes = 64 << 10

const filePlaceholder = "{file}"

// RunnerConfig describes how files with the given extensions are executed
type RunnerConfig struct {
	Name       string   `yaml:"name"`
	Extensions []string `yaml:"extensions"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
}

type runnersFile struct {
	Runners []RunnerConfig `yaml:"runners"`
}

// Runner executes file contents with the command configured for the file's extension
type Runner struct {
	byExt   map[string]RunnerConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner loads runner definitions from configPath, or the embedded defaults
// when configPath is empty.
func NewRunner(configPath string, timeout time.Duration, logger *slog.Logger) (*Runner, error) {
	data := defaultRunners
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read runners config %s: %w", configPath, err)
		}
	}

	runners, err := ParseRunners(data)
	if err != nil {
		return nil, err
	}
	return newRunner(runners, timeout, logger), nil
}

// ParseRunners decodes a runners YAML document
func ParseRunners(data []byte) ([]RunnerConfig, error) {
	var file runnersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal runners config: %w", err)
	}
	for i, r := range file.Runners {
		if r.Command == "" {
			return nil, fmt.Errorf("runner %d (%s): command is required", i, r.Name)
		}
		if len(r.Extensions) == 0 {
			return nil, fmt.Errorf("runner %d (%s): at least one extension is required", i, r.Name)
		}
	}
	return file.Runners, nil
}

func newRunner(runners []RunnerConfig, timeout time.Duration, logger *slog.Logger) *Runner {
	byExt := make(map[string]RunnerConfig)
	for _, r := range runners {
		for _, ext := range r.Extensions {
			byExt[strings.ToLower(ext)] = r
		}
	}
	return &Runner{byExt: byExt, timeout: timeout, logger: logger}
}

// Execute writes contents to a fresh temp directory and runs it. A non-zero
// exit or a timeout is reported through the result, not as an error.
func (r *Runner) Execute(ctx context.Context, fileName, contents string) (*collabSvc.RunResult, error) {
	base := filepath.Base(fileName)
	if base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: invalid file name %q", domain.ErrValidation, fileName)
	}

	ext := strings.ToLower(filepath.Ext(base))
	cfg, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no runner configured for %q files", domain.ErrValidation, ext)
	}

	dir, err := os.MkdirTemp("", "collabedit-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", base, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := make([]string, len(cfg.Args))
	for i, arg := range cfg.Args {
		args[i] = strings.ReplaceAll(arg, filePlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Dir = dir
	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &collabSvc.RunResult{
		Success: runErr == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Stderr += fmt.Sprintf("\nexecution timed out after %s", r.timeout)
	case errors.As(runErr, &exitErr):
	default:
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Command, runErr)
	}

	r.logger.Info("file executed",
		"runner", cfg.Name,
		"file", base,
		"success", result.Success,
		"duration_ms", elapsed.Milliseconds(),
	)

	return result, nil
}

// cappedBuffer keeps the first limit bytes written and discards the rest
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

var _ collabSvc.Sandbox = (*Runner)(nil)
