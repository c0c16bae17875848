package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultOllamaBinary = "ollama"
	defaultOllamaModel  = "llama3"

	// commandWaitDelay bounds how long Wait blocks on output pipes after the
	// process was killed.
	commandWaitDelay = 2 * time.Second
)

// CommandClient runs a local text-generation executable once per question,
// by default `ollama run <model>`, writing the payload to its stdin and
// reading the answer from stdout.
type CommandClient struct {
	binary string
	args   []string
	model  string
}

// CommandConfig holds subprocess backend configuration
type CommandConfig struct {
	Binary string   // executable name or path, e.g. "ollama"
	Model  string   // e.g. "llama3"
	Args   []string // replaces the default "run <model>" arguments when set
}

// NewCommandClient creates a subprocess client. The executable is not looked
// up here: a missing binary surfaces per question as ErrBackendMissing.
func NewCommandClient(cfg CommandConfig) (*CommandClient, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultOllamaBinary
	}
	if strings.ContainsAny(cfg.Binary, "\n\x00") {
		return nil, fmt.Errorf("invalid backend executable name: %q", cfg.Binary)
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}

	args := cfg.Args
	if args == nil {
		args = []string{"run", cfg.Model}
	}

	return &CommandClient{
		binary: cfg.Binary,
		args:   args,
		model:  cfg.Model,
	}, nil
}

// Complete runs the executable with the payload on stdin. It is killed when
// ctx is done.
func (c *CommandClient) Complete(ctx context.Context, prompt string) (string, *Stats, error) {
	startTime := time.Now()

	cmd := exec.CommandContext(ctx, c.binary, c.args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = commandWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, fmt.Errorf("%s did not finish: %w", c.binary, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrBackendMissing, c.binary)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrBackendUnavailable, c.binary, exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return "", nil, fmt.Errorf("%w: failed to run %s: %v", ErrBackendUnavailable, c.binary, err)
	}

	return strings.TrimSpace(stdout.String()), &Stats{
		Provider:        c.GetProviderName(),
		Model:           c.model,
		DurationSeconds: time.Since(startTime).Seconds(),
	}, nil
}

// lastLine returns the last non-empty line of s, which is where CLI tools
// usually put the error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// GetModelInfo returns information about the configured model
func (c *CommandClient) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model":    c.model,
		"provider": c.GetProviderName(),
		"command":  c.binary + " " + strings.Join(c.args, " "),
	}
}

// GetProviderName returns "Ollama" for the ollama executable and the
// executable's base name otherwise.
func (c *CommandClient) GetProviderName() string {
	name := filepath.Base(c.binary)
	if name == defaultOllamaBinary {
		return "Ollama"
	}
	return name
}

// Ensure CommandClient implements Provider interface
var _ Provider = (*CommandClient)(nil)
