package mocap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// commandHandler runs a capture helper that prints frame lines on stdout
type commandHandler struct {
	binPath string
	args    []string
}

// NewCommandHandler creates a Handler for the helper executable named by
// command. The executable is looked up on PATH and then in the bin directory
// next to the running binary.
func NewCommandHandler(command string, args ...string) (Handler, error) {
	binPath, err := FindRuntime(command)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &commandHandler{binPath: binPath, args: args}, nil
}

// Cmd returns an exec.Cmd for the helper process
func (h commandHandler) Cmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, h.binPath, h.args...)
}

// Parse decodes one line of helper output
func (h commandHandler) Parse(line string) (Sample, error) {
	return ParseFrame(line)
}

func (h commandHandler) Name() string {
	return filepath.Base(h.binPath)
}

// FindRuntime locates a helper executable
func FindRuntime(command string) (string, error) {
	binPath, err := exec.LookPath(command)
	if err == nil {
		return binPath, nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", err
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	name := command
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}

	binPath = filepath.Join(filepath.Dir(exePath), "bin", name)
	if _, err = os.Stat(binPath); err != nil {
		return "", fmt.Errorf("failed to find binary '%s'", command)
	}

	return binPath, nil
}
