// File: process/starter.go
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/pkg/errors"
)

// StartSpec describes a process to start.
type StartSpec struct {
	Executable string
	WorkDir    string
	// RuntimeOptions are KEY=VALUE entries added to the inherited
	// environment, e.g. GOMAXPROCS=2.
	RuntimeOptions []string
	// Properties are passed as --property=key=value flags after Args.
	Properties map[string]string
	Args       []string
	Stdout     io.Writer
	Stderr     io.Writer
}

// CommandLine returns the arguments the process is started with.
func (s StartSpec) CommandLine() []string {
	args := append([]string(nil), s.Args...)
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("--property=%s=%s", k, s.Properties[k]))
	}
	return args
}

// Handle is a started process. Wait may only be called once.
type Handle interface {
	Pid() int
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forces the process to exit.
	Kill() error
	// Wait blocks until the process has exited.
	Wait() error
}

// ProcessStarter starts processes.
type ProcessStarter interface {
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}

// SystemProcessStarter starts operating system processes.
type SystemProcessStarter struct{}

// Start starts spec.Executable. ctx only bounds the start itself; the
// process outlives it.
func (SystemProcessStarter) Start(ctx context.Context, spec StartSpec) (Handle, error) {
	if spec.Executable == "" {
		return nil, errors.New("executable is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessage(err, "starting process")
	}
	cmd := exec.Command(spec.Executable, spec.CommandLine()...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.RuntimeOptions...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %s", spec.Executable)
	}
	return &osHandle{cmd: cmd}, nil
}

type osHandle struct {
	cmd *exec.Cmd
}

func (h *osHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *osHandle) Terminate() error {
	return ignoreDone(terminate(h.cmd.Process))
}

func (h *osHandle) Kill() error {
	return ignoreDone(h.cmd.Process.Kill())
}

func (h *osHandle) Wait() error {
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return errors.Errorf("process %d exited with %s", h.Pid(), exitErr.ProcessState)
	}
	return err
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
