// Package shell implements the archon.exec capability: run one shell
// command with an enforced timeout, returning stdout, stderr, and the exit
// code separately.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/arcaneos/archon-runtime/internal/domain"
	"github.com/arcaneos/archon-runtime/internal/tool"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 600 * time.Second
)

type handlers struct {
	gate           tool.Gate
	defaultTimeout time.Duration
}

// RegisterAll wires archon.exec into the registry. execTimeout of zero
// keeps the built-in default.
func RegisterAll(registry *tool.Registry, gate tool.Gate, execTimeout time.Duration) error {
	if execTimeout <= 0 {
		execTimeout = defaultTimeout
	}
	h := &handlers{gate: gate, defaultTimeout: execTimeout}

	return registry.Register(tool.Spec{
		Name: "archon.exec",
		Help: "Run a command. Args: command, args (optional string list), cwd (optional), " +
			"timeout (optional seconds). With args the command runs directly with that argv and " +
			"no shell interpretation; without args the command string runs through sh -c. " +
			"stdin is disconnected; interactive commands fail. Returns stdout, stderr, and exit code. " +
			"Non-zero exit and timeout are errors; on timeout the whole process tree is killed.",
		Handler: h.exec,
	})
}

func (h *handlers) exec(ctx context.Context, args map[string]any) (any, error) {
	command, err := tool.String(args, "command")
	if err != nil {
		return nil, err
	}
	argv, err := argList(args)
	if err != nil {
		return nil, err
	}
	cwd := tool.StringOr(args, "cwd", "")

	timeout := h.defaultTimeout
	if secs := tool.IntOr(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	// The consent resource is the full command line either way, so the
	// operator sees exactly what would run.
	resource := command
	if len(argv) > 0 {
		resource = command + " " + strings.Join(argv, " ")
	}
	if err := h.gate.Decide(ctx, domain.ActionExec, resource); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Explicit argv bypasses the shell entirely; a bare command string keeps
	// sh -c semantics for pipes and expansion.
	var cmd *exec.Cmd
	if len(argv) > 0 {
		cmd = exec.CommandContext(ctx, command, argv...)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Dir = cwd
	// stdin stays disconnected so interactive commands fail fast with EOF.
	cmd.Stdin = nil
	// Own process group: on timeout the whole tree dies, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if startErr := cmd.Start(); startErr != nil {
		return nil, fmt.Errorf("failed to start command: %w", startErr)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		waitErr = ctx.Err()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("command failed: %w", waitErr)
		}
	}

	if exitCode != 0 {
		return nil, fmt.Errorf("command exited with code %d: %s", exitCode, firstLine(stderr.String()))
	}

	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}

// argList pulls the optional "args" argv out of the request. JSON decoding
// hands lists over as []any.
func argList(args map[string]any) ([]string, error) {
	raw, ok := args["args"]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("args must be a list of strings, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("args[%d] must be a string, got %T", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// killProcessGroup terminates the command's whole process group: SIGTERM
// first, SIGKILL shortly after for anything that ignored it.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
