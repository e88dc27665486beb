package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// CommandSpec is a fully resolved command: an argument vector plus the
// environment it runs with. Commands are never composed as shell
// strings locally; the SSH backend quotes each argument individually.
type CommandSpec struct {
	Argv []string
	Dir  string
	Env  map[string]string
}

func (cs CommandSpec) Tool() string {
	if len(cs.Argv) == 0 {
		return ""
	}
	return cs.Argv[0]
}

type OutputFunc func(line string)

// Execer runs a single command to completion and returns its exit
// code. A non-nil error means the command could not be run at all;
// a non-zero exit code is reported through the return value.
type Execer interface {
	Exec(ctx context.Context, spec CommandSpec, out OutputFunc) (int, error)
}

// LocalExecer runs commands as subprocesses on the server host.
type LocalExecer struct{}

func (le *LocalExecer) Exec(ctx context.Context, spec CommandSpec, out OutputFunc) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, err
	}

	if err := cmd.Start(); err != nil {
		return 0, errors.Join(fmt.Errorf("err starting command %s", spec.Tool()), err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stdout, out)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stderr, out)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, err
	}
	return 0, nil
}

// SSHExecer runs commands on a remote agent over an established SSH
// connection, one session per command.
type SSHExecer struct {
	Client *ssh.Client
}

func (se *SSHExecer) Exec(ctx context.Context, spec CommandSpec, out OutputFunc) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}
	sess, err := se.Client.NewSession()
	if err != nil {
		return 0, fmt.Errorf("err creating new session: %+w", err)
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return 0, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return 0, err
	}

	cmd := remoteCommand(spec)
	if err := sess.Start(cmd); err != nil {
		return 0, errors.Join(fmt.Errorf("err starting command %s", spec.Tool()), err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stdout, out)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stderr, out)
	}()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- sess.Wait()
	}()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGINT)
		return 0, ctx.Err()
	case err := <-doneCh:
		wg.Wait()
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitStatus(), nil
			}
			return 0, err
		}
		return 0, nil
	}
}

// remoteCommand renders a CommandSpec as a remote shell command with
// each argument and environment value single-quoted, so that secret
// values and user input never splice into the command structure.
func remoteCommand(spec CommandSpec) string {
	var sb strings.Builder
	if spec.Dir != "" {
		sb.WriteString("cd " + shellQuote(spec.Dir) + " && ")
	}
	for k, v := range spec.Env {
		sb.WriteString(k + "=" + shellQuote(v) + " ")
	}
	for i, arg := range spec.Argv {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(shellQuote(arg))
	}
	return sb.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func scanLines(r io.Reader, out OutputFunc) {
	if out == nil {
		io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out(scanner.Text() + "\n")
	}
}
