// Package procutil implements the process spawn and file-descriptor
// primitives shared by the supervisor and the HgImporter subprocess
// (spec.md §4.12): inheriting numbered descriptors into a child, waiting
// with bounded exponential backoff, and terminate/kill escalation. POSIX
// only, following the rest of this codebase's reliance on
// golang.org/x/sys/unix rather than a cross-platform abstraction layer.
package procutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// SpawnOptions configures a child process.
type SpawnOptions struct {
	Path string
	Args []string
	Dir  string
	// Env, when non-nil, replaces the inherited environment entirely.
	Env []string
	// ExtraFiles are inherited into the child starting at fd 3, matching
	// the numbered-descriptor inheritance os/exec already exposes.
	ExtraFiles []*os.File
	Stdin      *os.File
	Stdout     *os.File
	Stderr     *os.File
	// Pipe requests that stdin/stdout be wired through a pair of OS pipes
	// instead of opts.Stdin/Stdout, so the returned SpawnedProcess can be
	// driven with Communicate. Mutually exclusive with Stdin/Stdout.
	Pipe bool
	// Setsid calls setsid() in the child before exec, detaching it into its
	// own session so SIGINT delivered to a controlling terminal's
	// foreground process group doesn't also hit the child directly on top
	// of whatever the parent forwards.
	Setsid bool
}

// SpawnedProcess wraps a running child process. It exclusively owns the
// files handed to it via ExtraFiles/Stdin/Stdout/Stderr: Wait (in any of
// its forms) closes them once the child has been reaped.
type SpawnedProcess struct {
	cmd   *exec.Cmd
	owned []*os.File

	// stdin/stdout are the parent-side ends of the pipes created for
	// SpawnOptions.Pipe, consumed by Communicate. Nil when Pipe was false.
	stdin  *FileDescriptor
	stdout *FileDescriptor
}

// Spawn starts a child process per opts.
func Spawn(opts SpawnOptions) (*SpawnedProcess, error) {
	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.ExtraFiles = opts.ExtraFiles

	var childStdin, childStdout *os.File
	var parentStdin, parentStdout *FileDescriptor

	if opts.Pipe {
		childRead, parentWrite, err := os.Pipe()
		if err != nil {
			return nil, ederrors.NewIoError("spawn: create stdin pipe", err)
		}
		childStdin, parentStdin = childRead, NewFileDescriptor(parentWrite)

		parentRead, childWrite, err := os.Pipe()
		if err != nil {
			childRead.Close()
			parentWrite.Close()
			return nil, ederrors.NewIoError("spawn: create stdout pipe", err)
		}
		childStdout, parentStdout = childWrite, NewFileDescriptor(parentRead)

		cmd.Stdin = childStdin
		cmd.Stdout = childStdout
	} else {
		if opts.Stdin != nil {
			cmd.Stdin = opts.Stdin
		}
		if opts.Stdout != nil {
			cmd.Stdout = opts.Stdout
		}
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}
	if opts.Setsid {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	owned := append([]*os.File(nil), opts.ExtraFiles...)
	if !opts.Pipe && opts.Stdin != nil {
		owned = append(owned, opts.Stdin)
	}
	if !opts.Pipe && opts.Stdout != nil {
		owned = append(owned, opts.Stdout)
	}
	if opts.Stderr != nil {
		owned = append(owned, opts.Stderr)
	}

	if err := cmd.Start(); err != nil {
		if childStdin != nil {
			childStdin.Close()
			parentStdin.Close()
			childStdout.Close()
			parentStdout.Close()
		}
		return nil, ederrors.NewIoError(fmt.Sprintf("spawn %s", opts.Path), err)
	}

	// The child has its own copy of the pipe fds post-fork/exec; the parent
	// only needs its own ends.
	if opts.Pipe {
		childStdin.Close()
		childStdout.Close()
	}

	return &SpawnedProcess{cmd: cmd, owned: owned, stdin: parentStdin, stdout: parentStdout}, nil
}

// Pid returns the child's process id.
func (p *SpawnedProcess) Pid() int { return p.cmd.Process.Pid }

func (p *SpawnedProcess) closeOwned() {
	for _, f := range p.owned {
		_ = f.Close()
	}
	p.owned = nil
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.stdout != nil {
		_ = p.stdout.Close()
	}
}

// Wait blocks until the child exits, closing inherited FDs afterward.
func (p *SpawnedProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.closeOwned()
	status := exitStatus(p.cmd, err)
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return status, ederrors.NewIoError("wait for child process", err)
		}
	}
	return status, nil
}

func exitStatus(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState == nil {
		return -1
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ws.ExitStatus()
	}
	if waitErr == nil {
		return 0
	}
	return -1
}

// WaitTimeout waits for the child with a bounded exponential backoff poll,
// matching spec.md §4.12's wait_timeout(dur): this is a non-blocking poll
// loop rather than cmd.Wait() because the caller needs to give up and keep
// the child running if it doesn't exit in time.
func (p *SpawnedProcess) WaitTimeout(ctx context.Context, timeout time.Duration) (int, bool, error) {
	deadline := time.Now().Add(timeout)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = timeout

	for {
		exited, status, err := p.tryWait()
		if err != nil {
			return 0, false, err
		}
		if exited {
			return status, true, nil
		}
		if time.Now().After(deadline) {
			return 0, false, nil
		}
		select {
		case <-ctx.Done():
			return 0, false, ederrors.NewCancelled("wait_timeout cancelled")
		case <-time.After(b.NextBackOff()):
		}
	}
}

// tryWait performs a non-blocking WNOHANG waitpid, distinct from the
// blocking Wait() above.
func (p *SpawnedProcess) tryWait() (exited bool, status int, err error) {
	exited, status, err = TryWaitPid(p.cmd.Process.Pid)
	if exited {
		p.closeOwned()
	}
	return exited, status, err
}

// TryWait performs a single non-blocking poll for the child's exit,
// closing inherited FDs once it has been reaped. Unlike WaitTimeout it
// never sleeps; callers that need to poll repeatedly drive their own
// loop (the supervisor does this alongside its log-pipe reads).
func (p *SpawnedProcess) TryWait() (exited bool, status int, err error) {
	return p.tryWait()
}

// TryWaitPid performs a single non-blocking WNOHANG waitpid on pid,
// exposed standalone for callers reaping a process they did not spawn via
// Spawn (e.g. a daemon pid inherited across a supervisor self-restart,
// where the OS parent/child relationship survives an exec but no
// corresponding *exec.Cmd exists to call cmd.Wait on).
func TryWaitPid(pid int) (exited bool, status int, err error) {
	var ws syscall.WaitStatus
	got, werr := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	if werr != nil {
		return false, 0, ederrors.NewIoError("wait4", werr)
	}
	if got == 0 {
		return false, 0, nil
	}
	if ws.Signaled() {
		return true, 128 + int(ws.Signal()), nil
	}
	return true, ws.ExitStatus(), nil
}

// Terminate sends SIGTERM.
func (p *SpawnedProcess) Terminate() error {
	return p.SendSignal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *SpawnedProcess) Kill() error {
	return p.SendSignal(syscall.SIGKILL)
}

// SendSignal delivers signo to the child.
func (p *SpawnedProcess) SendSignal(signo syscall.Signal) error {
	if err := p.cmd.Process.Signal(signo); err != nil {
		return ederrors.NewIoError("send signal to child process", err)
	}
	return nil
}

// WaitOrTerminateOrKill waits up to waitDur, then escalates to SIGTERM and
// waits up to sigtermDur, then SIGKILL and blocks until reaped.
func (p *SpawnedProcess) WaitOrTerminateOrKill(ctx context.Context, waitDur, sigtermDur time.Duration) (int, error) {
	if status, exited, err := p.WaitTimeout(ctx, waitDur); err != nil {
		return 0, err
	} else if exited {
		return status, nil
	}

	if err := p.Terminate(); err != nil {
		return 0, err
	}
	if status, exited, err := p.WaitTimeout(ctx, sigtermDur); err != nil {
		return 0, err
	} else if exited {
		return status, nil
	}

	if err := p.Kill(); err != nil {
		return 0, err
	}
	return p.Wait()
}
