package procutil

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Communicate drives a poll-based bidirectional exchange with a process
// spawned with SpawnOptions.Pipe (spec.md §4.12): whenever the child's
// stdin is writable, onWritable is called to supply the next chunk (it
// returns eof once there is nothing left to send, at which point stdin is
// closed so the child observes EOF); the child's stdout is drained as it
// becomes readable until the child closes it. Communicate returns once both
// streams are fully drained and the child has exited.
func (p *SpawnedProcess) Communicate(onWritable func(buf []byte) (n int, eof bool)) (int, error) {
	if p.stdin == nil || p.stdout == nil {
		return 0, ederrors.NewInvalidArgument("communicate: process was not spawned with Pipe", nil)
	}
	if err := p.stdin.SetBlocking(false); err != nil {
		return 0, err
	}
	if err := p.stdout.SetBlocking(false); err != nil {
		return 0, err
	}

	stdinFd := int32(p.stdin.Fd())
	stdoutFd := int32(p.stdout.Fd())
	stdinOpen := true
	stdoutOpen := true

	scratch := make([]byte, 32*1024)
	drain := make([]byte, 32*1024)
	var pending []byte

	for stdinOpen || stdoutOpen {
		var fds []unix.PollFd
		stdinIdx, stdoutIdx := -1, -1
		if stdinOpen {
			stdinIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: stdinFd, Events: unix.POLLOUT})
		}
		if stdoutOpen {
			stdoutIdx = len(fds)
			fds = append(fds, unix.PollFd{Fd: stdoutFd, Events: unix.POLLIN})
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, ederrors.NewIoError("communicate: poll", err)
		}

		if stdinIdx >= 0 && fds[stdinIdx].Revents != 0 {
			if len(pending) == 0 {
				n, eof := onWritable(scratch)
				pending = scratch[:n]
				if n == 0 && eof {
					p.stdin.Close()
					stdinOpen = false
				}
			}
			if stdinOpen && len(pending) > 0 {
				n, err := p.stdin.Write(pending)
				pending = pending[n:]
				if err != nil && !isWouldBlock(err) {
					p.stdin.Close()
					stdinOpen = false
				}
			}
		}

		if stdoutIdx >= 0 && fds[stdoutIdx].Revents != 0 {
			n, err := p.stdout.Read(drain)
			if n == 0 || (err != nil && !isWouldBlock(err)) {
				stdoutOpen = false
			}
		}
	}

	return p.Wait()
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
