package startuplogger

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/procutil"
)

// DaemonLogger is the child-side Logger for daemon mode: regular
// messages go to the already-redirected stdout/stderr via edenlog, while
// Success/ExitUnsuccessfully additionally report a single result byte
// back to the waiting parent over a pipe (spec.md §4.11).
type DaemonLogger struct {
	base
	logPath string
	pipe    *os.File
}

// NewDaemonLogger wraps the write end of the handshake pipe inherited at
// pipeFd (conventionally fd 3, the first ExtraFiles slot) and the log
// path the parent redirected our stdout/stderr to.
func NewDaemonLogger(pipeFd uintptr, logPath string, pid int, sessionID int64) *DaemonLogger {
	return &DaemonLogger{
		base:    base{pid: pid, sessionID: sessionID},
		logPath: logPath,
		pipe:    os.NewFile(pipeFd, "startup-logger-pipe"),
	}
}

func (d *DaemonLogger) Log(msg string)  { edenlog.Info().Msg(msg) }
func (d *DaemonLogger) Warn(msg string) { edenlog.Warn().Msg(msg) }

// Success reports startup completion to the log and writes the success
// byte (0) to the parent; the daemon keeps running afterward.
func (d *DaemonLogger) Success(startupSeconds float64) {
	edenlog.Info().Msg(d.successLine(startupSeconds))
	edenlog.Info().Msgf("Logs available at %s", d.logPath)
	d.writeResult(0)
}

// ExitUnsuccessfully reports the failure, writes the failing code to the
// parent, and exits this process with code.
func (d *DaemonLogger) ExitUnsuccessfully(code int, msg string) {
	edenlog.Error().Msg(msg)
	d.writeResult(byte(code))
	osExit(code)
}

func (d *DaemonLogger) writeResult(code byte) {
	if d.pipe == nil {
		return
	}
	_, _ = d.pipe.Write([]byte{code})
	_ = d.pipe.Close()
	d.pipe = nil
}

// daemonPipeChildFd is the fd a handshake pipe's write end lands on in
// the child, per procutil.Spawn's ExtraFiles numbering (starts at 3).
const daemonPipeChildFd = 3

// DaemonizeOptions configures the parent side of the daemonisation
// handshake.
type DaemonizeOptions struct {
	BinaryPath string
	// Args are the child's arguments, excluding the startup-logger flags
	// Daemonize appends itself.
	Args    []string
	LogPath string

	WaitpidRetries  int
	WaitpidInterval time.Duration
}

func (o DaemonizeOptions) waitpidRetries() int {
	if o.WaitpidRetries <= 0 {
		return 50
	}
	return o.WaitpidRetries
}

func (o DaemonizeOptions) waitpidInterval() time.Duration {
	if o.WaitpidInterval <= 0 {
		return 100 * time.Millisecond
	}
	return o.WaitpidInterval
}

// Daemonize spawns a child copy of this binary with --startupLoggerFd and
// --logPath, redirects the child's stdout/stderr to the log, and blocks
// until the child reports its startup result (spec.md §4.11). It returns
// the exit code the parent process should itself exit with.
func Daemonize(opts DaemonizeOptions) (int, error) {
	r, w, err := procutil.Pipe()
	if err != nil {
		return ExSoftware, err
	}

	logFile, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return ExSoftware, ederrors.NewIoError("open log file for daemon child", err)
	}

	args := append(append([]string(nil), opts.Args...),
		"--startupLoggerFd", fmt.Sprintf("%d", daemonPipeChildFd),
		"--logPath", opts.LogPath)

	proc, err := procutil.Spawn(procutil.SpawnOptions{
		Path:       opts.BinaryPath,
		Args:       args,
		ExtraFiles: []*os.File{w.File()},
		Stdout:     logFile,
		Stderr:     logFile,
		// setsid under a controlling TTY so Ctrl-C at the terminal
		// doesn't double-deliver SIGINT to both us and the daemonised
		// child.
		Setsid: isatty.IsTerminal(os.Stdin.Fd()),
	})
	_ = logFile.Close()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return ExSoftware, err
	}
	// Our copy of the write end must close so r observes EOF if the
	// child never writes a result byte.
	_ = w.Close()
	defer r.Close()

	buf := make([]byte, 1)
	n, readErr := r.Read(buf)
	if readErr == nil && n == 1 {
		return int(buf[0]), nil
	}

	return waitForSilentExit(proc, opts)
}

// waitForSilentExit handles the case where the child's pipe closed
// without a result byte: poll waitpid with bounded retries to learn why.
func waitForSilentExit(proc *procutil.SpawnedProcess, opts DaemonizeOptions) (int, error) {
	for i := 0; i < opts.waitpidRetries(); i++ {
		if exited, status, err := proc.TryWait(); err == nil && exited {
			if status >= 128 {
				return ExSoftware, fmt.Errorf("child exited via signal %d before reporting startup result", status-128)
			}
			return ExSoftware, fmt.Errorf("child exited silently with status %d before reporting startup result", status)
		}
		time.Sleep(opts.waitpidInterval())
	}
	return ExSoftware, fmt.Errorf("timed out waiting for child startup result")
}
