// Package supervisor implements the single-threaded-event-loop Monitor
// that manages the lifetime of the main daemon process (spec.md §4.9):
// acquiring the exclusive monitor.lock, constructing the rotating log,
// choosing or spawning the daemon instance, polling its liveness, and
// reacting to SIGCHLD/SIGHUP/SIGINT/SIGTERM.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mattn/go-isatty"

	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/logfile"
	"github.com/edenfs-go/edencore/internal/procutil"
)

// State is the Monitor's own lifecycle, distinct from the daemon's.
type State int

const (
	Starting State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "Running"
	}
	return "Starting"
}

// Config collects the Monitor CLI flags of spec.md §6.
type Config struct {
	EdenfsPath      string
	EdenfsctlPath   string
	CatExePath      string
	PollInterval    time.Duration
	StateDir        string
	DaemonArgs      []string
	LogMaxSizeBytes int64
	LogMaxRotated   int

	Restart         bool
	ChildEdenFSPid  int
	ChildEdenFSPipe int

	// FinalPipeTimeout bounds how long the Monitor waits for a child's log
	// pipe to close after the pipe's read end has already EOF'd but the
	// process has not yet been reaped (spec.md §4.9, "≈3s").
	FinalPipeTimeout time.Duration
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 5 * time.Second
	}
	return c.PollInterval
}

func (c Config) finalPipeTimeout() time.Duration {
	if c.FinalPipeTimeout <= 0 {
		return 3 * time.Second
	}
	return c.FinalPipeTimeout
}

// Monitor is the supervisor's event loop.
type Monitor struct {
	cfg    Config
	client DaemonClient

	mu       sync.Mutex
	state    State
	lock     *MonitorLock
	log      *logfile.LogFile
	existing *ExistingInstance
	spawned  *SpawnedInstance

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Monitor. Start must be called to acquire the lock,
// open the log, and pick an instance.
func New(cfg Config, client DaemonClient) *Monitor {
	return &Monitor{cfg: cfg, client: client, state: Starting, stop: make(chan struct{})}
}

// Start acquires monitor.lock, opens the rotating log, selects a daemon
// instance per spec.md §4.9, and begins the polling loop.
func (m *Monitor) Start(ctx context.Context) error {
	lock, err := AcquireMonitorLock(m.cfg.StateDir)
	if err != nil {
		return err
	}
	m.lock = lock

	logPath := filepath.Join(m.cfg.StateDir, "logs", "edenfs.log")
	lf, err := logfile.Open(logPath, m.cfg.LogMaxSizeBytes, m.cfg.LogMaxRotated, logfile.TimestampSuffixStrategy{})
	if err != nil {
		_ = m.lock.Release()
		return err
	}
	m.log = lf

	if err := m.pickInstance(ctx); err != nil {
		_ = m.log.Close()
		_ = m.lock.Release()
		return err
	}

	m.wg.Add(1)
	go m.runLoop(ctx)
	return nil
}

// pickInstance implements the three-way selection of spec.md §4.9.
func (m *Monitor) pickInstance(ctx context.Context) error {
	if m.cfg.Restart && m.cfg.ChildEdenFSPid > 0 {
		pipeFile := os.NewFile(uintptr(m.cfg.ChildEdenFSPipe), "inherited-log-pipe")
		m.spawned = NewInheritedSpawnedInstance(m.cfg.ChildEdenFSPid, procutil.NewFileDescriptor(pipeFile))
		edenlog.Info().Int("pid", m.cfg.ChildEdenFSPid).Msg("attached to daemon inherited across self-restart")
		return nil
	}

	if m.client != nil {
		if pid, err := m.client.GetPid(ctx); err == nil {
			m.existing = NewExistingInstance(pid)
			edenlog.Info().Int("pid", pid).Msg("attached to already-running daemon")
			return nil
		}
	}

	return m.spawnFresh()
}

func (m *Monitor) spawnFresh() error {
	logR, logW, err := procutil.Pipe()
	if err != nil {
		return err
	}

	proc, err := procutil.Spawn(procutil.SpawnOptions{
		Path:   m.cfg.EdenfsPath,
		Args:   m.cfg.DaemonArgs,
		Stdout: logW.File(),
		Stderr: logW.File(),
		// setsid under a controlling TTY so Ctrl-C delivered to the
		// terminal's foreground process group doesn't also reach the
		// daemon directly, on top of whatever we forward ourselves.
		Setsid: isatty.IsTerminal(os.Stdin.Fd()),
	})
	if err != nil {
		_ = logR.Close()
		_ = logW.Close()
		return ederrors.NewIoError("spawn daemon", err)
	}
	// The write end now lives in the child; our copy must be closed so
	// logR observes EOF once the child's copy closes too.
	_ = logW.Close()

	if err := logR.SetBlocking(false); err != nil {
		return err
	}

	m.spawned = NewSpawnedInstance(proc, logR)
	edenlog.Info().Int("pid", proc.Pid()).Str("path", m.cfg.EdenfsPath).Msg("spawned daemon")
	return nil
}

// Instance returns the currently-managed instance, or nil if none has
// been selected yet.
func (m *Monitor) Instance() Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existing != nil {
		return m.existing
	}
	if m.spawned != nil {
		return m.spawned
	}
	return nil
}

// State returns the Monitor's current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setRunning() {
	m.mu.Lock()
	m.state = Running
	m.mu.Unlock()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		edenlog.Warn().Err(err).Msg("SdNotify(READY=1) failed")
	} else if ok {
		edenlog.Info().Msg("notified init system: READY=1")
	}
}

// runLoop is the Monitor's event loop: for an Existing instance, poll
// liveness; for a Spawned one, forward log-pipe bytes and poll
// get_status until Running, then keep reaping/forwarding until exit.
func (m *Monitor) runLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.pollInterval())
	defer ticker.Stop()

	buf := make([]byte, 64*1024)
	var pipeClosedAt time.Time

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			existing := m.existing
			spawned := m.spawned
			state := m.state
			m.mu.Unlock()

			if existing != nil {
				if !existing.IsAlive() {
					edenlog.Warn().Int("pid", existing.Pid()).Msg("existing daemon is no longer alive")
					return
				}
				continue
			}
			if spawned == nil {
				continue
			}

			for {
				n, ok, err := spawned.ReadLogChunk(buf)
				if n > 0 {
					if _, werr := m.log.Write(buf[:n]); werr != nil {
						edenlog.Error().Err(werr).Msg("failed writing daemon output to log")
					}
				}
				if err != nil && !errors.Is(err, syscall.EAGAIN) {
					if pipeClosedAt.IsZero() {
						pipeClosedAt = time.Now()
					}
					break
				}
				if !ok {
					break
				}
			}

			if state == Starting && m.client != nil {
				if status, err := m.client.GetStatus(ctx); err == nil && status == StatusAlive {
					m.setRunning()
				}
			}

			if exited, status, err := spawned.TryReap(); err == nil && exited {
				edenlog.Info().Int("pid", spawned.Pid()).Int("status", status).Msg("daemon exited")
				return
			}

			if !pipeClosedAt.IsZero() && time.Since(pipeClosedAt) > m.cfg.finalPipeTimeout() {
				m.drainWithCatFallback(spawned)
				return
			}
		}
	}
}

// drainWithCatFallback implements spec.md §4.9's handling for a log pipe
// that closed before the process was reaped: spawn a small cat-equivalent
// to copy any remaining bytes and detach, rather than blocking the
// Monitor's loop on a process that refuses to exit promptly.
func (m *Monitor) drainWithCatFallback(spawned *SpawnedInstance) {
	catPath := m.cfg.CatExePath
	if catPath == "" {
		catPath = "/bin/cat"
	}
	logFile, err := os.OpenFile(filepath.Join(m.cfg.StateDir, "logs", "edenfs.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		edenlog.Error().Err(err).Msg("could not open log file for cat fallback")
		return
	}
	_, err = procutil.Spawn(procutil.SpawnOptions{
		Path:   catPath,
		Stdin:  spawned.LogPipe().File(),
		Stdout: logFile,
	})
	if err != nil {
		edenlog.Error().Err(err).Msg("failed to spawn cat fallback for closing log pipe")
	}
	edenlog.Warn().Int("pid", spawned.Pid()).Msg("daemon log pipe closed without reaping; detached cat fallback")
}

// HandleSigchld re-checks liveness of the current instance immediately
// rather than waiting for the next poll tick.
func (m *Monitor) HandleSigchld() {
	m.mu.Lock()
	spawned := m.spawned
	m.mu.Unlock()
	if spawned == nil {
		return
	}
	if exited, status, err := spawned.TryReap(); err == nil && exited {
		edenlog.Info().Int("pid", spawned.Pid()).Int("status", status).Msg("daemon reaped on SIGCHLD")
	}
}

// HandleSigintTerm forwards sig to the managed daemon without exiting the
// supervisor itself.
func (m *Monitor) HandleSigintTerm(sig syscall.Signal) {
	inst := m.Instance()
	if inst == nil {
		return
	}
	if err := syscall.Kill(inst.Pid(), sig); err != nil {
		edenlog.Warn().Err(err).Int("pid", inst.Pid()).Msg("failed to forward signal to daemon")
	}
}

// HandleSighup performs the self-restart of spec.md §4.9: re-exec this
// binary in place (syscall.Exec replaces the process image but preserves
// pid and the OS parent/child relationship to the daemon, so no fd
// passing between processes is required), passing the current daemon's
// pid and log-pipe fd forward. A no-op while Starting.
func (m *Monitor) HandleSighup(argv0 string, originalArgs []string) error {
	if m.State() == Starting {
		return nil
	}

	m.mu.Lock()
	spawned := m.spawned
	m.mu.Unlock()
	if spawned == nil {
		return ederrors.NewInvalidArgument("self-restart requires a spawned or inherited daemon instance", nil)
	}

	pipeFd := spawned.LogPipe().Fd()
	if err := spawned.LogPipe().SetCloseOnExec(false); err != nil {
		return err
	}

	args := truncateAtRestartFlag(originalArgs)
	args = append(args, "--restart",
		"--childEdenFSPid", fmt.Sprintf("%d", spawned.Pid()),
		"--childEdenFSPipe", fmt.Sprintf("%d", pipeFd))

	argv := append([]string{argv0}, args...)
	err := syscall.Exec(argv0, argv, os.Environ())
	// Reaching here means Exec failed; restore close-on-exec so the pipe
	// doesn't leak into any future child of this still-running process.
	if restoreErr := spawned.LogPipe().SetCloseOnExec(true); restoreErr != nil {
		edenlog.Error().Err(restoreErr).Msg("failed to restore close-on-exec after failed self-restart")
	}
	return ederrors.NewIoError("self-restart exec", err)
}

func truncateAtRestartFlag(args []string) []string {
	for i, a := range args {
		if a == "--restart" {
			return append([]string(nil), args[:i]...)
		}
	}
	return append([]string(nil), args...)
}

// Shutdown stops the polling loop and releases the lock and log file. It
// does not signal the managed daemon.
func (m *Monitor) Shutdown() {
	close(m.stop)
	m.wg.Wait()

	m.mu.Lock()
	if m.spawned != nil {
		m.spawned.Close()
	}
	m.mu.Unlock()

	if m.log != nil {
		_ = m.log.Close()
	}
	if m.lock != nil {
		_ = m.lock.Release()
	}
}
