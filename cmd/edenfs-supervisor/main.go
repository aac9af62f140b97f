// edenfs-supervisor is the Monitor entrypoint of spec.md §4.9: it manages
// the lifetime of a single edenfs daemon instance, restarting and
// reattaching to it across supervisor self-restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/edenfs-go/edencore/internal/edenconfig"
	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/supervisor"
)

func usage() {
	fmt.Fprintf(os.Stderr, `edenfs-supervisor - manages the lifetime of the edenfs daemon.

Usage: edenfs-supervisor [options]

Options:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	configPath := flag.String("config", edenconfig.DefaultConfigPath(), "path to the supervisor's YAML config")
	edenfsPath := flag.String("edenfs", "", "executable path for spawn")
	edenfsctlPath := flag.String("edenfsctl", "", "CLI companion path")
	catExePath := flag.String("cat_exe", "", "fallback log-forwarder binary")
	pollIntervalMs := flag.Int("edenfs_poll_interval_ms", 0, "poll period for existing-daemon liveness")
	restart := flag.Bool("restart", false, "internal: performing in-place self-restart")
	childPid := flag.Int("childEdenFSPid", 0, "internal: take over existing child on restart")
	childPipe := flag.Int("childEdenFSPipe", -1, "internal: log pipe inherited across restart")
	flag.Parse()

	cfg := edenconfig.LoadConfig(*configPath)
	if *edenfsPath != "" {
		cfg.EdenfsPath = *edenfsPath
	}
	if *edenfsctlPath != "" {
		cfg.EdenfsctlPath = *edenfsctlPath
	}
	if *catExePath != "" {
		cfg.CatExePath = *catExePath
	}
	if *pollIntervalMs > 0 {
		cfg.PollIntervalMs = *pollIntervalMs
	}

	level, err := edenlog.ParseLevel(cfg.LogLevel)
	if err == nil {
		edenlog.SetGlobalLevel(level)
	}

	monitorCfg := supervisor.Config{
		EdenfsPath:      cfg.EdenfsPath,
		EdenfsctlPath:   cfg.EdenfsctlPath,
		CatExePath:      cfg.CatExePath,
		PollInterval:    time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		StateDir:        cfg.StateDir,
		LogMaxSizeBytes: cfg.LogMaxSizeBytes,
		LogMaxRotated:   cfg.LogMaxRotatedFiles,
		Restart:         *restart,
		ChildEdenFSPid:  *childPid,
		ChildEdenFSPipe: *childPipe,
	}

	mon := supervisor.New(monitorCfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		edenlog.Fatal().Err(err).Msg("failed to start supervisor")
	}
	edenlog.Info().Str("state", mon.State().String()).Msg("edenfs-supervisor started")

	// SIGINT/SIGTERM only forward to the managed daemon; they never stop
	// the supervisor itself (spec.md §4.9), so this call never returns in
	// normal operation.
	runSignalLoop(mon, os.Args[0], os.Args[1:])
}

func runSignalLoop(mon *supervisor.Monitor, argv0 string, args []string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGCHLD, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigChan {
		switch sig {
		case syscall.SIGCHLD:
			mon.HandleSigchld()
		case syscall.SIGHUP:
			if err := mon.HandleSighup(argv0, args); err != nil {
				edenlog.Error().Err(err).Msg("self-restart failed")
			}
		case syscall.SIGINT, syscall.SIGTERM:
			mon.HandleSigintTerm(sig.(syscall.Signal))
		}
	}
}
