package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	pid        int
	pidErr     error
	status     Status
	statusErr  error
	getPidCall int32
}

func (f *fakeClient) GetPid(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.getPidCall, 1)
	return f.pid, f.pidErr
}

func (f *fakeClient) GetStatus(ctx context.Context) (Status, error) {
	return f.status, f.statusErr
}

func TestUT_SV_04_01_PickInstance_AttachesToExistingViaRPC(t *testing.T) {
	client := &fakeClient{pid: 4242}
	m := New(Config{StateDir: t.TempDir()}, client)

	require.NoError(t, m.pickInstance(context.Background()))
	inst := m.Instance()
	require.NotNil(t, inst)
	assert.Equal(t, 4242, inst.Pid())
}

func TestUT_SV_04_02_PickInstance_AttachesToInheritedChildOnRestart(t *testing.T) {
	rp, wp, err := os.Pipe()
	require.NoError(t, err)
	defer rp.Close()
	defer wp.Close()

	m := New(Config{
		StateDir:        t.TempDir(),
		Restart:         true,
		ChildEdenFSPid:  9999,
		ChildEdenFSPipe: int(rp.Fd()),
	}, nil)

	require.NoError(t, m.pickInstance(context.Background()))
	inst := m.Instance()
	require.NotNil(t, inst)
	assert.Equal(t, 9999, inst.Pid())
}

func TestUT_SV_04_03_PickInstance_SpawnsFreshWhenNoExistingDaemon(t *testing.T) {
	client := &fakeClient{pidErr: assertAnError{}}
	m := New(Config{
		StateDir:   t.TempDir(),
		EdenfsPath: "/bin/sh",
		DaemonArgs: []string{"-c", "echo starting; sleep 5"},
	}, client)

	require.NoError(t, m.pickInstance(context.Background()))
	inst := m.Instance()
	require.NotNil(t, inst)
	assert.Greater(t, inst.Pid(), 0)

	spawned, ok := inst.(*SpawnedInstance)
	require.True(t, ok)
	require.NoError(t, spawned.Terminate())
	_, _, _ = spawned.TryReap()
}

type assertAnError struct{}

func (assertAnError) Error() string { return "no daemon reachable" }

func TestUT_SV_05_01_Start_TransitionsToRunningOnAliveStatus(t *testing.T) {
	stateDir := t.TempDir()
	client := &fakeClient{pidErr: assertAnError{}, status: StatusAlive}

	m := New(Config{
		StateDir:     stateDir,
		EdenfsPath:   "/bin/sh",
		DaemonArgs:   []string{"-c", "echo hi; sleep 5"},
		PollInterval: 20 * time.Millisecond,
	}, client)

	require.NoError(t, m.Start(context.Background()))
	defer func() {
		m.Shutdown()
		inst := m.Instance()
		if spawned, ok := inst.(*SpawnedInstance); ok {
			_ = spawned.Kill()
			_, _, _ = waitReaped(t, spawned)
		}
	}()

	require.Eventually(t, func() bool {
		return m.State() == Running
	}, 2*time.Second, 10*time.Millisecond)

	logPath := filepath.Join(stateDir, "logs", "edenfs.log")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUT_SV_06_01_TruncateAtRestartFlag_DropsPriorRestartArgs(t *testing.T) {
	args := []string{"--edenfs", "/bin/edenfs", "--restart", "--childEdenFSPid", "1", "--childEdenFSPipe", "3"}
	assert.Equal(t, []string{"--edenfs", "/bin/edenfs"}, truncateAtRestartFlag(args))
}

func TestUT_SV_06_02_TruncateAtRestartFlag_NoPriorRestart(t *testing.T) {
	args := []string{"--edenfs", "/bin/edenfs"}
	assert.Equal(t, args, truncateAtRestartFlag(args))
}
