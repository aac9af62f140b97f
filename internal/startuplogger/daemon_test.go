package startuplogger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (*os.File, *os.File, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err == nil {
		t.Cleanup(func() { _ = w.Close() })
	}
	return r, w, err
}

func TestUT_SL_04_01_Daemonize_ChildReportsSuccessByte(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "edenfs.log")

	// fd 3 is the handshake pipe write end (ExtraFiles numbering); write
	// a single success byte and exit cleanly.
	code, err := Daemonize(DaemonizeOptions{
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "printf '\\000' >&3"},
		LogPath:    logPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestUT_SL_04_02_Daemonize_ChildReportsFailureByte(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "edenfs.log")

	code, err := Daemonize(DaemonizeOptions{
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "printf '\\005' >&3"},
		LogPath:    logPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, code)
}

func TestUT_SL_04_03_Daemonize_ChildDiesSilently_ReturnsExSoftware(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "edenfs.log")

	code, err := Daemonize(DaemonizeOptions{
		BinaryPath:      "/bin/sh",
		Args:            []string{"-c", "exit 3"},
		LogPath:         logPath,
		WaitpidRetries:  20,
		WaitpidInterval: 10 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, ExSoftware, code)
}

func TestUT_SL_05_01_DaemonLogger_Success_WritesZeroByteAndKeepsRunning(t *testing.T) {
	r, w, err := pipePair(t)
	require.NoError(t, err)
	defer r.Close()

	d := &DaemonLogger{base: base{pid: 1, sessionID: 1}, logPath: "/tmp/edenfs.log", pipe: w}
	d.Success(2.0)

	buf := make([]byte, 1)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0), buf[0])
}

func TestUT_SL_05_02_DaemonLogger_ExitUnsuccessfully_WritesCodeByteAndExits(t *testing.T) {
	r, w, err := pipePair(t)
	require.NoError(t, err)
	defer r.Close()
	code := withCapturedExit(t)

	d := &DaemonLogger{base: base{pid: 1, sessionID: 1}, logPath: "/tmp/edenfs.log", pipe: w}
	d.ExitUnsuccessfully(12, "failed to mount store")

	buf := make([]byte, 1)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(12), buf[0])
	assert.Equal(t, 12, *code)
}
