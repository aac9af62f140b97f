package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUT_SV_01_01_AcquireMonitorLock_WritesPid(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireMonitorLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	data, err := os.ReadFile(filepath.Join(dir, "monitor.lock"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestUT_SV_01_02_AcquireMonitorLock_SecondCallerFailsOnContention(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireMonitorLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = AcquireMonitorLock(dir)
	require.Error(t, err)
}

func TestUT_SV_01_03_AcquireMonitorLock_ReleasedThenReacquirable(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireMonitorLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := AcquireMonitorLock(dir)
	require.NoError(t, err)
	defer lock2.Release()
}
