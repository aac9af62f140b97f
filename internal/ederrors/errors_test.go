package ederrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUT_ER_01_01_NewNotFound_IsNotFound(t *testing.T) {
	err := NewNotFound("object missing", nil)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsIoError(err))
}

func TestUT_ER_01_02_Wrap_PreservesKind(t *testing.T) {
	base := NewVersionMismatch("schema drift", nil)
	wrapped := Wrap(base, "opening table")
	require.Error(t, wrapped)
	assert.True(t, IsVersionMismatch(wrapped))
	assert.Contains(t, wrapped.Error(), "opening table")
}

func TestUT_ER_01_03_Wrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestUT_ER_02_01_RemoteTypeOf_ResetRepoError(t *testing.T) {
	err := NewRemoteError("ResetRepoError", "helper reset its repo")
	assert.Equal(t, "ResetRepoError", RemoteTypeOf(err))
	assert.True(t, Is(RemoteError, err))
}

func TestUT_ER_02_02_RemoteTypeOf_NonRemoteIsEmpty(t *testing.T) {
	assert.Equal(t, "", RemoteTypeOf(NewNotFound("x", nil)))
}

func TestUT_ER_03_01_Cause_UnwrapsWrappedChain(t *testing.T) {
	base := NewIoError("disk full", nil)
	wrapped := Wrapf(base, "writing %s", "blob")
	assert.Equal(t, base, Cause(wrapped))
}
