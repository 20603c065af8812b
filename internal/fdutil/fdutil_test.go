package fdutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (int, int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestSetNonblock(t *testing.T) {
	r, _ := newPipe(t)

	require.NoError(t, SetNonblock(r))
	flags, err := unix.FcntlInt(uintptr(r), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	// Idempotent.
	require.NoError(t, SetNonblock(r))
}

func TestSetCloexec(t *testing.T) {
	_, w := newPipe(t)

	require.NoError(t, SetCloexec(w))
	flags, err := unix.FcntlInt(uintptr(w), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)

	require.NoError(t, SetCloexec(w))
}

func TestPreservesExistingFlags(t *testing.T) {
	r, _ := newPipe(t)

	before, err := unix.FcntlInt(uintptr(r), unix.F_GETFL, 0)
	require.NoError(t, err)

	require.NoError(t, SetNonblock(r))
	after, err := unix.FcntlInt(uintptr(r), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.Equal(t, before|unix.O_NONBLOCK, after)
}

func TestBadFd(t *testing.T) {
	assert.ErrorIs(t, SetNonblock(-1), unix.EBADF)
	assert.ErrorIs(t, SetCloexec(-1), unix.EBADF)
}
