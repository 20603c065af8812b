package relay_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/testutils"
	"github.com/srg/ptyx/relay"
)

func (s *RelaySuite) TestEchoBothDirections() {
	// Host → child: bytes written to the write endpoint surface on the
	// slave in order.
	s.writeAll(s.hostWrite, []byte("hello\n"))
	s.Equal([]byte("hello\n"), s.readN(s.slave, 6))

	// Child → host: bytes written on the slave surface on the read
	// endpoint in order.
	s.writeAll(s.slave, []byte("world\n"))
	s.Equal([]byte("world\n"), s.readN(s.hostRead, 6))
}

func (s *RelaySuite) TestTrailingOutputAfterHangup() {
	// The child writes and exits before the host reads a single byte.
	s.writeAll(s.slave, []byte("done"))
	s.closeAllSlaves()

	// Draining to EOF must still observe everything.
	s.Require().NoError(s.hostRead.SetReadDeadline(time.Now().Add(ioDeadline)))
	got, err := io.ReadAll(s.hostRead)
	s.Require().NoError(err)
	s.Equal("done", string(got))

	select {
	case err := <-s.exits:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("relay did not deliver its completion notification")
	}
}

func (s *RelaySuite) TestLargeTransferHostToChild() {
	data := patternData(1 << 20)

	go func() {
		s.hostWrite.SetWriteDeadline(time.Now().Add(10 * time.Second))
		s.hostWrite.Write(data)
	}()

	got := s.readN(s.slave, len(data))
	testutils.NewStreamAsserter(s.T()).AssertBytes(got, data)
}

func (s *RelaySuite) TestLargeTransferChildToHost() {
	data := patternData(1 << 20)

	go func() {
		s.slave.SetWriteDeadline(time.Now().Add(10 * time.Second))
		s.slave.Write(data)
	}()

	got := s.readN(s.hostRead, len(data))
	testutils.NewStreamAsserter(s.T()).AssertBytes(got, data)
}

func (s *RelaySuite) TestHostCloseTerminatesRelay() {
	start := time.Now()
	s.Require().NoError(s.hostRead.Close())
	s.Require().NoError(s.hostWrite.Close())
	s.hostRead, s.hostWrite = nil, nil

	select {
	case err := <-s.exits:
		s.NoError(err)
	case <-time.After(2*suitePollTimeout + 500*time.Millisecond):
		s.Fail("relay did not terminate after the host closed both endpoints")
	}
	s.T().Logf("relay wound down in %v", time.Since(start))

	// Exactly once: no second notification may arrive.
	select {
	case <-s.exits:
		s.Fail("completion notification delivered twice")
	case <-time.After(3 * suitePollTimeout):
	}
	s.NoError(s.relay.Err())
}

func (s *RelaySuite) TestIdleRelayStaysUp() {
	// Nothing moves for a while; the relay must neither terminate nor
	// deliver a notification.
	select {
	case <-s.relay.Done():
		s.Fail("idle relay terminated")
	case <-time.After(10 * suitePollTimeout):
	}
	s.Nil(s.relay.Err())
}

func (s *RelaySuite) TestRegistryTracksWorker() {
	r, ok := relay.Lookup(s.relay.MasterFd())
	s.Require().True(ok)
	s.Same(s.relay, r)
	s.NotEmpty(relay.Active())

	s.Require().NoError(s.hostRead.Close())
	s.Require().NoError(s.hostWrite.Close())
	s.hostRead, s.hostWrite = nil, nil
	<-s.relay.Done()

	_, ok = relay.Lookup(s.relay.MasterFd())
	s.False(ok)
}

func TestRelayTestSuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

// TestAttachForeignMaster proves the engine works on a master it did not
// allocate, here one opened through creack/pty.
func TestAttachForeignMaster(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	defer slave.Close()

	// Hand a dup to the relay so creack's file can be closed normally.
	masterFd, err := unix.Dup(int(master.Fd()))
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(masterFd, true))
	require.NoError(t, master.Close())

	exited := make(chan error, 1)
	r, err := relay.Attach(masterFd, &relay.Options{
		PollTimeout: suitePollTimeout,
		OnExit:      func(err error) { exited <- err },
	})
	require.NoError(t, err)

	// Slave → host through the foreign master. No newline: the slave still
	// carries the platform's default line discipline.
	_, err = slave.WriteString("foreign!")
	require.NoError(t, err)

	buf := make([]byte, 8)
	got := 0
	deadline := time.Now().Add(ioDeadline)
	for got < 8 {
		n, rerr := unix.Read(r.ReadFd(), buf[got:])
		if rerr == unix.EAGAIN {
			if time.Now().After(deadline) {
				t.Fatal("timed out reading relay output")
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		require.NoError(t, rerr)
		got += n
	}
	require.Equal(t, "foreign!", string(buf))

	unix.Close(r.ReadFd())
	unix.Close(r.WriteFd())
	select {
	case err := <-exited:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not terminate")
	}
}

// patternData builds a non-repeating-ish byte pattern so reordering and
// duplication are caught, unlike all-zero payloads.
func patternData(n int) []byte {
	var buf bytes.Buffer
	buf.Grow(n)
	for i := 0; buf.Len() < n; i++ {
		buf.WriteByte(byte(i))
		buf.WriteByte(byte(i >> 8))
	}
	return buf.Bytes()[:n]
}
