package relay_test

import (
	"os"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx"
	"github.com/srg/ptyx/internal/fdutil"
	"github.com/srg/ptyx/relay"
)

const (
	// suitePollTimeout keeps teardown latency low in tests.
	suitePollTimeout = 50 * time.Millisecond

	// ioDeadline bounds every read/write a test performs.
	ioDeadline = 5 * time.Second
)

// RelaySuite provides one raw pty with an attached relay per test, plus an
// independent slave handle so tests can play the child's role without
// spawning processes.
//
// Layout per test:
//
//	slave (test) ⇆ master ⇆ relay worker ⇆ hostRead/hostWrite (test)
type RelaySuite struct {
	suite.Suite

	pty       *ptyx.Pty
	relay     *relay.Relay
	hostRead  *os.File
	hostWrite *os.File
	slave     *os.File

	exits chan error
}

func (s *RelaySuite) SetupTest() {
	p, err := ptyx.Open(&ptyx.Options{Termios: ptyx.RawTermios()})
	s.Require().NoError(err)
	s.pty = p

	// Independent, pollable handle on the slave side.
	slaveFd, err := unix.Dup(p.SlaveFd())
	s.Require().NoError(err)
	s.Require().NoError(fdutil.SetNonblock(slaveFd))
	s.slave = os.NewFile(uintptr(slaveFd), p.SlavePath())

	s.exits = make(chan error, 4)
	masterFd, err := p.ReleaseMaster()
	s.Require().NoError(err)

	r, err := relay.Attach(masterFd, &relay.Options{
		PollTimeout: suitePollTimeout,
		OnExit:      func(err error) { s.exits <- err },
	})
	s.Require().NoError(err)
	s.relay = r

	s.hostRead = os.NewFile(uintptr(r.ReadFd()), "relay-read")
	s.hostWrite = os.NewFile(uintptr(r.WriteFd()), "relay-write")
}

func (s *RelaySuite) TearDownTest() {
	if s.hostRead != nil {
		s.hostRead.Close()
	}
	if s.hostWrite != nil {
		s.hostWrite.Close()
	}
	if s.slave != nil {
		s.slave.Close()
	}
	if s.pty != nil {
		s.pty.Close()
	}
	if s.relay != nil {
		// Host ends are closed now; the worker must wind down on its own.
		select {
		case <-s.relay.Done():
		case <-time.After(2 * time.Second):
			s.T().Error("relay worker did not terminate during teardown")
		}
	}
}

// closeAllSlaves closes every slave descriptor this process holds, which
// hangs up the master.
func (s *RelaySuite) closeAllSlaves() {
	s.Require().NoError(s.slave.Close())
	s.slave = nil
	s.Require().NoError(s.pty.CloseSlave())
}

// writeAll writes data fully, honoring the suite deadline.
func (s *RelaySuite) writeAll(f *os.File, data []byte) {
	s.Require().NoError(f.SetWriteDeadline(time.Now().Add(ioDeadline)))
	n, err := f.Write(data)
	s.Require().NoError(err)
	s.Require().Equal(len(data), n)
}

// readN reads exactly n bytes, honoring the suite deadline.
func (s *RelaySuite) readN(f *os.File, n int) []byte {
	s.Require().NoError(f.SetReadDeadline(time.Now().Add(ioDeadline)))
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := f.Read(buf[got:])
		s.Require().NoError(err)
		got += m
	}
	return buf
}
