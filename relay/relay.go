// Package relay bridges one PTY master descriptor to two host-visible
// pipes. A dedicated worker drives four I/O sub-channels under poll(2):
// bytes read from the master are queued through a bounded FIFO and written
// to the read pipe; bytes arriving on the write pipe are queued through a
// second FIFO and written to the master.
//
//	master ──▶ LF ──▶ read pipe  (host reads child output)
//	master ◀── RF ◀── write pipe (host writes child input)
//
// The worker never busy-spins: every sub-channel carries blocked/closed
// state, exhausted descriptors are parked at -1 in the poll set, and a
// hang-up on the master is honored only after its pending output has been
// drained, so no trailing bytes of an exiting child are lost.
package relay

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/fifo"
)

// FatalError reports that the relay worker aborted on POLLERR/POLLNVAL or
// an unrecoverable poll failure. It is delivered through the completion
// notification, never raised asynchronously.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay: %s: %v", e.Reason, e.Err)
	}
	return "relay: " + e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// subchannel is the progress state of one of the four I/O legs. blocked is
// set when the leg cannot advance without a fresh readiness indication,
// closed when it reached end of stream or failed.
type subchannel struct {
	blocked bool
	closed  bool
}

func (s *subchannel) idle() bool { return s.blocked || s.closed }

func (s *subchannel) close() {
	s.closed = true
	s.blocked = true
}

// Poll set layout. Descriptors that cannot make progress are presented as
// -1 so the kernel skips them.
const (
	pfMaster = iota
	pfWriter
	pfReader
	pfCount
)

// worker owns the master and the inner pipe ends for its whole run; run
// closes all three on exit.
type worker struct {
	master   int // PTY master, duplex
	writerFd int // write side of the master→host pipe
	readerFd int // read side of the host→master pipe

	lf *fifo.FIFO // master → writerFd
	rf *fifo.FIFO // readerFd → master

	timeoutMs int
	logger    *logrus.Logger

	masterRead  subchannel
	masterWrite subchannel // closed also records the master hang-up
	writerWrite subchannel
	readerRead  subchannel
}

// run drives the readiness/work loop until a termination predicate holds
// or a fatal poll condition occurs, then closes the worker-owned fds.
func (w *worker) run() error {
	defer w.closeFds()

	fds := make([]unix.PollFd, pfCount)
	for {
		if w.done() {
			return nil
		}

		w.buildPollSet(fds)
		n, err := unix.Poll(fds, w.timeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &FatalError{Reason: "poll failed", Err: err}
		}
		if n == 0 {
			// Timeout: loop to re-evaluate the termination predicates.
			continue
		}
		if err := w.applyEvents(fds); err != nil {
			return err
		}
		w.work()
	}
}

// done evaluates the termination predicates at the top of the outer loop:
//  1. both directions toward the host are dead,
//  2. no more child output can arrive or be delivered,
//  3. the host stopped consuming and no input remains to push.
func (w *worker) done() bool {
	switch {
	case w.writerWrite.closed && w.masterRead.closed:
		return true
	case w.masterRead.closed && w.lf.Empty():
		return true
	case w.readerRead.closed && w.rf.Empty() && w.writerWrite.closed:
		return true
	}
	return false
}

func (w *worker) buildPollSet(fds []unix.PollFd) {
	for i := range fds {
		fds[i] = unix.PollFd{Fd: -1}
	}

	// A hung-up master whose output can neither be read (LF full) nor
	// flushed (host read end gone) is parked at -1: Linux keeps reporting
	// POLLHUP without POLLIN on it forever, which would spin the loop hot.
	parked := w.masterWrite.closed && w.writerWrite.closed && w.lf.Full()
	wantOut := !w.masterWrite.closed && !w.rf.Empty()
	switch {
	case !w.masterRead.closed && !parked:
		ev := int16(unix.POLLIN)
		if wantOut {
			ev |= unix.POLLOUT
		}
		fds[pfMaster] = unix.PollFd{Fd: int32(w.master), Events: ev}
	case wantOut:
		fds[pfMaster] = unix.PollFd{Fd: int32(w.master), Events: unix.POLLOUT}
	}

	if !w.writerWrite.closed {
		// Events stays 0 while LF is empty; POLLHUP is still delivered, so
		// a host that closes its read end is noticed even when idle.
		var ev int16
		if !w.lf.Empty() {
			ev = unix.POLLOUT
		}
		fds[pfWriter] = unix.PollFd{Fd: int32(w.writerFd), Events: ev}
	}

	// The reader is parked while RF is full: a bare POLLHUP seen with no
	// room to read could otherwise retire the leg with bytes still in the
	// pipe. Once RF has space again the hang-up arrives with POLLIN and the
	// remaining data drains first.
	if !w.readerRead.closed && !w.rf.Full() {
		fds[pfReader] = unix.PollFd{Fd: int32(w.readerFd), Events: unix.POLLIN}
	}
}

func (w *worker) applyEvents(fds []unix.PollFd) error {
	for i := range fds {
		if fds[i].Fd < 0 {
			continue
		}
		if fds[i].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return &FatalError{Reason: fmt.Sprintf("poll reported error condition 0x%x on fd %d",
				fds[i].Revents, fds[i].Fd)}
		}
	}

	if fds[pfMaster].Fd >= 0 {
		re := fds[pfMaster].Revents
		if re&unix.POLLHUP != 0 {
			// Every slave fd has been closed; no more input will be
			// accepted. Keep reading while POLLIN accompanies the hang-up,
			// the child's trailing output is still buffered in the kernel.
			w.masterWrite.close()
			if re&unix.POLLIN == 0 {
				w.masterRead.close()
			}
		}
		if re&unix.POLLIN != 0 {
			w.masterRead.blocked = false
		}
		if re&unix.POLLOUT != 0 && !w.masterWrite.closed {
			w.masterWrite.blocked = false
		}
	}

	if fds[pfWriter].Fd >= 0 {
		re := fds[pfWriter].Revents
		if re&unix.POLLHUP != 0 {
			// Host closed its read end.
			w.writerWrite.close()
		}
		if re&unix.POLLOUT != 0 && !w.writerWrite.closed {
			w.writerWrite.blocked = false
		}
	}

	if fds[pfReader].Fd >= 0 {
		re := fds[pfReader].Revents
		if re&unix.POLLHUP != 0 && re&unix.POLLIN == 0 {
			// Host closed its write end and nothing is left to read.
			w.readerRead.close()
		}
		if re&unix.POLLIN != 0 {
			w.readerRead.blocked = false
		}
	}
	return nil
}

// work runs the four sub-channels until none can advance, capped at 2·N
// iterations so the loop re-enters poll and stays responsive to remote
// closures.
func (w *worker) work() {
	limit := 2 * w.lf.Slots()
	for i := 0; i < limit; i++ {
		progressed := false
		if w.readMaster() {
			progressed = true
		}
		if w.writeWriter() {
			progressed = true
		}
		if w.readReader() {
			progressed = true
		}
		if w.writeMaster() {
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// readMaster moves child output from the master into an LF push slot.
func (w *worker) readMaster() bool {
	if w.masterRead.idle() {
		return false
	}
	slot := w.lf.PushSlot()
	if slot == nil {
		return false
	}
	n, err := unix.Read(w.master, slot.Data)
	switch {
	case err != nil && errors.Is(err, unix.EINTR):
		return true
	case err != nil && errors.Is(err, unix.EAGAIN):
		w.masterRead.blocked = true
		return false
	case err != nil:
		// Linux reports EIO on a hung-up master; treat any failure as end
		// of stream on this leg.
		w.logger.WithError(err).Debug("master read failed")
		w.masterRead.close()
		return false
	case n == 0:
		w.masterRead.close()
		return false
	default:
		slot.Length, slot.Written = n, 0
		w.lf.CommitPush()
		return true
	}
}

// writeWriter flushes the LF pop slot into the read pipe's write end.
func (w *worker) writeWriter() bool {
	if w.writerWrite.idle() {
		return false
	}
	slot := w.lf.PopSlot()
	if slot == nil {
		return false
	}
	n, err := unix.Write(w.writerFd, slot.Remaining())
	switch {
	case err != nil && errors.Is(err, unix.EINTR):
		return true
	case err != nil && errors.Is(err, unix.EAGAIN):
		w.writerWrite.blocked = true
		return false
	case err != nil:
		w.logger.WithError(err).Debug("read-pipe write failed")
		w.writerWrite.close()
		return false
	default:
		slot.Consume(n)
		if slot.Length == 0 {
			w.lf.CommitPop()
			return true
		}
		// Short write, the pipe is full until the host drains it.
		w.writerWrite.blocked = true
		return true
	}
}

// readReader moves host input from the write pipe's read end into an RF
// push slot.
func (w *worker) readReader() bool {
	if w.readerRead.idle() {
		return false
	}
	slot := w.rf.PushSlot()
	if slot == nil {
		return false
	}
	n, err := unix.Read(w.readerFd, slot.Data)
	switch {
	case err != nil && errors.Is(err, unix.EINTR):
		return true
	case err != nil && errors.Is(err, unix.EAGAIN):
		w.readerRead.blocked = true
		return false
	case err != nil:
		w.logger.WithError(err).Debug("write-pipe read failed")
		w.readerRead.close()
		return false
	case n == 0:
		w.readerRead.close()
		return false
	default:
		slot.Length, slot.Written = n, 0
		w.rf.CommitPush()
		return true
	}
}

// writeMaster flushes the RF pop slot into the master.
func (w *worker) writeMaster() bool {
	if w.masterWrite.idle() {
		return false
	}
	slot := w.rf.PopSlot()
	if slot == nil {
		return false
	}
	n, err := unix.Write(w.master, slot.Remaining())
	switch {
	case err != nil && errors.Is(err, unix.EINTR):
		return true
	case err != nil && errors.Is(err, unix.EAGAIN):
		w.masterWrite.blocked = true
		return false
	case err != nil:
		w.logger.WithError(err).Debug("master write failed")
		w.masterWrite.close()
		return false
	default:
		slot.Consume(n)
		if slot.Length == 0 {
			w.rf.CommitPop()
			return true
		}
		w.masterWrite.blocked = true
		return true
	}
}

// closeFds releases the worker-owned descriptors: both inner pipe ends and
// the master, whose ownership transferred in at Attach.
func (w *worker) closeFds() {
	for _, fd := range []int{w.writerFd, w.readerFd, w.master} {
		if err := unix.Close(fd); err != nil {
			w.logger.WithError(err).WithField("fd", fd).Debug("close failed")
		}
	}
}
