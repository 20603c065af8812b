// Package stream wraps a relay's host-side pipe descriptors in a
// non-blocking io.ReadWriteCloser backed by ring buffers.
//
// A background reader drains the relay's read pipe into a ring buffer and
// optionally dispatches arriving chunks to a callback; a background writer
// flushes a second ring buffer into the relay's write pipe. Read and Write
// never block: Read returns unix.EAGAIN when no data is buffered (io.EOF
// once the relay has closed its side and the buffer is drained), Write
// queues as much as fits and reports how much was accepted.
package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/groutine"
)

const (
	// DefaultPollTimeout is how long the pump goroutines wait for readiness
	// before re-checking for shutdown.
	DefaultPollTimeout = 50 * time.Millisecond

	// DefaultCap is the default ring buffer capacity per direction.
	DefaultCap = 65536

	chunkSize = 4096
)

// ReadCallback is invoked from a background goroutine when data arrives.
// Implementations must be thread-safe and must not retain the slice.
type ReadCallback func(data []byte)

// Options configures New. Zero values use the defaults.
type Options struct {
	ReadCap     int            // read ring capacity in bytes (0 = DefaultCap)
	WriteCap    int            // write ring capacity in bytes (0 = DefaultCap)
	PollTimeout time.Duration  // pump poll timeout (0 = DefaultPollTimeout)
	Logger      *logrus.Logger // optional logger (nil = no-op logger)
	OnError     func(error)    // invoked at most once on a pump failure
}

// Stats carries the pump counters for monitoring and backpressure.
type Stats struct {
	ReadQueueLen    int
	ReadQueueCap    int
	WriteQueueLen   int
	WriteQueueCap   int
	ReadBytesTotal  uint64
	WroteBytesTotal uint64
}

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Stream pumps bytes between the host and a relay's pipe endpoints. It
// takes ownership of both descriptors and closes them in Close.
type Stream struct {
	readFd  int
	writeFd int
	logger  *logrus.Logger
	onError func(error)
	errOnce sync.Once

	readBuf  *ringbuffer.RingBuffer
	writeBuf *ringbuffer.RingBuffer

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	timeoutMs int

	readCb     atomic.Value // ReadCallback or nil
	readNotify chan struct{}

	closed uint32 // atomic
	eof    uint32 // atomic; relay closed its side

	readBytes  uint64
	wroteBytes uint64
}

// New starts the pumps over the given relay endpoints. Both descriptors
// must be non-blocking, which relay.Attach guarantees.
func New(readFd, writeFd int, opts *Options) (*Stream, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	readCap := opts.ReadCap
	if readCap <= 0 {
		readCap = DefaultCap
	}
	writeCap := opts.WriteCap
	if writeCap <= 0 {
		writeCap = DefaultCap
	}
	timeout := opts.PollTimeout
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}
	timeoutMs := int(timeout / time.Millisecond)
	if timeoutMs < 1 {
		timeoutMs = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		readFd:     readFd,
		writeFd:    writeFd,
		logger:     logger,
		onError:    opts.OnError,
		readBuf:    ringbuffer.New(readCap),
		writeBuf:   ringbuffer.New(writeCap),
		ctx:        ctx,
		cancel:     cancel,
		timeoutMs:  timeoutMs,
		readNotify: make(chan struct{}, 1), // buffered so the signal never blocks
	}

	s.wg.Add(3)
	groutine.Go(ctx, "stream-read-pump", func(context.Context) { s.readPump() })
	groutine.Go(ctx, "stream-write-pump", func(context.Context) { s.writePump() })
	groutine.Go(ctx, "stream-dispatcher", func(context.Context) { s.dispatcher() })
	return s, nil
}

func (s *Stream) fail(err error) {
	if s.onError != nil {
		s.errOnce.Do(func() { s.onError(err) })
	}
}

// readPump drains the relay's read pipe into the read ring. The read size
// is capped by the ring's free space so no child output is ever dropped;
// the pipe itself provides the backpressure.
func (s *Stream) readPump() {
	defer s.wg.Done()

	pollFd := []unix.PollFd{{Fd: int32(s.readFd), Events: unix.POLLIN}}
	buf := make([]byte, chunkSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		free := s.readBuf.Free()
		if free == 0 {
			// Consumer is behind; let data sit in the pipe.
			time.Sleep(time.Duration(s.timeoutMs) * time.Millisecond)
			continue
		}

		n, err := unix.Poll(pollFd, s.timeoutMs)
		if err != nil && !errors.Is(err, unix.EINTR) {
			s.logger.WithError(err).Warn("read pump poll error")
		}
		if n == 0 {
			continue
		}

		limit := len(buf)
		if free < limit {
			limit = free
		}
		n, err = unix.Read(s.readFd, buf[:limit])
		if n > 0 {
			written, _ := s.readBuf.Write(buf[:n])
			atomic.AddUint64(&s.readBytes, uint64(written))
			s.notifyRead()
		}
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EBADF):
				s.logger.Debug("read pump exiting: fd closed")
				return
			default:
				s.logger.WithError(err).Warn("read pump exiting on error")
				s.fail(err)
				return
			}
		}
		if n == 0 {
			// Relay closed its write end: orderly end of stream.
			atomic.StoreUint32(&s.eof, 1)
			s.notifyRead()
			s.logger.Debug("read pump exiting: EOF")
			return
		}
	}
}

// writePump flushes the write ring into the relay's write pipe.
func (s *Stream) writePump() {
	defer s.wg.Done()

	pollFd := []unix.PollFd{{Fd: int32(s.writeFd), Events: unix.POLLOUT}}
	buf := make([]byte, chunkSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.writeBuf.IsEmpty() {
			// Nothing queued; sleep one timeout and re-check.
			time.Sleep(time.Duration(s.timeoutMs) * time.Millisecond)
			continue
		}

		n, err := s.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			s.logger.WithError(err).Warn("write pump ring read error")
			continue
		}
		offset := 0
		for offset < n {
			written, werr := unix.Write(s.writeFd, buf[offset:n])
			if written > 0 {
				offset += written
				atomic.AddUint64(&s.wroteBytes, uint64(written))
			}
			if werr == nil {
				continue
			}
			switch {
			case errors.Is(werr, unix.EINTR):
				continue
			case errors.Is(werr, unix.EAGAIN):
				if _, perr := unix.Poll(pollFd, s.timeoutMs); perr != nil && !errors.Is(perr, unix.EINTR) {
					s.logger.WithError(perr).Warn("write pump poll error")
				}
				select {
				case <-s.ctx.Done():
					return
				default:
				}
			case errors.Is(werr, unix.EBADF):
				s.logger.Debug("write pump exiting: fd closed")
				return
			default:
				// EPIPE once the relay worker is gone.
				s.logger.WithError(werr).Debug("write pump exiting on error")
				s.fail(werr)
				return
			}
		}
	}
}

// dispatcher feeds buffered data to the registered read callback.
func (s *Stream) dispatcher() {
	defer s.wg.Done()

	tmp := make([]byte, chunkSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.readNotify:
		}

		for {
			cb, _ := s.readCb.Load().(ReadCallback)
			if cb == nil {
				break
			}
			n, err := s.readBuf.TryRead(tmp)
			if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
				break
			}
			cb(tmp[:n])
		}
	}
}

func (s *Stream) notifyRead() {
	select {
	case s.readNotify <- struct{}{}:
	default:
	}
}

// SetReadCallback registers cb for data arrival, nil unregisters. Buffered
// data triggers an immediate dispatch.
func (s *Stream) SetReadCallback(cb ReadCallback) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return
	}
	s.readCb.Store(cb)
	s.notifyRead()
}

// Read copies up to len(b) buffered bytes. It returns unix.EAGAIN when the
// buffer is empty, io.EOF once the relay has closed its side and the
// buffer is drained, and os.ErrClosed after Close.
func (s *Stream) Read(b []byte) (int, error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := s.readBuf.TryRead(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, err
	}
	if n == 0 {
		if atomic.LoadUint32(&s.eof) == 1 && s.readBuf.IsEmpty() {
			return 0, io.EOF
		}
		return 0, unix.EAGAIN
	}
	return n, nil
}

// Write queues data for the relay and returns how many bytes fit in the
// write ring. It never blocks; callers must check the count.
func (s *Stream) Write(data []byte) (int, error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := s.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	return n, nil
}

// Stats returns instantaneous counters.
func (s *Stream) Stats() Stats {
	return Stats{
		ReadQueueLen:    s.readBuf.Length(),
		ReadQueueCap:    s.readBuf.Capacity(),
		WriteQueueLen:   s.writeBuf.Length(),
		WriteQueueCap:   s.writeBuf.Capacity(),
		ReadBytesTotal:  atomic.LoadUint64(&s.readBytes),
		WroteBytesTotal: atomic.LoadUint64(&s.wroteBytes),
	}
}

// Close stops the pumps and closes both descriptors. Closing both
// descriptors is what asks the relay worker to wind down.
func (s *Stream) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	groutine.Go(nil, "stream-close-wait", func(context.Context) {
		s.wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(3*time.Duration(s.timeoutMs)*time.Millisecond + time.Second):
		s.logger.Warn("stream pumps did not stop in time; closing descriptors anyway")
	}

	if err := unix.Close(s.readFd); err != nil {
		s.logger.WithError(err).Warn("failed to close read endpoint")
	}
	if err := unix.Close(s.writeFd); err != nil {
		s.logger.WithError(err).Warn("failed to close write endpoint")
	}
	return nil
}
