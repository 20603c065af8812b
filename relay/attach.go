package relay

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/fdutil"
	"github.com/srg/ptyx/internal/fifo"
	"github.com/srg/ptyx/internal/groutine"
)

// DefaultPollTimeout bounds every poll(2) call in the worker. It caps the
// latency of teardown re-evaluation, not of data transfer: readiness wakes
// the worker immediately.
const DefaultPollTimeout = 100 * time.Millisecond

// noopLogger is shared by relays constructed without a logger.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Options configures Attach. Zero values use the defaults.
type Options struct {
	Slots       int            // FIFO slots per direction (0 = fifo.DefaultSlots)
	SlotSize    int            // slot buffer size in bytes (0 = fifo.DefaultSlotSize)
	PollTimeout time.Duration  // poll timeout (0 = DefaultPollTimeout)
	Logger      *logrus.Logger // optional logger (nil = no-op logger)

	// OnExit is invoked exactly once, after the worker has exited and its
	// descriptors are closed. The error is nil for an orderly shutdown and
	// a *FatalError when the worker aborted.
	OnExit func(err error)
}

// Endpoints are the host-visible pipe descriptors of a running relay. Read
// yields the child's output, Write accepts input for the child. Both are
// non-blocking and close-on-exec; the host owns and closes them.
type Endpoints struct {
	Read  int
	Write int
}

// Relay is a handle on a running relay worker.
type Relay struct {
	master    int
	endpoints Endpoints
	done      chan struct{}
	err       error // written once, before done is closed
	logger    *logrus.Logger
}

// Attach spawns a relay worker for the given PTY master. Ownership of
// masterFd transfers to the worker, which closes it on exit; callers must
// not close it themselves. The returned endpoints belong to the caller.
func Attach(masterFd int, opts *Options) (*Relay, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	timeout := opts.PollTimeout
	if timeout == 0 {
		timeout = DefaultPollTimeout
	}
	timeoutMs := int(timeout / time.Millisecond)
	if timeoutMs < 1 {
		timeoutMs = 1
	}

	// out carries master→host bytes, in carries host→master bytes. The
	// channels are unix socketpairs used unidirectionally: unlike a Linux
	// pipe, whose write end reports POLLERR once the read end is gone, a
	// socket end reports POLLHUP when its peer closes, so host departure is
	// a hang-up on every platform and POLLERR stays a genuine fault.
	out, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay channel: %w", os.NewSyscallError("socketpair", err))
	}
	in, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		closeFds(out[:])
		return nil, fmt.Errorf("failed to create relay channel: %w", os.NewSyscallError("socketpair", err))
	}
	for _, fd := range []int{out[0], out[1], in[0], in[1]} {
		if err := fdutil.SetNonblock(fd); err != nil {
			closeFds(append(out[:], in[:]...))
			return nil, err
		}
		if err := fdutil.SetCloexec(fd); err != nil {
			closeFds(append(out[:], in[:]...))
			return nil, err
		}
	}

	w := &worker{
		master:    masterFd,
		writerFd:  out[1],
		readerFd:  in[0],
		lf:        fifo.New(opts.Slots, opts.SlotSize),
		rf:        fifo.New(opts.Slots, opts.SlotSize),
		timeoutMs: timeoutMs,
		logger:    logger,
	}
	r := &Relay{
		master:    masterFd,
		endpoints: Endpoints{Read: out[0], Write: in[1]},
		done:      make(chan struct{}),
		logger:    logger,
	}
	onExit := opts.OnExit

	registry.Set(masterFd, r)
	groutine.Go(nil, "pty-relay", func(ctx context.Context) {
		err := w.run()
		registry.Del(masterFd)
		r.err = err
		close(r.done)
		if err != nil {
			logger.WithError(err).Warn("relay worker aborted")
		} else {
			logger.Debug("relay worker finished")
		}
		if onExit != nil {
			onExit(err)
		}
	})

	logger.WithFields(logrus.Fields{
		"master": masterFd,
		"read":   r.endpoints.Read,
		"write":  r.endpoints.Write,
	}).Debug("relay attached")
	return r, nil
}

// Endpoints returns the host-side pipe descriptors.
func (r *Relay) Endpoints() Endpoints { return r.endpoints }

// ReadFd returns the descriptor delivering the child's output.
func (r *Relay) ReadFd() int { return r.endpoints.Read }

// WriteFd returns the descriptor accepting input for the child.
func (r *Relay) WriteFd() int { return r.endpoints.Write }

// MasterFd returns the master descriptor the worker owns. Valid as a key
// only; the worker may have closed it already.
func (r *Relay) MasterFd() int { return r.master }

// Done is closed once the worker has exited and released its resources.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Err returns the worker's completion status: nil while running or after
// an orderly shutdown, a *FatalError when the worker aborted.
func (r *Relay) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the worker has exited or ctx is canceled. Closing both
// host-side endpoints is the way to request termination; the worker
// observes the hang-up and winds down within one poll timeout.
func (r *Relay) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeFds(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
