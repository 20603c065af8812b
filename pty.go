package ptyx

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/fdutil"
)

// Default terminal size applied when Options leaves Cols/Rows zero.
const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24
)

// noopLogger is a shared logger instance that discards all output. Used
// when no logger is provided to avoid allocating one per Pty.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Options configures Open. Zero values use sensible defaults.
type Options struct {
	Termios *unix.Termios  // applied to the slave; nil leaves the line discipline untouched
	Cols    uint16         // initial window size, 0 = DefaultCols
	Rows    uint16         // initial window size, 0 = DefaultRows
	Logger  *logrus.Logger // optional logger (nil = no-op logger)
}

// Pty holds an open pseudo-terminal pair.
//
// The slave side can be reopened any number of times by path; the master
// cannot. Once the master is closed the pty is unusable: the size, termios,
// slave-reopen and release operations fail with ErrClosed, and Close and
// CloseSlave return nil.
//
// Solaris loses termios and window size once the last slave closes, so both
// are cached and re-applied when a new slave opens. On Linux and the BSDs
// no caching is needed.
//
// Pty is not safe for concurrent use.
type Pty struct {
	master    int
	slave     int
	slavePath string
	logger    *logrus.Logger

	// masterOwned is cleared by ReleaseMaster when the descriptor is handed
	// to a relay worker, which then becomes the sole closer.
	masterOwned bool

	// Solaris slave-state cache.
	cachedSize    Winsize
	cachedTermios *unix.Termios
}

// Open allocates a pseudo-terminal pair: allocate the master, grant,
// unlock, open the slave, push STREAMS modules where needed, then apply
// termios and the initial window size.
func Open(opts *Options) (*Pty, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}

	master, err := OpenMaster(unix.O_RDWR | unix.O_NOCTTY)
	if err != nil {
		return nil, err
	}
	p := &Pty{master: master, slave: -1, logger: logger, masterOwned: true}
	if err := p.initSlave(opts); err != nil {
		p.Close()
		return nil, err
	}
	logger.WithField("tty", p.slavePath).Debug("opened pty pair")
	return p, nil
}

func (p *Pty) initSlave(opts *Options) error {
	if err := Grant(p.master); err != nil {
		return err
	}
	if err := Unlock(p.master); err != nil {
		return err
	}

	path, err := SlaveName(p.master)
	if err != nil {
		return err
	}
	p.slavePath = path

	slave, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("failed to open pty slave %s: %w", path, os.NewSyscallError("open", err))
	}
	p.slave = slave
	if err := fdutil.SetCloexec(slave); err != nil {
		return err
	}
	if err := LoadStreamModules(slave); err != nil {
		return err
	}

	if opts.Termios != nil {
		if err := setTermios(slave, opts.Termios); err != nil {
			return err
		}
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	sizeFd := p.master
	if solarisSemantics {
		sizeFd = slave
	}
	size, err := SetSize(sizeFd, cols, rows)
	if err != nil {
		return err
	}

	if solarisSemantics {
		p.cachedSize = size
		if p.cachedTermios, err = getTermios(slave); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pty) usable() error {
	if p.master == -1 {
		return ErrClosed
	}
	return nil
}

// MasterFd returns the master descriptor, -1 once closed.
func (p *Pty) MasterFd() int { return p.master }

// SlaveFd returns the currently open slave descriptor, -1 when the slave
// end is closed.
func (p *Pty) SlaveFd() int { return p.slave }

// SlavePath returns the slave device path, empty once closed.
func (p *Pty) SlavePath() string { return p.slavePath }

// OpenSlave reopens the slave end by path if it is not already open and
// returns its descriptor.
func (p *Pty) OpenSlave() (int, error) {
	if err := p.usable(); err != nil {
		return -1, err
	}
	if p.slave != -1 {
		return p.slave, nil
	}
	slave, err := unix.Open(p.slavePath, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to reopen pty slave %s: %w", p.slavePath, os.NewSyscallError("open", err))
	}
	p.slave = slave
	if err := fdutil.SetCloexec(slave); err != nil {
		p.CloseSlave()
		return -1, err
	}
	if solarisSemantics {
		// A fresh slave comes up raw on STREAMS, restore the cached state.
		if err := LoadStreamModules(slave); err != nil {
			p.CloseSlave()
			return -1, err
		}
		if p.cachedTermios != nil {
			if err := setTermios(slave, p.cachedTermios); err != nil {
				p.CloseSlave()
				return -1, err
			}
		}
		if _, err := SetSize(slave, p.cachedSize.Cols, p.cachedSize.Rows); err != nil {
			p.CloseSlave()
			return -1, err
		}
	}
	return p.slave, nil
}

// CloseSlave closes this process's slave descriptor. Other processes that
// opened the slave by path are unaffected.
func (p *Pty) CloseSlave() error {
	if p.slave == -1 {
		return nil
	}
	err := unix.Close(p.slave)
	p.slave = -1
	if err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// GetSize reads the window size.
func (p *Pty) GetSize() (Winsize, error) {
	if err := p.usable(); err != nil {
		return Winsize{}, err
	}
	if solarisSemantics {
		return p.cachedSize, nil
	}
	return GetSize(p.master)
}

// SetSize sets the window size and echoes the effective values back.
func (p *Pty) SetSize(cols, rows uint16) (Winsize, error) {
	if err := p.usable(); err != nil {
		return Winsize{}, err
	}
	if !solarisSemantics {
		return SetSize(p.master, cols, rows)
	}
	hadSlave := p.slave != -1
	if _, err := p.OpenSlave(); err != nil {
		return Winsize{}, err
	}
	size, err := SetSize(p.slave, cols, rows)
	if err == nil {
		p.cachedSize = size
	}
	if !hadSlave {
		p.CloseSlave()
	}
	return size, err
}

// Resize is SetSize without the echo.
func (p *Pty) Resize(cols, rows uint16) error {
	_, err := p.SetSize(cols, rows)
	return err
}

// Termios reads the current line discipline, preferring the slave end.
func (p *Pty) Termios() (*unix.Termios, error) {
	if err := p.usable(); err != nil {
		return nil, err
	}
	if p.slave != -1 {
		return getTermios(p.slave)
	}
	if solarisSemantics {
		t := *p.cachedTermios
		return &t, nil
	}
	return getTermios(p.master)
}

// SetTermios applies the line discipline, preferring the slave end. Callers
// configure the pty this way before attaching a relay.
func (p *Pty) SetTermios(t *unix.Termios) error {
	if err := p.usable(); err != nil {
		return err
	}
	if p.slave != -1 {
		err := setTermios(p.slave, t)
		if err == nil && solarisSemantics {
			tc := *t
			p.cachedTermios = &tc
		}
		return err
	}
	if solarisSemantics {
		if _, err := p.OpenSlave(); err != nil {
			return err
		}
		err := setTermios(p.slave, t)
		if err == nil {
			tc := *t
			p.cachedTermios = &tc
		}
		p.CloseSlave()
		return err
	}
	return setTermios(p.master, t)
}

// ReleaseMaster transfers ownership of the master descriptor to the caller,
// typically to hand it to relay.Attach. After release the Pty no longer
// closes the master; the new owner does.
func (p *Pty) ReleaseMaster() (int, error) {
	if err := p.usable(); err != nil {
		return -1, err
	}
	p.masterOwned = false
	return p.master, nil
}

// Close closes both ends. The master is closed only while still owned;
// after ReleaseMaster the relay worker is the sole closer.
func (p *Pty) Close() error {
	if p.master == -1 {
		return nil
	}
	var firstErr error
	if p.masterOwned {
		if err := unix.Close(p.master); err != nil {
			firstErr = os.NewSyscallError("close", err)
			p.logger.WithError(firstErr).Warn("failed to close pty master")
		}
	}
	p.master = -1
	if err := p.CloseSlave(); err != nil && firstErr == nil {
		firstErr = err
	}
	p.slavePath = ""
	return firstErr
}
