package ptyx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/srg/ptyx/internal/fdutil"
	"github.com/srg/ptyx/internal/groutine"
	"github.com/srg/ptyx/relay"
)

// HelperName is the controlling-terminal helper binary looked up on PATH
// when SpawnOptions.HelperPath is empty. The helper acquires the
// controlling terminal from stdin and execs the target command.
const HelperName = "ptyx-helper"

// AttachIOChannels spawns a relay worker for masterFd and returns the
// host-visible pipe endpoints: Read yields the master's output, Write
// accepts input for it. Ownership of masterFd transfers to the worker.
func AttachIOChannels(masterFd int, opts *relay.Options) (relay.Endpoints, error) {
	r, err := relay.Attach(masterFd, opts)
	if err != nil {
		return relay.Endpoints{Read: -1, Write: -1}, err
	}
	return r.Endpoints(), nil
}

// SpawnOptions configures Spawn. The embedded Options configure the pty
// itself; Relay configures the attached worker.
type SpawnOptions struct {
	Options
	Relay relay.Options

	Env        []string // child environment; nil = sanitized copy of os.Environ()
	Dir        string   // child working directory; empty = inherit
	TermName   string   // TERM value used when Env is nil (default "xterm")
	HelperPath string   // helper binary; empty = look up HelperName on PATH
}

// Child is a process running behind its own pty, with the relay's pipe
// ends wrapped as files: Stdout delivers the child's output, Stdin
// accepts its input.
type Child struct {
	Pty   *Pty
	Relay *relay.Relay
	Cmd   *exec.Cmd

	Stdin  *os.File
	Stdout *os.File

	waitCh   chan error
	waitOnce sync.Once
	waitErr  error
}

// Spawn opens a pty, attaches a relay to its master and launches the
// command through the helper binary with the slave as stdin, stdout and
// stderr, in a new session. The parent's slave descriptor is closed once
// the child is running.
func Spawn(command string, args []string, opts *SpawnOptions) (*Child, error) {
	if opts == nil {
		opts = &SpawnOptions{}
	}

	helper := opts.HelperPath
	if helper == "" {
		var err error
		if helper, err = exec.LookPath(HelperName); err != nil {
			return nil, fmt.Errorf("helper binary %q not found: %w", HelperName, err)
		}
	}

	p, err := Open(&opts.Options)
	if err != nil {
		return nil, err
	}

	rel, err := relay.Attach(p.MasterFd(), &opts.Relay)
	if err != nil {
		p.Close()
		return nil, err
	}
	// The relay worker is the master's owner and closer from here on.
	p.ReleaseMaster()

	child := &Child{
		Pty:    p,
		Relay:  rel,
		Stdin:  os.NewFile(uintptr(rel.WriteFd()), "pty-stdin"),
		Stdout: os.NewFile(uintptr(rel.ReadFd()), "pty-stdout"),
		waitCh: make(chan error, 1),
	}

	// The child gets its own dup of the slave; both parent copies are
	// closed after the fork so the master's hang-up tracks the child alone.
	slaveDup, err := unix.Dup(p.SlaveFd())
	if err != nil {
		child.closeOnSpawnError()
		return nil, os.NewSyscallError("dup", err)
	}
	if err := fdutil.SetCloexec(slaveDup); err != nil {
		unix.Close(slaveDup)
		child.closeOnSpawnError()
		return nil, err
	}
	slaveFile := os.NewFile(uintptr(slaveDup), p.SlavePath())

	cmd := exec.Command(helper, append([]string{command}, args...)...)
	cmd.Stdin = slaveFile
	cmd.Stdout = slaveFile
	cmd.Stderr = slaveFile
	cmd.Dir = opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if opts.Env != nil {
		cmd.Env = opts.Env
	} else {
		term := opts.TermName
		if term == "" {
			term = "xterm"
		}
		cmd.Env = sanitizeEnv(os.Environ(), term)
	}

	if err := cmd.Start(); err != nil {
		slaveFile.Close()
		child.closeOnSpawnError()
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}
	slaveFile.Close()
	p.CloseSlave()
	child.Cmd = cmd

	groutine.Go(nil, "child-wait", func(context.Context) {
		child.waitCh <- cmd.Wait()
	})
	return child, nil
}

func (c *Child) closeOnSpawnError() {
	c.Stdin.Close()
	c.Stdout.Close()
	c.Pty.Close()
}

// Wait blocks until the child exits and returns its status, like
// exec.Cmd.Wait. Safe to call more than once.
func (c *Child) Wait() error {
	c.waitOnce.Do(func() { c.waitErr = <-c.waitCh })
	return c.waitErr
}

// Signal forwards a signal to the child process.
func (c *Child) Signal(sig os.Signal) error {
	if c.Cmd == nil || c.Cmd.Process == nil {
		return ErrClosed
	}
	return c.Cmd.Process.Signal(sig)
}

// Close tears the session down: closing the host pipe ends asks the relay
// worker to wind down, the pty is released, and the child is hung up.
func (c *Child) Close() error {
	c.Stdin.Close()
	c.Stdout.Close()
	c.Pty.Close()
	if c.Cmd != nil && c.Cmd.Process != nil {
		c.Cmd.Process.Signal(syscall.SIGHUP)
	}
	return nil
}

// hostileEnv lists variables that confuse a child into believing it runs
// inside an existing terminal session or multiplexer.
var hostileEnv = []string{
	"TMUX", "TMUX_PANE", // tmux
	"STY", "WINDOW", // screen
	"WINDOWID", "TERMCAP", "COLUMNS", "LINES",
}

// sanitizeEnv strips multiplexer and geometry variables from env and
// forces TERM to the given name.
func sanitizeEnv(env []string, term string) []string {
	out := make([]string, 0, len(env)+1)
outer:
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if key == "TERM" {
			continue
		}
		for _, bad := range hostileEnv {
			if key == bad {
				continue outer
			}
		}
		out = append(out, kv)
	}
	return append(out, "TERM="+term)
}
