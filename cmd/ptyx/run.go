package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/ptyx"
	"github.com/srg/ptyx/relay"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a command behind its own pseudo-terminal",
	Long: `Spawns the command with a fresh pty as its controlling terminal and
bridges the pty to the current terminal: keystrokes are relayed to the
child, the child's output is relayed back, and window resizes follow the
hosting terminal.

The command sees a real terminal, so it will enable colors, redraw on
resize and emit escape sequences exactly as it would interactively.

Example:
  ptyx run top
  ptyx run --cols 132 --rows 40 vi /etc/hosts`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runCols        uint16
	runRows        uint16
	runHelperPath  string
	runPollTimeout time.Duration
	runVerbose     bool
)

func init() {
	runCmd.Flags().Uint16Var(&runCols, "cols", 0, "Pty width in columns (default: hosting terminal width)")
	runCmd.Flags().Uint16Var(&runRows, "rows", 0, "Pty height in rows (default: hosting terminal height)")
	runCmd.Flags().StringVar(&runHelperPath, "helper", "", "Path to the ptyx-helper binary (default: look up on PATH)")
	runCmd.Flags().DurationVar(&runPollTimeout, "poll-timeout", 0, "Relay poll timeout (default 100ms)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable debug logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	stdinFd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFd)

	cols, rows := runCols, runRows
	if (cols == 0 || rows == 0) && interactive {
		if w, h, err := term.GetSize(stdinFd); err == nil {
			if cols == 0 {
				cols = uint16(w)
			}
			if rows == 0 {
				rows = uint16(h)
			}
		}
	}

	child, err := ptyx.Spawn(args[0], args[1:], &ptyx.SpawnOptions{
		Options: ptyx.Options{
			Termios: ptyx.DefaultTermios(true),
			Cols:    cols,
			Rows:    rows,
			Logger:  logger,
		},
		Relay:      relay.Options{PollTimeout: runPollTimeout, Logger: logger},
		HelperPath: runHelperPath,
	})
	if err != nil {
		return err
	}
	defer child.Close()

	logger.WithField("tty", child.Pty.SlavePath()).Info("child started")

	// The child's pty does all line handling from here; the hosting
	// terminal must stop interfering.
	if interactive {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("failed to put terminal into raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)
	}

	// Follow the hosting terminal's size for the child's lifetime.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if w, h, err := term.GetSize(stdinFd); err == nil {
				if err := child.Pty.Resize(uint16(w), uint16(h)); err != nil {
					logger.WithError(err).Debug("resize failed")
				}
			}
		}
	}()

	// Keystrokes to the child; EOF on stdin closes the child's input.
	go func() {
		io.Copy(child.Stdin, os.Stdin)
		child.Stdin.Close()
	}()

	// Child output to the terminal until the relay delivers EOF.
	if _, err := io.Copy(os.Stdout, child.Stdout); err != nil {
		logger.WithError(err).Debug("output copy ended")
	}

	return child.Wait()
}
