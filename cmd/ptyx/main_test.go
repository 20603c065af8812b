package main

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "v0.1.0-rc1", formatVersion("0.1.0-rc1"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	plain := errors.New("something broke")
	assert.Equal(t, "something broke", FormatUserError(plain))

	notFound := &exec.Error{Name: "nosuchcmd", Err: exec.ErrNotFound}
	assert.Contains(t, FormatUserError(notFound), "nosuchcmd")
}

func newTestCmd(level string, verbose bool) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", level, "")
	cmd.Flags().Bool("verbose", verbose, "")
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	logger, err := configureLogger(newTestCmd("", false), "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())

	logger, err = configureLogger(newTestCmd("", true), "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	// --log-level wins over --verbose.
	logger, err = configureLogger(newTestCmd("warn", true), "verbose")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestConfigureLoggerRejectsBadLevel(t *testing.T) {
	_, err := configureLogger(newTestCmd("noisy", false), "verbose")
	assert.Error(t, err)
}
