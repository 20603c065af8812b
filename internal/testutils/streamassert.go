// Package testutils holds assertion helpers for byte-stream tests: on
// mismatch the streams are hex-dumped and rendered as a unified diff so
// ordering bugs show up as readable output instead of two opaque blobs.
package testutils

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/mcuadros/go-defaults"
)

// TestingT matches the methods we need from testing.T.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

type StreamAssertOptions struct {
	MaxDiffLines int  `default:"64"`
	EnableColors bool `default:"false"`
}

// StreamOption is a functional option for configuring StreamAsserter.
type StreamOption func(*StreamAssertOptions)

// WithColors enables ANSI coloring of diff lines.
func WithColors() StreamOption {
	return func(o *StreamAssertOptions) { o.EnableColors = true }
}

// WithMaxDiffLines caps the diff output length.
func WithMaxDiffLines(n int) StreamOption {
	return func(o *StreamAssertOptions) { o.MaxDiffLines = n }
}

type StreamAsserter struct {
	t       TestingT
	options StreamAssertOptions
}

// NewStreamAsserter creates a StreamAsserter with default options.
func NewStreamAsserter(t *testing.T) *StreamAsserter {
	return NewStreamAsserterWithInterface(t)
}

// NewStreamAsserterWithInterface creates a StreamAsserter against the
// TestingT interface (used by the asserter's own tests).
func NewStreamAsserterWithInterface(t TestingT) *StreamAsserter {
	opts := StreamAssertOptions{}
	defaults.SetDefaults(&opts)
	return &StreamAsserter{t: t, options: opts}
}

// WithOptions applies functional options.
func (sa *StreamAsserter) WithOptions(opts ...StreamOption) *StreamAsserter {
	for _, opt := range opts {
		opt(&sa.options)
	}
	return sa
}

// AssertBytes compares two byte streams and reports a hex-level diff on
// mismatch.
func (sa *StreamAsserter) AssertBytes(actual, expected []byte) {
	if string(actual) == string(expected) {
		return
	}
	diff := sa.diff(hex.Dump(actual), hex.Dump(expected))
	sa.t.Errorf("Byte streams differ (%d actual vs %d expected bytes):\n%s",
		len(actual), len(expected), diff)
}

// AssertText compares two strings and reports a unified diff on mismatch.
func (sa *StreamAsserter) AssertText(actual, expected string) {
	if actual == expected {
		return
	}
	sa.t.Errorf("Text streams differ:\n%s", sa.diff(actual, expected))
}

func (sa *StreamAsserter) diff(actual, expected string) string {
	edits := myers.ComputeEdits(span.URIFromPath("expected"), expected, actual)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", expected, edits))

	lines := strings.Split(unified, "\n")
	if sa.options.MaxDiffLines > 0 && len(lines) > sa.options.MaxDiffLines {
		lines = append(lines[:sa.options.MaxDiffLines],
			fmt.Sprintf("... (%d more lines)", len(lines)-sa.options.MaxDiffLines))
	}
	if !sa.options.EnableColors {
		return strings.Join(lines, "\n")
	}

	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
