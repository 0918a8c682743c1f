//go:build windows

package pty

import (
	"context"
	"os"
	"time"

	"github.com/user/iris/internal/capture"
)

const Supported = false

// Recorder is unavailable on Windows.
type Recorder struct {
	Shell        string
	Dir          string
	Sink         capture.Sink
	Stdin        *os.File
	Stdout       *os.File
	PollInterval time.Duration
}

// RunInteractive always fails with ErrUnsupportedPlatform.
func (r *Recorder) RunInteractive(ctx context.Context) error {
	return ErrUnsupportedPlatform
}
