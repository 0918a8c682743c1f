package pty

import "errors"

// ErrUnsupportedPlatform is returned before any recording starts on hosts
// without pseudo-terminals.
var ErrUnsupportedPlatform = errors.New("interactive capture is not supported on this platform")
