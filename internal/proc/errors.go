package proc

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Sentinel errors for lifecycle failures.
// Use errors.Is() to check for these error types.
var (
	// ErrInvalidCommandLine indicates an empty or oversized command line.
	ErrInvalidCommandLine = fmt.Errorf("invalid command line: %w", errdefs.ErrInvalidArgument)

	// ErrLoadFailed indicates the child could not be loaded. No pid was
	// assigned to it.
	ErrLoadFailed = errors.New("load failed")

	// ErrNotChild indicates a wait on a pid that is not an unreaped child
	// of the caller.
	ErrNotChild = fmt.Errorf("not a child: %w", errdefs.ErrNotFound)
)
