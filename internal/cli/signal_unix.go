//go:build unix

package cli

import (
	"os"
	"syscall"
)

// visibilitySignals stand in for "the app came back to the foreground".
func visibilitySignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
