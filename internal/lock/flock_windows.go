//go:build windows

package lock

import "os"

// Windows gets the pid file only; there is no flock in syscall.
func lockFile(*os.File) error { return nil }
func unlockFile(*os.File) error { return nil }
