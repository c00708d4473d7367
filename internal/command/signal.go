package command

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

var signals = map[string]syscall.Signal{
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGABRT": syscall.SIGABRT,
	"SIGKILL": syscall.SIGKILL,
	"SIGPIPE": syscall.SIGPIPE,
	"SIGALRM": syscall.SIGALRM,
	"SIGTERM": syscall.SIGTERM,
}

func init() {
	for name, sig := range platformSignals {
		signals[name] = sig
	}
}

// ParseSignal accepts "SIGTERM", "TERM", "term" or a signal number.
func ParseSignal(name string) (syscall.Signal, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty signal name", ErrInvalidSignal)
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		for _, sig := range signals {
			if int(sig) == n {
				return sig, nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
	}
	if !strings.HasPrefix(trimmed, "SIG") {
		trimmed = "SIG" + trimmed
	}
	sig, ok := signals[trimmed]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
	}
	return sig, nil
}

// SignalName returns the conventional name ("SIGTERM") for sig.
func SignalName(sig syscall.Signal) string {
	for name, s := range signals {
		if s == sig {
			return name
		}
	}
	return "SIG" + strconv.Itoa(int(sig))
}
