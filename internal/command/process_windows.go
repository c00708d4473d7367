//go:build windows

package command

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

var platformSignals = map[string]syscall.Signal{}

var homeEnvKeys = []string{"HOME", "APPDATA", "USERPROFILE"}

func shellCommand(line string) *exec.Cmd {
	cmd := exec.Command("cmd.exe")
	// cmd.exe does its own quote parsing; hand it the line untouched.
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: `cmd.exe /C ` + line}
	return cmd
}

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// signalGroup terminates the process. Windows has no signal delivery to
// arbitrary console processes, so every signal becomes TerminateProcess.
func signalGroup(cmd *exec.Cmd, _ syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// The wait status of a terminated process carries only an exit code.
const waitStatusSignals = false

func terminatingSignal(*os.ProcessState) (syscall.Signal, bool) {
	return 0, false
}
