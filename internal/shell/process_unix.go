//go:build unix

// Package shell supervises run_command executions: a new process group per
// command, scenario-aware completion detection, and process-group cleanup.
// Grounded on detent's internal/act package (process_unix.go,
// runner.go's context-cancellation race) generalized from "run act" to
// "run an arbitrary migration command", per spec §4.2. Uses
// golang.org/x/sys/unix rather than the standard syscall package, per the
// domain-stack wiring.
package shell

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// setupProcessGroup configures cmd to start a new session/process group, so
// the entire tree it spawns can be reaped with one signal.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals every process in pgid's group. A negative pid
// targets the whole group.
func killProcessGroup(pgid int, sig unix.Signal) error {
	return unix.Kill(-pgid, sig)
}

func processGroupID(pid int) (int, error) {
	return unix.Getpgid(pid)
}

// terminate sends SIGTERM to cmd's process group, falling back to the bare
// process if the group can't be resolved.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := processGroupID(cmd.Process.Pid); err == nil {
		_ = killProcessGroup(pgid, unix.SIGTERM)
	} else {
		_ = cmd.Process.Signal(unix.SIGTERM)
	}
}

// forceKill sends SIGKILL to cmd's process group and to the process itself.
func forceKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := processGroupID(cmd.Process.Pid); err == nil {
		_ = killProcessGroup(pgid, unix.SIGKILL)
	}
	_ = cmd.Process.Kill()
}
