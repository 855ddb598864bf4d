//go:build !windows

package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// detach re-executes proofd without -daemonize in a new session, so the
// child survives the terminal closing.
func detach() error {
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "-daemonize" || a == "--daemonize" {
			continue
		}
		args = append(args, a)
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	fmt.Printf("proofd started in background (PID %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}
