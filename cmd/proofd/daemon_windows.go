//go:build windows

package main

import "errors"

// detach is not supported on Windows; run proofd as a service or a
// scheduled task instead.
func detach() error {
	return errors.New("-daemonize is not supported on Windows")
}
