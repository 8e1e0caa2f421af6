package client

import (
	"fmt"
	"net"
	"os"
)

// Listen creates the notification socket at path with the given mode
// (0600 per-user, 0660 system-wide per spec.md §6), removing any
// stale socket file left behind by a previous run.
func Listen(path string, mode os.FileMode) (*net.UnixListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("client: removing stale socket %s: %w", path, err)
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("client: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		l.Close()
		return nil, fmt.Errorf("client: chmod %s: %w", path, err)
	}
	return l, nil
}

// Teardown unlinks the socket file at path, for use at process
// shutdown (spec.md §6: "unlink on teardown").
func Teardown(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("client: removing socket %s: %w", path, err)
	}
	return nil
}
