//go:build linux

package client

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials retrieves the uid/gid of the process on the other
// end of conn via SO_PEERCRED (spec.md §6: "credentials must be
// enabled"). Every accepted connection is checked before admission.
func PeerCredentials(conn *net.UnixConn) (uid, gid int, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, fmt.Errorf("client: SyscallConn: %w", err)
	}

	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("client: Control: %w", err)
	}
	if sockErr != nil {
		return 0, 0, fmt.Errorf("client: SO_PEERCRED: %w", sockErr)
	}
	return int(cred.Uid), int(cred.Gid), nil
}
