//go:build !linux

package client

import (
	"fmt"
	"net"
	"runtime"
)

// PeerCredentials is unimplemented outside Linux; SO_PEERCRED has no
// portable equivalent across BSD's LOCAL_CREDS and Linux's
// SO_PEERCRED ancillary-data APIs, and this daemon ships for Linux
// tracing hosts only.
func PeerCredentials(conn *net.UnixConn) (uid, gid int, err error) {
	return 0, 0, fmt.Errorf("client: peer credentials unsupported on %s", runtime.GOOS)
}
