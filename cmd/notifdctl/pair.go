package main

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// runPair prints a terminal QR code encoding the notification
// socket's path, for scanning into a companion display that wants to
// know where to dial in (a real pairing handshake would exchange a
// one-time token over the socket itself; this is the low-effort
// local-only version, since notifd has no network-facing control
// plane to authenticate a remote pairing against).
func runPair(sock string) error {
	qr, err := qrcode.New(sock, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("generating QR code: %w", err)
	}
	fmt.Println(qr.ToString(false))
	fmt.Println(sock)
	return nil
}
