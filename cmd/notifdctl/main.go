// Package main is the entry point for notifdctl, the notification
// socket's command-line client: subscribe to live notifications,
// register or unregister triggers, list what is currently registered,
// and pair a companion display against a running daemon.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lttng/notifd/internal/buildinfo"
	"github.com/lttng/notifd/internal/config"
)

func main() {
	socketPath := flag.String("socket", "", "path to notifd's notification socket (default: resolved from config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	sock := *socketPath
	if sock == "" {
		sock = config.Default().Socket.Path
	}

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch flag.Arg(0) {
	case "subscribe":
		err = runSubscribe(logger, sock, flag.Args()[1:])
	case "list-triggers":
		err = runListTriggers(logger, sock)
	case "register":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: notifdctl register <trigger.yaml>")
			os.Exit(1)
		}
		err = runRegister(logger, sock, flag.Arg(1))
	case "unregister":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: notifdctl unregister <name>")
			os.Exit(1)
		}
		err = runUnregister(logger, sock, flag.Arg(1))
	case "pair":
		err = runPair(sock)
	case "version":
		fmt.Println(buildinfo.String())
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "notifdctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("notifdctl - notifd control client")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  subscribe <condition.yaml>   Subscribe and print notifications as they arrive")
	fmt.Println("  list-triggers                List currently registered triggers")
	fmt.Println("  register <trigger.yaml>      Register a trigger described by a YAML file")
	fmt.Println("  unregister <name>            Unregister a trigger by name")
	fmt.Println("  pair                         Print a QR code for pairing a companion display")
	fmt.Println("  version                      Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
