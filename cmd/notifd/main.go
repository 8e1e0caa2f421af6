// Package main is the entry point for notifd, the notification and
// trigger daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/lttng/notifd/internal/audit"
	"github.com/lttng/notifd/internal/buildinfo"
	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/config"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/mqttbridge"
	"github.com/lttng/notifd/internal/notifengine"
	"github.com/lttng/notifd/internal/rotation"
	"github.com/lttng/notifd/internal/webadmin"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgPath, err := config.FindConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting notifd", "version", buildinfo.String(), "config", cfgPath, "socket", cfg.Socket.Path)

	mode := os.FileMode(0600)
	if cfg.Socket.SystemWide {
		mode = 0660
	}
	listener, err := client.Listen(cfg.Socket.Path, mode)
	if err != nil {
		logger.Error("failed to listen on notification socket", "path", cfg.Socket.Path, "error", err)
		os.Exit(1)
	}
	defer client.Teardown(cfg.Socket.Path)

	queue := cmdqueue.New()
	engine := notifengine.New(logger, listener, queue, credentialsOf)

	bus := events.New()
	engine.SetEventBus(bus)

	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditLog, err = audit.Open(cfg.Audit.DBPath)
		if err != nil {
			logger.Error("failed to open audit log", "path", cfg.Audit.DBPath, "error", err)
			os.Exit(1)
		}
		defer auditLog.Close()
		engine.SetAuditLog(auditLog)
		logger.Info("audit log enabled", "path", cfg.Audit.DBPath)
	}

	var admin *webadmin.Server
	if cfg.WebAdmin.Enabled {
		admin = webadmin.New(logger, cfg.WebAdmin.Address, queue, bus)
		logger.Info("admin dashboard enabled", "address", cfg.WebAdmin.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Run(ctx)

	if admin != nil {
		go func() {
			if err := admin.ListenAndServe(ctx); err != nil {
				logger.Error("admin dashboard failed", "error", err)
			}
		}()
	}

	if rotConn := startRotation(ctx, logger, cfg, queue, bus); rotConn != nil {
		defer rotConn.Close()
	}

	if cfg.MQTT.Enabled {
		go startMQTTBridge(ctx, logger, cfg, queue, bus)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	logger.Info("notifd stopped")
}

// credentialsOf retrieves a newly accepted connection's peer
// credentials via SO_PEERCRED.
func credentialsOf(conn net.Conn) (int, int, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, 0, fmt.Errorf("notifd: not a unix socket connection")
	}
	return client.PeerCredentials(uc)
}

// startRotation dials the notification socket as a regular client and
// runs the rotation thread against it, using a purely local rotator
// (no relay daemon integration exists yet; see DESIGN.md). Every
// session declared under rotation.sessions in the config is
// registered with the thread so it actually has something to rotate;
// an empty list leaves the thread running with nothing to do.
func startRotation(ctx context.Context, logger *slog.Logger, cfg *config.Config, queue *cmdqueue.Queue, bus *events.Bus) net.Conn {
	conn, err := net.Dial("unix", cfg.Socket.Path)
	if err != nil {
		logger.Error("rotation: failed to dial notification socket", "error", err)
		return nil
	}

	jobs := rotation.NewJobQueue()
	rotator := &rotation.LocalRotator{TracePath: "./traces"}
	thread := rotation.New(logger, jobs, queue, rotator, rotator, conn)
	thread.SetEventBus(bus)

	if len(cfg.Rotation.Sessions) == 0 {
		logger.Warn("rotation: no sessions declared in rotation.sessions; rotation thread will never fire")
	}
	for _, sc := range cfg.Rotation.Sessions {
		sess := &rotation.SessionState{
			ID:                     sc.ID,
			ConsumedThresholdBytes: sc.ConsumedThresholdBytes,
			RotateSizeBytes:        sc.RotateSizeBytes,
			RecheckInterval:        cfg.Rotation.CheckPendingInterval.AsDuration(),
		}
		if err := thread.RegisterSession(sess); err != nil {
			logger.Error("rotation: failed to register session", "session", sc.ID, "error", err)
			continue
		}
		logger.Info("rotation: session registered", "session", sc.ID, "consumed_threshold_bytes", sc.ConsumedThresholdBytes, "rotate_size_bytes", sc.RotateSizeBytes)
	}

	go thread.Run(ctx)
	logger.Info("rotation thread started", "recheck_interval", cfg.Rotation.CheckPendingInterval.AsDuration(), "sessions", len(cfg.Rotation.Sessions))
	return conn
}

// startMQTTBridge dials the notification socket, resolves the
// configured trigger names against whatever is currently registered,
// and bridges their notifications onto MQTT. Triggers registered
// after startup are not retroactively picked up (see DESIGN.md).
func startMQTTBridge(ctx context.Context, logger *slog.Logger, cfg *config.Config, queue *cmdqueue.Queue, bus *events.Bus) {
	conn, err := net.Dial("unix", cfg.Socket.Path)
	if err != nil {
		logger.Error("mqttbridge: failed to dial notification socket", "error", err)
		return
	}
	defer conn.Close()

	reply := queue.Submit(&cmdqueue.Command{Kind: cmdqueue.ListTriggers, Requester: cmdqueue.Credentials{UID: 0}})
	if reply.Err != nil {
		logger.Error("mqttbridge: failed to list triggers", "error", reply.Err)
		return
	}

	wanted := make(map[string]bool, len(cfg.MQTT.Conditions))
	for _, name := range cfg.MQTT.Conditions {
		wanted[name] = true
	}

	var subs []mqttbridge.Subscription
	for _, t := range reply.List {
		if wanted[t.Name] {
			subs = append(subs, mqttbridge.Subscription{Condition: t.Condition, TriggerName: t.Name})
		}
	}
	if len(subs) == 0 {
		logger.Warn("mqttbridge: no configured trigger names matched currently-registered triggers")
	}

	bridge := mqttbridge.New(mqttbridge.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
	}, conn, subs, logger)
	bridge.SetEventBus(bus)

	if err := bridge.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mqttbridge: stopped", "error", err)
	}
}
