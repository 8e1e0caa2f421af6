// Package webadmin implements a localhost-only operator dashboard for
// notifd: a Markdown-rendered status page listing registered triggers
// (queried from the notification thread via the command queue, the
// same path notifdctl uses) and a websocket endpoint that streams the
// daemon's event bus live.
package webadmin

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/events"
)

// Server is the admin HTTP server. It holds no trigger state of its
// own: /triggers queries the notification thread fresh on every
// request, and /stream is a thin relay onto the shared event bus.
type Server struct {
	logger *slog.Logger
	addr   string
	queue  *cmdqueue.Queue
	bus    *events.Bus

	upgrader websocket.Upgrader

	httpServer *http.Server
}

// New creates a dashboard bound to addr (expected to be a loopback
// address; notifd does not authenticate dashboard requests itself),
// streaming events published on bus.
func New(logger *slog.Logger, addr string, queue *cmdqueue.Queue, bus *events.Bus) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		addr:   addr,
		queue:  queue,
		bus:    bus,
		upgrader: websocket.Upgrader{
			// Loopback-only dashboard: same-origin checks would just
			// reject curl/local tooling for no security benefit.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe runs the dashboard's HTTP server until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/triggers", s.handleTriggers)
	mux.HandleFunc("/stream", s.handleStream)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleTriggers renders the registered-trigger list as Markdown
// (via Goldmark) and serves it as HTML. Ownership filtering is the
// same rule notifdctl's list-triggers command gets: root sees
// everything, non-root would only see its own (the dashboard always
// queries as uid 0 since it runs in-process with the daemon).
func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request) {
	reply := s.queue.Submit(&cmdqueue.Command{
		Kind:      cmdqueue.ListTriggers,
		Requester: cmdqueue.Credentials{UID: 0},
	})
	if reply.Err != nil {
		http.Error(w, reply.Err.Error(), http.StatusInternalServerError)
		return
	}

	md := renderTriggersMarkdown(reply.List)
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		s.logger.Error("webadmin: markdown render failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!doctype html><meta charset=\"utf-8\"><title>notifd triggers</title>")
	w.Write(html.Bytes())
}

// handleStream upgrades to a websocket and relays every event.Bus
// publication as a JSON line until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("webadmin: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(32)
	defer s.bus.Unsubscribe(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
