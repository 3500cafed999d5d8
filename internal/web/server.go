// Package web serves the bridge's HTTP surface: status, logs, metrics,
// receiver commands and a websocket stream of location updates.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"nmea-bridge/internal/metrics"
)

const maxCommandBytes = 512

// Commander accepts receiver commands.
type Commander interface {
	Send(cmd string)
}

type Deps struct {
	Status   *Status
	Commands Commander
	Logs     *LogBuffer
	Fixes    *FixBroadcaster
	Version  string
	Logger   *log.Logger
}

var upgrader = websocket.Upgrader{
	// The API is meant for local tools and dashboards.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Handler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if d.Status == nil {
		d.Status = NewStatus(nil, d.Version, nil)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, d.Status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !d.Status.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "stopped\n")
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})

	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if d.Commands == nil {
			http.Error(w, "commands unavailable", http.StatusNotFound)
			return
		}
		b, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		if len(b) > maxCommandBytes {
			http.Error(w, "command too long", http.StatusRequestEntityTooLarge)
			return
		}
		cmd := strings.TrimSpace(string(b))
		if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
			http.Error(w, "body must be a single non-empty command line", http.StatusBadRequest)
			return
		}
		d.Commands.Send(cmd)
		logger.Info("command queued", "cmd", cmd, "remote", r.RemoteAddr)
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "cmd": cmd})
	})

	if d.Fixes != nil {
		mux.HandleFunc("/ws/fixes", func(w http.ResponseWriter, r *http.Request) {
			serveFixes(w, r, d.Fixes, logger)
		})
	}

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	mux.Handle("/api/about", aboutHandler(d.Version))
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		http.Redirect(w, r, "/api/status", http.StatusFound)
	})

	return mux
}

func serveFixes(w http.ResponseWriter, r *http.Request, fixes *FixBroadcaster, logger *log.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	id, ch := fixes.Subscribe(8)
	defer fixes.Unsubscribe(id)
	logger.Debug("fix stream opened", "remote", r.RemoteAddr)

	// Reads only detect the peer going away.
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
			logger.Debug("fix stream closed", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case loc, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(loc); err != nil {
				logger.Debug("fix stream write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("web listening", "addr", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
