package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/frontend/tcp"
)

// Acceptor serves an HTTP endpoint that upgrades to WebSocket game
// connections and dispatches each one to a ConnHandler.
type Acceptor struct {
	cfg      config.WebsocketConfig
	handler  tcp.ConnHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server  *http.Server
	wg      sync.WaitGroup
	quit    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port and path; handler and logger
// must be non-nil.
func NewAcceptor(cfg config.WebsocketConfig, handler tcp.ConnHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// ListenAndServe starts the HTTP listener. Blocks until Stop is called.
func (a *Acceptor) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveUpgrade)

	a.mu.Lock()
	a.server = &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.running = true
	srv := a.server
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", a.cfg.Addr()),
		zap.String("path", a.cfg.Path),
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// serveUpgrade upgrades one HTTP request and runs the game connection.
func (a *Acceptor) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		start := time.Now()
		conn := NewConn(wsConn)
		defer conn.Close()

		a.logger.Info("websocket client connected",
			zap.String("remote_addr", conn.RemoteAddr()),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-a.quit:
				cancel()
				_ = conn.Close()
			case <-ctx.Done():
			}
		}()

		a.handler.HandleConn(ctx, conn)

		a.logger.Info("websocket connection closed",
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}

// Stop shuts the HTTP server down and waits for in-flight connections.
// Idempotent; calls after the first are no-ops.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	srv := a.server
	a.mu.Unlock()

	close(a.quit)
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}
