// Package main provides the game server binary that matches players
// and relays game traffic over TCP and WebSocket frontends.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/frontend/tcp"
	"github.com/cory-johannsen/runnerduel/internal/frontend/ws"
	"github.com/cory-johannsen/runnerduel/internal/gameserver"
	"github.com/cory-johannsen/runnerduel/internal/observability"
	"github.com/cory-johannsen/runnerduel/internal/server"
	"github.com/cory-johannsen/runnerduel/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	noConsole := flag.Bool("no-console", false, "disable the admin console on stdin")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("tcp_addr", cfg.Server.Addr()),
		zap.Bool("websocket", cfg.Websocket.Enabled),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	repo := postgres.NewPlayerRepository(pool.DB())

	srv := gameserver.NewServer(cfg, repo, logger)
	tcpAcceptor := tcp.NewAcceptor(cfg.Server, srv, logger)

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("tcp", &server.FuncService{
		StartFn: tcpAcceptor.ListenAndServe,
		StopFn:  tcpAcceptor.Stop,
	})

	if cfg.Websocket.Enabled {
		wsAcceptor := ws.NewAcceptor(cfg.Websocket, srv, logger)
		lifecycle.Add("websocket", &server.FuncService{
			StartFn: wsAcceptor.ListenAndServe,
			StopFn:  wsAcceptor.Stop,
		})
	}

	lifecycle.Add("matchmaker", &server.FuncService{
		StartFn: srv.RunMatchLoop,
		StopFn:  srv.Stop,
	})

	if !*noConsole {
		console := gameserver.NewConsole(srv, repo, cancel, logger)
		lifecycle.Add("console", &server.FuncService{
			StartFn: func() error {
				return console.Run(ctx, os.Stdin, os.Stdout)
			},
			StopFn: func() {},
		})
	}

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(30 * time.Second):
				}
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("tcp_addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
