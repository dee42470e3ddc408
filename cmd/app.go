package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/QdPieDrury/PrismA/config"
	"github.com/QdPieDrury/PrismA/relay"
	httpServer "github.com/QdPieDrury/PrismA/server/http"
	websocketServer "github.com/QdPieDrury/PrismA/server/websocket"
	"github.com/QdPieDrury/PrismA/service"
	store "github.com/QdPieDrury/PrismA/storage/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
	fs.StringP("ws-listen-addr", "w", ":8888", "websocket relay listen address")
	fs.StringP("log-level", "l", "debug", "log level")
	fs.Duration("room-expiry", config.DefaultRoomExpiry, "room inactivity window")
	fs.String("static-dir", "./public", "static content directory")
	fs.String("ws-base-url", "ws://localhost:8888", "advertised websocket base url")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	memStore := store.NewMemStore(cfg.RoomExpiry, &logger)
	svc := service.NewService(service.Config{
		RoomStore: memStore,
		Relay:     relay.NewRelay(memStore, &logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.APIListenAddr,
		WSBaseURL:   cfg.WSBaseURL,
		StaticDir:   cfg.StaticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		RelayService: svc,
		ListenAddr:   cfg.WSListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
