package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stonehollow/craftd/pkg/config"
	"github.com/stonehollow/craftd/pkg/log"
	"github.com/stonehollow/craftd/pkg/protocol"
	"github.com/stonehollow/craftd/pkg/server"
)

const banner = `
                  ___ _      _
  ___ _ _ __ _   / _| |_  __| |
 / __| '_/ _' | |  _|  _|/ _' |
 \___|_| \__,_| |_|  \__|\__,_|
`

func main() {
	configPath := flag.String("config", "server.json", "Path to the server configuration file")
	adminAddr := flag.String("admin", "", "Bind address for the admin status endpoint (empty = disabled)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.New(log.Options{
		Level:       log.ParseLevel(cfg.Logging.Level),
		Console:     cfg.Logging.Console,
		File:        cfg.Logging.File,
		MaxFileSize: cfg.Logging.MaxFileSize,
		MaxFiles:    cfg.Logging.MaxFiles,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	fmt.Print(banner)
	logger.Infof("%s (Minecraft %s, protocol %d)", cfg.Server.Name, protocol.VersionName, protocol.ProtocolVersion)
	logger.Infof("address %s | max players %d | view distance %d",
		cfg.Address(), cfg.Server.MaxPlayers, cfg.Server.ViewDistance)

	srv, err := server.New(cfg, *configPath, logger)
	if err != nil {
		logger.Fatalf("failed to initialize server: %v", err)
		logger.Close()
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Fatalf("failed to start server: %v", err)
		logger.Close()
		os.Exit(1)
	}

	if *adminAddr != "" {
		if ln, err := srv.StartAdmin(*adminAddr); err != nil {
			logger.Warnf("admin endpoint unavailable: %v", err)
		} else {
			defer ln.Close()
		}
	}

	// Console commands run until "stop"; a signal stops the server too.
	consoleDone := make(chan struct{})
	go func() {
		srv.RunConsole(os.Stdin, os.Stdout)
		close(consoleDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal %v, shutting down", sig)
		srv.Stop()
	case <-consoleDone:
	}
}
