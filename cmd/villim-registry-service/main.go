// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/seongminnpark/Villim/lib/archive"
	"github.com/seongminnpark/Villim/lib/clock"
	"github.com/seongminnpark/Villim/lib/config"
	"github.com/seongminnpark/Villim/lib/registry"
	"github.com/seongminnpark/Villim/lib/service"
	"github.com/seongminnpark/Villim/lib/token"
	"github.com/seongminnpark/Villim/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("villim-registry-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to villim.yaml (overrides VILLIM_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("villim-registry-service %s\n", version.Info())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	// The token authority keypair signs caller tokens for this
	// registry. Generated on first boot, persisted across restarts
	// so outstanding tokens stay valid.
	publicKey, _, generated, err := token.LoadOrGenerateKeypair(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("loading token authority keypair: %w", err)
	}
	if generated {
		logger.Info("token authority keypair generated", "state_dir", cfg.StateDir)
	}

	owner, err := cfg.OwnerPrincipal()
	if err != nil {
		return err
	}

	resolver, err := cfg.DirectoryResolver()
	if err != nil {
		return err
	}

	clk := clock.Real()

	fanout := newSubscriberFanout(logger)
	reg, err := registry.New(owner, registry.Options{
		Directory: resolver,
		Notifier:  fanout,
	})
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}

	// Bind the device-ownership collaborator at startup when it is
	// configured. Binding through the owner keeps the runtime
	// bind-device-service action and the config path on the same
	// authority check.
	if cfg.Services.DeviceService != "" {
		if err := reg.BindDeviceService(cfg.Services.DeviceService, owner); err != nil {
			return fmt.Errorf("binding device service %q: %w", cfg.Services.DeviceService, err)
		}
		logger.Info("device service bound",
			"service_code", cfg.Services.DeviceService,
			"principal", reg.DeviceService(),
		)
	}

	store, err := archive.OpenStore(archive.StoreConfig{
		Path:   cfg.Archive.DatabasePath,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening archive store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing archive store", "error", err)
		}
	}()

	registryService := &RegistryService{
		registry:         reg,
		archive:          store,
		fanout:           fanout,
		snapshotPath:     cfg.Archive.SnapshotPath,
		snapshotInterval: cfg.Archive.SnapshotInterval,
		clock:            clk,
		startedAt:        clk.Now(),
		logger:           logger,
	}

	authConfig := &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  token.Audience,
		Blacklist: token.NewBlacklist(),
		Clock:     clk,
	}

	socketServer := service.NewSocketServer(cfg.SocketPath, logger, authConfig)
	registryService.registerActions(socketServer)
	socketServer.RegisterRevocationHandler()

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	if cfg.Archive.SnapshotInterval > 0 {
		go registryService.runSnapshotLoop(ctx)
	}

	logger.Info("registry service running",
		"socket", cfg.SocketPath,
		"owner", owner,
		"snapshot_interval", cfg.Archive.SnapshotInterval,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain active connections.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	return nil
}
