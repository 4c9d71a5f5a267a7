package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/templogger/internal/app"
	"codeberg.org/mutker/templogger/internal/config"
	"codeberg.org/mutker/templogger/internal/display"
	"codeberg.org/mutker/templogger/internal/instrument"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/pid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.ListPorts {
		if err := listPorts(); err != nil {
			fmt.Printf("failed to list ports: %v\n", err)
			os.Exit(1)
		}
		return
	}

	isService := logger.IsService()
	if err := logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		Console:   os.Stderr,
		Dir:       cfg.LogRoot,
		IsService: isService,
	}); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(cfg.LogRoot); err != nil {
		logger.Fatal(err)
	}

	if err := run(cfg, isService); err != nil {
		_ = pid.Remove(cfg.LogRoot)
		logger.Fatal(err)
	}

	if err := pid.Remove(cfg.LogRoot); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove pid file")
	}
	logger.Info().Msg("Exiting...")
	_ = logger.Close()
}

func run(cfg *config.Config, isService bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a, err := app.New(cfg, app.WithLogger(logger.Default()))
	if err != nil {
		return err
	}

	if cfg.Interactive {
		err = a.RunInteractive(ctx, os.Stdin, os.Stdout, display.WithClearScreen(!isService))
	} else {
		err = a.RunHeadless(ctx)
	}

	if closeErr := a.Close(); closeErr != nil {
		logger.Error().Err(closeErr).Msg("Failed to shut down cleanly")
	}

	return err
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func listPorts() error {
	ports, err := instrument.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%-28s %s:%s %s %s\n", p.Resource, p.VID, p.PID, p.SerialNumber, p.Product)
			continue
		}
		fmt.Println(p.Resource)
	}
	return nil
}
