// Package main provides the entry point for the SIP to OpenAI Realtime audio bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/app"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/bridge"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/infrastructure"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/media"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/realtime"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/server"
	pkginfra "github.com/Raikerian/go-sip-realtime-bridge/pkg/infrastructure"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,
		infrastructure.MetricsModule,

		// Media and remote speech
		media.Module,
		realtime.Module,

		// Call bridge and ingress
		bridge.Module,
		server.Module,

		fx.Supply(*configPath),
		fx.WithLogger(pkginfra.NewFxLogger),
	)

	if err := application.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build application: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	err := application.Start(startCtx)
	cancelStart()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start application: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	// Give active calls time to drain their remaining audio.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}
