// Command arangod is the process entrypoint: it loads configuration, wires
// every subsystem together through internal/httpserver, and serves until
// interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit/memlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/powellke/arangodb/internal/config"
	"github.com/powellke/arangodb/internal/httpserver"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/obsmetrics"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	log := obslog.For(obslog.CategoryConfig)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	obsmetrics.MustRegister(prometheus.DefaultRegisterer)

	srv, err := httpserver.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct server")
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("failed to start listening")
	}

	obslog.For(obslog.CategoryHTTPServer).Info().Str("instance_id", httpserver.InstanceID).Msg("arangod started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	obslog.For(obslog.CategoryHTTPServer).Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}
