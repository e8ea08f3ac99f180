// Command nodebus runs one end of a polled multidrop serial bus.
//
// Usage:
//
//	nodebus -config nodebus.yaml
//
// The role key of the configuration selects what runs:
//
//	primary    - the bus controller on line.device, with an optional TCP
//	             gateway, MQTT membership reporter and metrics endpoint
//	secondary  - a node agent on line.device; its address is kept in pebble
//	             under secondary.store_path
//	sim        - a controller and sim.nodes agents on an in-memory bus
//
// line.device is a serial port path, or "tcp://host:port" for a line carried
// over TCP as 2-byte symbols.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-nodebus/config"
	"github.com/arloliu/go-nodebus/logger"
)

func main() {
	cfgPath := flag.String("config", "nodebus.yaml", "path of the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.NewSlog(logger.ParseLevel(cfg.Log.Level), cfg.Log.AddSource)
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("nodebus: starting", "role", cfg.Role, "config", *cfgPath)

	switch cfg.Role {
	case config.RolePrimary:
		err = runPrimary(ctx, cfg, log)
	case config.RoleSecondary:
		err = runSecondary(ctx, cfg, log)
	case config.RoleSim:
		err = runSim(ctx, cfg, log)
	}

	reportStop(ctx, log, cfg.Role, err)
}

// reportStop logs how a role ended. An error that was not caused by
// cancellation is fatal.
func reportStop(ctx context.Context, l logger.Logger, role string, err error) {
	if err != nil && ctx.Err() == nil {
		// A line fault such as a receive overrun cannot be recovered in process.
		l.Fatal("nodebus: stopped", "role", role, "error", err)
	} else {
		l.Info("nodebus: stopped", "role", role)
	}
}
