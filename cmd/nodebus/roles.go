package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/config"
	"github.com/arloliu/go-nodebus/gateway"
	"github.com/arloliu/go-nodebus/internal/sim"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/report"
	"github.com/arloliu/go-nodebus/secondary"
	"github.com/arloliu/go-nodebus/store"
)

func runPrimary(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	f, hw, err := openLine(cfg.Line, l)
	if err != nil {
		return err
	}
	defer hw.Close()

	pcfg, err := primary.NewConfig(cfg.Primary.Options(l)...)
	if err != nil {
		return err
	}
	ctrl, err := primary.NewController(f, pcfg)
	if err != nil {
		return err
	}
	runner := primary.NewRunner(ctrl)

	metrics := newMetricSet()
	metrics.addFramer(f)
	metrics.addController(ctrl)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(runner.Run(gctx)) })
	if err := startUpstream(gctx, g, cfg, runner, ctrl, metrics, l); err != nil {
		return err
	}

	return g.Wait()
}

func runSecondary(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	st, err := store.OpenPebble(cfg.Secondary.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	f, hw, err := openLine(cfg.Line, l)
	if err != nil {
		return err
	}
	defer hw.Close()

	scfg, err := secondary.NewConfig(cfg.Secondary.Options(l)...)
	if err != nil {
		return err
	}
	agent, err := secondary.NewAgent(f, st, scfg)
	if err != nil {
		return err
	}
	runner := secondary.NewRunner(agent)

	metrics := newMetricSet()
	metrics.addFramer(f)
	metrics.addAgent(agent)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(runner.Run(gctx)) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.serve(gctx, cfg.Metrics.Listen, cfg.Metrics.Path, l) })
	}

	return g.Wait()
}

func runSim(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	n, err := sim.New(line.NewSystemClock(), cfg.Line.ByteTime(), l)
	if err != nil {
		return err
	}

	ctrl, err := n.AddPrimary(cfg.Primary.Options(l)...)
	if err != nil {
		return err
	}

	for i := range cfg.Sim.Nodes {
		name := fmt.Sprintf("node%d", i)

		var st store.AddressStore = store.NewMemoryStore(bus.Unassigned)
		if dir := cfg.Sim.StoreDir; dir != "" {
			ps, err := store.OpenPebble(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			defer ps.Close()
			st = ps
		}

		opts := append(cfg.Secondary.Options(l.With("node", name)), secondary.WithSeed(uint64(i)+1)) //nolint:gosec // small index
		if _, err := n.AddNode(name, st, opts...); err != nil {
			return err
		}
	}
	l.Info("nodebus: simulated line ready", "nodes", cfg.Sim.Nodes, "byte_time", cfg.Line.ByteTime().String())

	metrics := newMetricSet()
	metrics.addFramer(ctrl.Framer())
	metrics.addController(ctrl)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ignoreCanceled(n.Run(gctx))
		ctrl.Shutdown()

		return err
	})
	if err := startUpstream(gctx, g, cfg, n, ctrl, metrics, l); err != nil {
		return err
	}

	return g.Wait()
}

// startUpstream starts the gateway, reporter and metrics endpoint that the
// configuration enables on a controller.
func startUpstream(ctx context.Context, g *errgroup.Group, cfg *config.Config, t gateway.Tunneler,
	ctrl *primary.Controller, metrics *metricSet, l logger.Logger,
) error {
	if cfg.Gateway.Listen != "" {
		srv, err := gateway.NewServer(t, cfg.Gateway.Options(l)...)
		if err != nil {
			return err
		}
		if err := srv.Listen(ctx, cfg.Gateway.Listen); err != nil {
			return err
		}
		metrics.addGateway(srv)
		g.Go(func() error { return ignoreCanceled(srv.Serve(ctx)) })
	}

	if cfg.MQTT.Broker != "" {
		pub, err := report.NewMQTTPublisher(cfg.MQTT.Publisher(), l)
		if err != nil {
			return err
		}
		if err := pub.Connect(); err != nil {
			return err
		}
		rep, err := report.NewReporter(ctrl, pub, cfg.MQTT.ReporterOptions(l)...)
		if err != nil {
			pub.Close()
			return err
		}
		metrics.addReporter(rep)
		g.Go(func() error {
			defer pub.Close()
			return ignoreCanceled(rep.Run(ctx))
		})
	}

	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, l) })
	}

	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}
