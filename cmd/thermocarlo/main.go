package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/thermocarlo/cmd/app"
	httpctrl "github.com/Agrid-Dev/thermocarlo/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/thermocarlo/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/thermocarlo/internal/controllers/mqtt"
	"github.com/Agrid-Dev/thermocarlo/internal/logger"
	"github.com/Agrid-Dev/thermocarlo/internal/metrics"
	"github.com/Agrid-Dev/thermocarlo/internal/publish"
	"github.com/Agrid-Dev/thermocarlo/internal/service"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/store"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

func main() {
	var (
		configPath string
		serve      bool
		format     string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.BoolVar(&serve, "serve", false, "run the enabled controllers instead of a one-shot benchmark")
	flag.StringVar(&format, "format", "text", "benchmark output format: text, yaml or json")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Benchmark results own stdout.
	console := io.Writer(os.Stdout)
	if !serve {
		console = os.Stderr
	}
	lg, closer, err := logger.NewTo(cfg.Logging, console)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()
	slog.SetDefault(lg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, lg, serve, format); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("thermocarlo exited", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config, lg *slog.Logger, serve bool, format string) error {
	model, err := thermal.New(cfg.ModelParams())
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	driver, err := simulation.NewDriver(model, cfg.EvaluatorConfig(), simulation.WithLogger(lg))
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	defaults, err := cfg.Request()
	if err != nil {
		return err
	}

	if !serve {
		return app.RunBench(ctx, driver, defaults, cfg.InstanceID, os.Stdout, format)
	}
	return serveControllers(ctx, cfg, lg, driver, defaults)
}

func serveControllers(ctx context.Context, cfg app.Config, lg *slog.Logger, driver *simulation.Driver, defaults simulation.Request) error {
	m := metrics.New()
	opts := []service.Option{service.WithLogger(lg), service.WithRecorder(m)}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if cfg.Store.Enabled {
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		closers = append(closers, st)
		opts = append(opts, service.WithStore(st))
		lg.Info("report store enabled", "driver", cfg.Store.Driver)
	}
	if cfg.Kafka.Enabled {
		pub, err := publish.NewKafka(publish.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, lg)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		closers = append(closers, pub)
		opts = append(opts, service.WithPublisher(pub))
		lg.Info("kafka publisher enabled", "topic", cfg.Kafka.Topic)
	}

	svc, err := service.New(cfg.InstanceID, driver, defaults, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	started := 0

	if c := cfg.Controllers.HTTP; c.Enabled {
		httpOpts := []httpctrl.Option{httpctrl.WithLogger(lg)}
		if c.Metrics {
			httpOpts = append(httpOpts, httpctrl.WithMetrics(m.Handler()))
		}
		srv := httpctrl.New(svc, c.Addr, cfg.InstanceID, httpOpts...)
		lg.Info("http controller listening", "addr", c.Addr)
		g.Go(func() error { return srv.Run(gctx) })
		started++
	}
	if c := cfg.Controllers.MQTT; c.Enabled {
		ctrl, err := mqttctrl.New(svc, mqttctrl.Config{
			InstanceID:      cfg.InstanceID,
			BrokerURL:       c.BrokerURL,
			ClientID:        c.ClientID,
			BaseTopic:       c.BaseTopic,
			QoS:             c.QoS,
			RetainReport:    c.RetainReport,
			PublishInterval: c.PublishInterval,
			Username:        c.Username,
			Password:        c.Password,
			Logger:          lg,
		})
		if err != nil {
			return err
		}
		lg.Info("mqtt controller connecting", "broker", c.BrokerURL)
		g.Go(func() error { return ctrl.Run(gctx) })
		started++
	}
	if c := cfg.Controllers.Modbus; c.Enabled {
		ctrl, err := modbusctrl.New(svc, modbusctrl.Config{
			InstanceID: cfg.InstanceID,
			Addr:       c.Addr,
			UnitID:     c.UnitID,
			Logger:     lg,
		})
		if err != nil {
			return err
		}
		lg.Info("modbus controller listening", "addr", c.Addr)
		g.Go(func() error { return ctrl.Run(gctx) })
		started++
	}

	if started == 0 {
		return errors.New("no controller enabled")
	}
	return g.Wait()
}
