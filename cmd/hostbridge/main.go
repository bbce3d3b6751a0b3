// Command hostbridge runs a page session against a simulated or remote
// native client: it resolves every facade object, relays host signals onto
// the page bus, and serves status, events and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/hostbridge/internal/config"
	"github.com/R3E-Network/hostbridge/internal/engine/bridge"
	"github.com/R3E-Network/hostbridge/internal/engine/events"
	"github.com/R3E-Network/hostbridge/internal/engine/loop"
	enginemetrics "github.com/R3E-Network/hostbridge/internal/engine/metrics"
	"github.com/R3E-Network/hostbridge/internal/engine/relay"
	"github.com/R3E-Network/hostbridge/internal/engine/remote"
	"github.com/R3E-Network/hostbridge/internal/facade/desktopservices"
	"github.com/R3E-Network/hostbridge/internal/facade/dirtybits"
	"github.com/R3E-Network/hostbridge/internal/facade/igo"
	"github.com/R3E-Network/hostbridge/internal/facade/onlinestatus"
	"github.com/R3E-Network/hostbridge/internal/facade/user"
	"github.com/R3E-Network/hostbridge/internal/host/gojahost"
	"github.com/R3E-Network/hostbridge/internal/host/wshost"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

const demoDelay = 300 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file (default "+config.DefaultPath+")")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFromPath(*configPath)
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New("hostbridge", cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.WithError(err).Fatal("hostbridge stopped")
	}
	lg.Info("hostbridge stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	sched := loop.New(lg.Named("loop"))
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			lg.WithError(err).Warn("scheduler stopped with error")
		}
	}()

	env, closeHost, err := openHost(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeHost()

	lg.WithField("host", cfg.Host.Kind).WithField("resolve_window", cfg.ResolveWindow()).Info("starting page session")
	collector := enginemetrics.NewCollector(cfg.Metrics.Namespace)
	eventLog := events.NewRingBuffer(cfg.Bridge.EventBufferSize)
	rt := bridge.NewRuntime(env, sched, cfg.Runtime(),
		bridge.WithLogger(lg.Named("bridge")),
		bridge.WithEventLogger(eventLog),
		bridge.WithMetricsCollector(collector),
	)
	defer rt.Close()

	unsubscribe := eventLog.SubscribeFiltered(
		events.OfType(events.EventObjectResolved, events.EventObjectUnavailable, events.EventSignalRelayed),
		func(e events.Event) {
			entry := lg.WithField("event", string(e.Type))
			if e.Object != "" {
				entry = entry.WithField("object", e.Object)
			}
			if e.Signal != "" {
				entry = entry.WithField("signal", e.Signal)
			}
			if e.Error != "" {
				entry = entry.WithField("error", e.Error)
			}
			entry.Info("bridge event")
		})
	defer unsubscribe()

	if err := relay.Install(rt, cfg.Relays); err != nil {
		return fmt.Errorf("install relays: %w", err)
	}
	startSession(rt, lg)

	server := &http.Server{
		Addr:         cfg.Metrics.Listen,
		Handler:      newRouter(rt, collector.Registry()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		lg.WithField("addr", cfg.Metrics.Listen).Info("status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	uptime := time.NewTicker(15 * time.Second)
	defer uptime.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-serveErr:
			return fmt.Errorf("status server: %w", err)
		case <-uptime.C:
			collector.UpdateUptime()
		}
	}
}

// openHost builds the configured environment. A nil environment means no
// client at all: every object fails with bridge.ErrHostNotAvailable.
func openHost(ctx context.Context, cfg *config.Config, lg *logger.Logger) (remote.Environment, func(), error) {
	switch cfg.Host.Kind {
	case config.HostMemory:
		return demoNamespace(demoDelay, lg.Named("demo")), func() {}, nil

	case config.HostGoja:
		h := gojahost.New(gojahost.WithLogger(lg.Named("gojahost").With("script", cfg.Host.Script)))
		h.Start()
		if err := h.LoadFile(cfg.Host.Script); err != nil {
			h.Stop()
			return nil, nil, err
		}
		return h, h.Stop, nil

	case config.HostWebSocket:
		c, err := wshost.Dial(ctx, cfg.Host.URL,
			wshost.WithLogger(lg.Named("wshost").With("url", cfg.Host.URL)),
			wshost.WithHandshakeTimeout(cfg.Host.HandshakeTimeout),
		)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				lg.WithError(err).Warn("host connection closed with error")
			}
		}, nil

	default:
		lg.Warn("no host configured, every remote object will be unavailable")
		return nil, func() {}, nil
	}
}

// startSession creates every facade the way a page does on load and logs
// what the client reports once it answers.
func startSession(rt *bridge.Runtime, lg *logger.Logger) {
	status := onlinestatus.Get(rt)
	usr := user.Get(rt)
	desktopservices.Get(rt)
	igo.Get(rt)
	bits := dirtybits.Get(rt)

	status.IsOnline().OnSettle(func(online bool, err error) {
		if err != nil {
			lg.WithError(err).Warn("online status unavailable")
			return
		}
		lg.WithField("online", online).Info("online status")
	})
	usr.Info().OnSettle(func(info user.Info, err error) {
		if err != nil {
			lg.WithError(err).Warn("user info unavailable")
			return
		}
		lg.WithField("user", info.UserID).WithField("country", info.Country).Info("user signed in")
	})
	bits.Contexts().OnSettle(func(contexts []string, err error) {
		if err != nil || len(contexts) == 0 {
			return
		}
		for _, c := range contexts {
			name := c
			bits.Subscribe(name, func(data interface{}) {
				lg.WithField("context", name).WithField("data", data).Info("dirty bits update")
			})
		}
		bits.Connect()
	})
}
