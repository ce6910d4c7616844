package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pacekit/internal/admin"
	"pacekit/internal/config"
	"pacekit/internal/eventbus"
	"pacekit/internal/journal"
	"pacekit/internal/registry"
	logx "pacekit/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./pacerd.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(cfg.Logging.ToLogx())
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := openJournal(cfg, log)
	if err != nil {
		log.Error("journal open failed", logx.Err(err))
		os.Exit(1)
	}

	reg := registry.New(log, bus)
	if err := reg.Apply(cfg); err != nil {
		log.Error("limiter setup failed", logx.Err(err))
		os.Exit(1)
	}

	adm := admin.New(log, reg)
	adm.Apply(ctx, cfg.Admin)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		journal.RunWriter(ctx, bus, store, log.With(logx.String("comp", "journal")))
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mgr.Watch(ctx)
	}()

	updates := mgr.Subscribe(4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				log.Info("applying reloaded config")
				logSvc.Apply(next.Logging.ToLogx())
				if err := reg.Apply(next); err != nil {
					log.Warn("limiter reload failed", logx.Err(err))
				}
				adm.Apply(ctx, next.Admin)
				bus.Publish(eventbus.Event{Topic: eventbus.TopicReloaded})
			}
		}
	}()

	notifySystemd(ctx, &wg, log)

	log.Info("pacerd started",
		logx.Int("limiters", len(cfg.Limiters)),
		logx.String("config", cfgPath),
	)

	<-ctx.Done()
	log.Info("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Bounded shutdown so a long-running pprof request cannot hold the
	// process open.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	adm.Stop(stopCtx)
	stopCancel()
	reg.Close()
	wg.Wait()
	mgr.Unsubscribe(updates)
	if store != nil {
		_ = store.Close()
	}
	log.Info("bye")
}

func openJournal(cfg *config.Config, log logx.Logger) (journal.Store, error) {
	if cfg.Journal == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return journal.Open(journal.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "journal")))
}

// notifySystemd sends readiness and, when the unit configures WatchdogSec,
// keeps the watchdog fed until shutdown. Outside systemd both are no-ops.
func notifySystemd(ctx context.Context, wg *sync.WaitGroup, log logx.Logger) {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		log.Debug("systemd readiness notified")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
