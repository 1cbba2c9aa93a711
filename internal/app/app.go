// Package app wires configuration into the running services and owns their
// start/stop order. It is the supervisor layer: everything long-lived runs
// under one runtime supervisor, and shutdown gives each component a bounded
// slice of the remaining deadline so no single stall can hang the process.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ircwatch/internal/config"
	"ircwatch/internal/eventbus"
	"ircwatch/internal/health"
	"ircwatch/internal/irc"
	"ircwatch/internal/metrics"
	"ircwatch/internal/notify"
	rtsup "ircwatch/internal/runtime/supervisor"
	"ircwatch/internal/trigger"
	logx "ircwatch/pkg/logx"
)

type App struct {
	cfg config.Config

	logSvc *logx.Service
	log    logx.Logger
	bus    eventbus.Bus

	session  *irc.Session
	notifier *notify.Service
	probe    *health.Server

	sup *rtsup.Supervisor

	version string
}

// New builds the full object graph from an already-validated config.
// Nothing connects or listens until Start.
func New(cfg config.Config, version string) (*App, error) {
	logSvc, log := logx.New(logx.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   logx.FileConfig{Path: cfg.Log.File},
	})

	bus := eventbus.New()

	matcher, err := trigger.NewMatcher(cfg.Trigger.Phrase, cfg.Trigger.CaseSensitive)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	gate := trigger.NewGate(cfg.Trigger.Cooldown)

	client := notify.NewClient(cfg.Pushover.Endpoint, cfg.Pushover.AppToken, cfg.Pushover.UserKey)
	notifier := notify.NewService(notify.Config{
		Timeout:   cfg.Notify.Timeout,
		QueueSize: cfg.Notify.QueueSize,
		Title:     cfg.Notify.Title,
		Format:    cfg.Notify.Message,
		URL:       cfg.Notify.URL,
		URLTitle:  cfg.Notify.URLTitle,
	}, client, log.With(logx.String("svc", "notify")), bus)

	session, err := irc.New(irc.Options{
		Server:             cfg.IRC.Server,
		Port:               cfg.IRC.Port,
		TLS:                cfg.IRC.TLS,
		Nickname:           cfg.IRC.Nickname,
		Realname:           cfg.IRC.Realname,
		Channel:            cfg.IRC.Channel,
		DialTimeout:        cfg.IRC.DialTimeout,
		KeepaliveTimeout:   cfg.IRC.KeepaliveTimeout,
		BackoffMin:         cfg.IRC.BackoffMin,
		BackoffMax:         cfg.IRC.BackoffMax,
		BackoffStableReset: cfg.IRC.BackoffStableReset,
	}, matcher, gate, notifier, log.With(logx.String("svc", "irc")), bus)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	probe := health.NewServer(health.Config{Addr: cfg.Health.Addr},
		session.Snapshot, version, log.With(logx.String("svc", "health")))

	return &App{
		cfg:      cfg,
		logSvc:   logSvc,
		log:      log,
		bus:      bus,
		session:  session,
		notifier: notifier,
		probe:    probe,
		version:  version,
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Start brings services up in dependency order: observers and the notify
// pipeline first, then the probe surface, then the session itself.
func (a *App) Start(ctx context.Context) error {
	a.log.Info("starting",
		logx.String("version", a.version),
		logx.String("server", a.cfg.IRC.Server),
		logx.String("channel", a.cfg.IRC.Channel),
	)

	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log))

	obs := metrics.NewObserver(a.bus)
	a.sup.Go("metrics.observer", obs.Run)

	a.notifier.Start(a.sup.Context())

	if err := a.probe.Start(); err != nil {
		a.sup.Cancel()
		a.notifier.Stop(ctx)
		return fmt.Errorf("health server: %w", err)
	}

	a.sup.Go("irc.session", a.session.Run)

	a.notifySystemd(daemon.SdNotifyReady)
	a.startWatchdog()

	a.log.Info("started")
	return nil
}

// Stop unwinds in reverse start order. Each step gets a bounded slice of
// the caller's deadline so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.notifySystemd(daemon.SdNotifyStopping)

	// Cancel first so the session closes its socket and loops unwind
	// while the bounded steps run.
	a.sup.Cancel()

	a.stopStep(ctx, "health", 2*time.Second, func(c context.Context) error {
		a.probe.Stop(c)
		return nil
	})
	a.stopStep(ctx, "notify", 2*time.Second, func(c context.Context) error {
		a.notifier.Stop(c)
		return nil
	})
	a.stopStep(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	err := a.logSvc.Close()
	return err
}

func (a *App) stopStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && stepCtx.Err() == nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("after", time.Since(start)),
		)
	}
}

// notifySystemd is a no-op outside a systemd unit with Type=notify.
func (a *App) notifySystemd(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
}

// startWatchdog pings systemd at half the configured WatchdogSec. When no
// watchdog is configured, the interval comes back zero and nothing runs.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	interval /= 2
	a.log.Info("systemd watchdog active", logx.Duration("interval", interval))

	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
