// Package janitor runs the periodic maintenance sweeps: session TTL, task
// retention and permission expiry. It never sits on a request path; every
// registry also converges lazily on read.
package janitor

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ferrybot/ferry/internal/events"
	"github.com/ferrybot/ferry/internal/permissions"
	"github.com/ferrybot/ferry/internal/sessions"
	"github.com/ferrybot/ferry/internal/tasks"
)

// Config wires the janitor to the registries it sweeps.
type Config struct {
	Sessions    *sessions.Manager
	Tasks       *tasks.Registry
	Permissions *permissions.Registry
	Bus         *events.Bus

	SessionTTL    time.Duration
	TaskRetention time.Duration

	Logger *slog.Logger
}

// Janitor schedules the sweeps on a cron runner.
type Janitor struct {
	cfg  Config
	cron *cron.Cron
	log  *slog.Logger
}

// New creates a janitor. Call Start to begin sweeping.
func New(cfg Config) *Janitor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		cfg:  cfg,
		cron: cron.New(),
		log:  log.With("component", "janitor"),
	}
}

// Start registers the sweep schedule and starts the cron runner.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@every 1m", j.SweepPermissions); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc("@every 10m", j.SweepTasks); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc("@every 10m", j.SweepSessions); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron runner. Running sweeps finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// SweepPermissions expires stale pending requests and purges resolved ones
// past retention.
func (j *Janitor) SweepPermissions() {
	if j.cfg.Permissions == nil {
		return
	}
	if n := j.cfg.Permissions.ExpireStale(); n > 0 {
		j.log.Info("expired stale permission requests", "count", n)
	}
	if j.cfg.TaskRetention > 0 {
		if n := j.cfg.Permissions.PurgeResolved(j.cfg.TaskRetention); n > 0 {
			j.log.Info("purged resolved permission requests", "count", n)
		}
	}
}

// SweepTasks removes terminal tasks past retention.
func (j *Janitor) SweepTasks() {
	if j.cfg.Tasks == nil || j.cfg.TaskRetention <= 0 {
		return
	}
	if n := j.cfg.Tasks.PurgeOld(j.cfg.TaskRetention); n > 0 {
		j.log.Info("purged old tasks", "count", n)
	}
}

// SweepSessions drops idle chat-session bindings and announces each expiry.
func (j *Janitor) SweepSessions() {
	if j.cfg.Sessions == nil || j.cfg.SessionTTL <= 0 {
		return
	}
	expired := j.cfg.Sessions.SweepExpired(j.cfg.SessionTTL)
	for _, chatID := range expired {
		if j.cfg.Bus != nil {
			j.cfg.Bus.Publish(events.NewTypedEvent(events.SourceJanitor, events.SessionExpiredPayload{
				ChatID:    chatID,
				SessionID: sessions.DeriveID(chatID),
			}))
		}
	}
	if len(expired) > 0 {
		j.log.Info("expired idle sessions", "count", len(expired))
	}
}
