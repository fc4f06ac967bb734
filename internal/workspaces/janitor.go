package workspaces

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Janitor purges expired invite codes on a cron schedule.
type Janitor struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
}

// NewJanitor creates a janitor running the given cron schedule
// (e.g. "@hourly").
func NewJanitor(log *slog.Logger, service *Service, schedule string) (*Janitor, error) {
	if log == nil {
		log = slog.Default()
	}
	j := &Janitor{
		cron:    cron.New(),
		service: service,
		logger:  log.With(slog.String("component", "janitor")),
	}
	if _, err := j.cron.AddFunc(schedule, j.purge); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() { j.cron.Start() }

// Stop stops the schedule and waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) purge() {
	purged, err := j.service.PurgeExpiredInvites(context.Background())
	if err != nil {
		j.logger.Warn("invite purge failed", slog.Any("error", err))
		return
	}
	if purged > 0 {
		j.logger.Info("expired invites purged", slog.Int64("count", purged))
	}
}
