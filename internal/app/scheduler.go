/**
 * @description
 * Cron scheduler for the run janitor. Abandoned wizard runs live only in
 * memory, so a periodic sweep is enough to reclaim them.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the service's periodic jobs.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
}

// NewScheduler creates a scheduler running the run janitor on the given cron
// schedule (e.g. "@every 5m").
func NewScheduler(service *Service, schedule string) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{
		cron:     c,
		service:  service,
		schedule: schedule,
	}
}

// Start registers the janitor and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.expireStaleRuns); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule run janitor\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"scheduled run janitor\" schedule=%q", s.schedule)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) expireStaleRuns() {
	if expired := s.service.ExpireStaleRuns(time.Now()); expired > 0 {
		log.Printf("level=info component=scheduler op=run_janitor expired=%d", expired)
	}
}
