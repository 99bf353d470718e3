package schedule

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled pricing run.
type Job func(ctx context.Context) error

// Runner executes a job on a cron schedule until the context ends.
// Overlapping runs are skipped: if a crawl is still going when the next
// tick fires, the tick is dropped.
type Runner struct {
	spec string
	job  Job
}

// New validates the cron expression up front.
func New(spec string, job Job) (*Runner, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule: parsing %q: %w", spec, err)
	}
	return &Runner{spec: spec, job: job}, nil
}

// Run blocks until ctx is done, firing the job on schedule.
func (r *Runner) Run(ctx context.Context) error {
	running := make(chan struct{}, 1)

	c := cron.New()
	_, err := c.AddFunc(r.spec, func() {
		select {
		case running <- struct{}{}:
		default:
			log.Printf("schedule: previous run still in progress, skipping tick")
			return
		}
		defer func() { <-running }()

		if err := r.job(ctx); err != nil {
			log.Printf("schedule: run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	c.Start()
	log.Printf("schedule: running on %q", r.spec)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return ctx.Err()
}
