// Package batch plans and runs every region x policy pass once.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/sweeper/internal/sweep"
	"github.com/yairfalse/sweeper/providers"
)

// Job is one policy in one region
type Job struct {
	Policy string `json:"policy"`
	Region string `json:"region"`
}

func (j Job) String() string {
	return j.Policy + "@" + j.Region
}

// Plan expands regions x policies into jobs. Global policies run once, in globalRegion.
func Plan(regions, policies []string, globalRegion string) ([]Job, error) {
	var jobs []Job
	for _, name := range policies {
		reg, err := providers.Get(name)
		if err != nil {
			return nil, err
		}

		if reg.Global {
			jobs = append(jobs, Job{Policy: name, Region: globalRegion})
			continue
		}
		for _, region := range regions {
			jobs = append(jobs, Job{Policy: name, Region: region})
		}
	}
	return jobs, nil
}

// Result is the outcome of one job
type Result struct {
	Job
	Summary *sweep.Summary `json:"summary,omitempty"`
	Err     error          `json:"-"`
}

// Report collects the results of one batch
type Report struct {
	RunID     string        `json:"run_id"`
	Results   []Result      `json:"results"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failed returns the number of jobs that ended in error
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Totals sums deletions and errors across all passes
func (r *Report) Totals() (deleted, errs int) {
	for _, res := range r.Results {
		if res.Summary != nil {
			deleted += res.Summary.Deleted
			errs += res.Summary.Errors
		}
	}
	return deleted, errs
}

// Options configures a batch run
type Options struct {
	// Base is copied into every job; Policy, Region and DaysToDelete are set per job
	Base providers.Config
	// DaysToDelete returns the deletion deadline for a policy; nil means none
	DaysToDelete func(policy string) int
	Logger       zerolog.Logger
}

// Run executes jobs sequentially, each with its own provider, engine and runner.
// A failing job never stops the others; errors are joined.
func Run(ctx context.Context, jobs []Job, opts Options) (*Report, error) {
	report := &Report{RunID: opts.Base.RunID, StartedAt: time.Now().UTC()}
	var errs []error

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		summary, err := runJob(ctx, job, opts)
		if err != nil {
			opts.Logger.Error().Err(err).Str("job", job.String()).Msg("pass failed")
			errs = append(errs, fmt.Errorf("%s: %w", job, err))
		}
		report.Results = append(report.Results, Result{Job: job, Summary: summary, Err: err})
	}

	report.Duration = time.Since(report.StartedAt)
	opts.Logger.Info().
		Int("jobs", len(jobs)).
		Int("failed", report.Failed()).
		Dur("duration", report.Duration).
		Msg("batch finished")

	return report, errors.Join(errs...)
}

func runJob(ctx context.Context, job Job, opts Options) (*sweep.Summary, error) {
	reg, err := providers.Get(job.Policy)
	if err != nil {
		return nil, err
	}

	cfg := opts.Base
	cfg.Policy = job.Policy
	cfg.Region = job.Region
	if opts.DaysToDelete != nil {
		cfg.DaysToDelete = opts.DaysToDelete(job.Policy)
	}

	pass, err := reg.Factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build pass: %w", err)
	}
	return pass.Run(ctx)
}
