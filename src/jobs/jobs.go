// Package jobs tracks long-running background work (the HTTP server, the
// local S3 server) so the process can cancel it and wait for a clean stop.
package jobs

import (
	"context"
	"time"

	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/rs/zerolog"
)

type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}
}

func New(name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Starts fn in a goroutine under a new Job. The job finishes when fn returns;
// a returned error or a panic is logged on the job's logger.
func Run(name string, fn func(ctx context.Context) error) *Job {
	job := New(name)
	go func() {
		defer job.Finish()

		err := func() (err error) {
			defer utils.RecoverPanicAsError(&err)
			return fn(job.Ctx)
		}()
		if err != nil {
			job.Logger.Error().Err(err).Msg("job failed")
		}
	}()
	return job
}

// Asks the job to stop by cancelling its context.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Called by the job itself once all of its work is done.
func (j *Job) Finish() *Job {
	close(j.done)
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

type Jobs []*Job

// Cancels every job and waits up to timeout for them to finish. Returns the
// names of the jobs still running when the timeout expired.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	for _, job := range jobs {
		job.Cancel()
	}

	allDone := make(chan struct{})
	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDone:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
