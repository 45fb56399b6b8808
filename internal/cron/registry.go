package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled work in the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic is implemented by jobs that should run less often than every tick.
type Periodic interface {
	Every() time.Duration
}

// Registry holds the worker's jobs in run order.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends job. Nil jobs are skipped; a duplicate name is a wiring
// bug and panics, as http.ServeMux does for duplicate patterns.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if _, dup := r.index[job.Name()]; dup {
		panic(fmt.Sprintf("cron: job %q registered twice", job.Name()))
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Schedule maps each job name to its cadence, "tick" for every-tick jobs.
func (r *Registry) Schedule() map[string]string {
	out := make(map[string]string, len(r.jobs))
	for _, job := range r.jobs {
		cadence := "tick"
		if p, ok := job.(Periodic); ok {
			cadence = p.Every().String()
		}
		out[job.Name()] = cadence
	}
	return out
}
