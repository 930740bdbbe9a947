package pipeline

import (
	"context"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"golang.org/x/sync/singleflight"
)

// Runner collapses overlapping triggers in one process into a single run.
// Callers that arrive while a run is active receive that run's summary.
type Runner struct {
	engine *Engine
	group  singleflight.Group
}

func NewRunner(engine *Engine) *Runner {
	return &Runner{engine: engine}
}

func (r *Runner) Run(ctx context.Context) (*jobs.RunSummary, error) {
	v, err, _ := r.group.Do("run", func() (any, error) {
		return r.engine.Run(ctx)
	})
	summary, _ := v.(*jobs.RunSummary)
	return summary, err
}
