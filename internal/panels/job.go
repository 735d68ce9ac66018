package panels

import (
	"context"
)

// pageJob is an in-flight or finished page load.
type pageJob struct {
	ctx       context.Context
	done      chan struct{}
	page      *Page
	cancelled bool
}

func startJob(ctx context.Context, load func(context.Context) (*Page, error)) *pageJob {
	j := &pageJob{ctx: ctx, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		p, err := load(ctx)
		if err != nil {
			j.cancelled = true
			return
		}
		// a job cancelled after its last check may already have been
		// replaced in the cache, so nobody else would close the image
		if ctx.Err() != nil {
			if img := ImageOf(p.Image); img != nil {
				img.Close()
			}
			j.cancelled = true
			return
		}
		j.page = p
	}()
	return j
}

func (j *pageJob) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Cancelled reports whether the job was or is being cancelled.
func (j *pageJob) Cancelled() bool {
	if j.finished() {
		return j.cancelled
	}
	return j.ctx.Err() != nil
}

// Active reports whether the job is still running and not cancelled.
func (j *pageJob) Active() bool {
	return !j.finished() && j.ctx.Err() == nil
}

// Await waits for the job. It fails if ctx ends first or the job was
// cancelled.
func (j *pageJob) Await(ctx context.Context) (*Page, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	if j.cancelled {
		return nil, context.Canceled
	}
	return j.page, nil
}
