package pagerank

import (
	"context"
	"sync"
)

// executorCallbacks encapsulates a series of callbacks that are invoked by
// an executor while iterating. Callbacks are optional.
type executorCallbacks struct {
	// preStep, if defined, is invoked before running the next step.
	preStep func(ctx context.Context, step int) error

	// postStep, if defined, is invoked after running a step.
	postStep func(ctx context.Context, step int) error

	// postStepKeepRunning, if defined, is invoked after running a step to
	// decide whether the stop condition for terminating the run has been met.
	postStepKeepRunning func(ctx context.Context, step int) (bool, error)
}

func patchEmptyCallbacks(cb *executorCallbacks) {
	if cb.preStep == nil {
		cb.preStep = func(context.Context, int) error { return nil }
	}
	if cb.postStep == nil {
		cb.postStep = func(context.Context, int) error { return nil }
	}
	if cb.postStepKeepRunning == nil {
		cb.postStepKeepRunning = func(context.Context, int) (bool, error) { return true, nil }
	}
}

// executor drives a step function until an error occurs, the context
// expires, a callback asks it to stop or a maximum number of steps is
// reached.
type executor struct {
	stepFn func() error
	cb     executorCallbacks
	step   int
}

func newExecutor(stepFn func() error, cb executorCallbacks) *executor {
	patchEmptyCallbacks(&cb)
	return &executor{stepFn: stepFn, cb: cb}
}

// runSteps executes at most maxSteps steps. A negative maxSteps runs until
// one of the other stop conditions is met.
func (ex *executor) runSteps(ctx context.Context, maxSteps int) error {
	var (
		err         error
		keepRunning bool
		cb          = ex.cb
	)
	for ; maxSteps != 0; maxSteps-- {
		ex.step++
		if err = ensureContextNotExpired(ctx); err != nil {
			break
		} else if err = cb.preStep(ctx, ex.step); err != nil {
			break
		} else if err = ex.stepFn(); err != nil {
			break
		} else if err = cb.postStep(ctx, ex.step); err != nil {
			break
		} else if keepRunning, err = cb.postStepKeepRunning(ctx, ex.step); !keepRunning || err != nil {
			break
		}
	}
	return err
}

// steps returns the number of steps executed so far.
func (ex *executor) steps() int { return ex.step }

func ensureContextNotExpired(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// rowJob describes a contiguous range of matrix rows to multiply.
type rowJob struct {
	from, to int
}

// rowWorkers computes M·v by splitting the rows of M between a fixed set
// of long-running workers.
type rowWorkers struct {
	m        *TransitionMatrix
	dst, src []float64
	jump     float64

	jobCh   chan rowJob
	stepWG  sync.WaitGroup
	workers sync.WaitGroup
	chunk   int
}

// minRowsPerWorker prevents spinning up workers for tiny matrices.
const minRowsPerWorker = 256

func startRowWorkers(m *TransitionMatrix, numWorkers int) *rowWorkers {
	if limit := m.n / minRowsPerWorker; numWorkers > limit {
		numWorkers = limit
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	w := &rowWorkers{m: m, chunk: (m.n + numWorkers - 1) / numWorkers}
	if numWorkers == 1 {
		return w
	}

	w.jobCh = make(chan rowJob)
	w.workers.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go w.stepWorker()
	}
	return w
}

// stepWorker polls jobCh for row ranges. The worker exits when jobCh gets
// closed.
func (w *rowWorkers) stepWorker() {
	defer w.workers.Done()
	for job := range w.jobCh {
		w.m.mulRows(w.dst, w.src, w.jump, job.from, job.to)
		w.stepWG.Done()
	}
}

// mulVec writes M·src into dst.
func (w *rowWorkers) mulVec(dst, src []float64) {
	w.dst, w.src = dst, src
	w.jump = w.m.jumpMass(src)

	if w.jobCh == nil {
		w.m.mulRows(dst, src, w.jump, 0, w.m.n)
		return
	}

	for from := 0; from < w.m.n; from += w.chunk {
		to := from + w.chunk
		if to > w.m.n {
			to = w.m.n
		}
		w.stepWG.Add(1)
		w.jobCh <- rowJob{from: from, to: to}
	}
	// Block until the pool has processed all rows.
	w.stepWG.Wait()
}

// close shuts down the long-running workers.
func (w *rowWorkers) close() {
	if w.jobCh == nil {
		return
	}
	close(w.jobCh)
	w.workers.Wait()
}
