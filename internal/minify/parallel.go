package minify

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// firstFailing returns the index of the leftmost trial that still fails the
// predicate, or -1. Serial and parallel execution pick the same trial and
// charge the same number of evaluations: the parallel path evaluates a batch
// speculatively but decides strictly in candidate order and pays only for
// trials up to and including the decided one, so the reduction path, the
// budget consumption and the final minimal graph are identical either way.
func (r *runner) firstFailing(trials []trial) (int, error) {
	if r.jobs <= 1 {
		for i := range trials {
			if r.exhausted() {
				r.truncated = true
				return -1, nil
			}
			if err := r.ctx.Err(); err != nil {
				return -1, err
			}
			failed, _ := r.evalOne(trials[i].g)
			r.report(Event{Evals: r.evals, Budget: r.budget, TrialOps: trials[i].g.OpCount()})
			if failed {
				return i, nil
			}
		}
		return -1, nil
	}
	return r.firstFailingParallel(trials)
}

func (r *runner) firstFailingParallel(trials []trial) (int, error) {
	jobs := r.jobs
	if jobs > runtime.NumCPU()*2 {
		jobs = runtime.NumCPU() * 2
	}

	for base := 0; base < len(trials); base += jobs {
		if r.exhausted() {
			r.truncated = true
			return -1, nil
		}
		end := base + jobs
		if end > len(trials) {
			end = len(trials)
		}
		// remaining budget caps the batch: never launch more evaluations
		// than the budget allows
		if left := r.budget - r.evals; end-base > left {
			end = base + left
		}
		if end <= base {
			r.truncated = true
			return -1, nil
		}

		results := make([]bool, end-base)
		eg, ctx := errgroup.WithContext(r.ctx)
		for i := base; i < end; i++ {
			i := i
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				failed, _ := r.pred(ctx, trials[i].g)
				results[i-base] = failed
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return -1, err
		}

		// decide strictly in candidate order; discard (and do not charge)
		// the speculative evaluations to the right of the decided trial
		for i, failed := range results {
			if failed {
				r.evals += i + 1
				r.report(Event{Evals: r.evals, Budget: r.budget, TrialOps: trials[base+i].g.OpCount()})
				return base + i, nil
			}
		}
		r.evals += end - base
		r.report(Event{Evals: r.evals, Budget: r.budget})
	}
	return -1, nil
}
