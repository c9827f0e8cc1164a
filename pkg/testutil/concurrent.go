package testutil

import (
	"sync"
	"sync/atomic"

	dErrors "vcregistry/pkg/domain-errors"
)

// ConcurrentResult tallies the outcomes of RunConcurrent by domain error code.
type ConcurrentResult struct {
	Successes     int32
	AlreadyExists int32
	NotAuthorized int32
	NotFound      int32
	Errors        int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.AlreadyExists + r.NotAuthorized + r.NotFound + r.Errors
}

// RunConcurrent starts n goroutines running fn and waits for all of them.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, exists, denied, missing, errs atomic.Int32

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(i)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyExists):
				exists.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotAuthorized):
				denied.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				missing.Add(1)
			default:
				errs.Add(1)
			}
		}()
	}
	wg.Wait()

	return &ConcurrentResult{
		Successes:     successes.Load(),
		AlreadyExists: exists.Load(),
		NotAuthorized: denied.Load(),
		NotFound:      missing.Load(),
		Errors:        errs.Load(),
	}
}
