package worker

import (
	"context"
)

// ScanFunc scans one file
type ScanFunc[T any] func(ctx context.Context, path string) (T, error)

// ScanJob scans a single file
type ScanJob[T any] struct {
	Path string
	Scan ScanFunc[T]
}

// Execute runs the scan
func (j *ScanJob[T]) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &ScanResult[T]{Path: j.Path, Error: err}
	}
	value, err := j.Scan(ctx, j.Path)
	return &ScanResult[T]{Path: j.Path, Value: value, Error: err}
}

// ScanResult is the outcome of scanning one file
type ScanResult[T any] struct {
	Path  string
	Value T
	Error error
}

// GetError returns the scan error
func (r *ScanResult[T]) GetError() error {
	return r.Error
}

// BatchProcessor scans many files concurrently
type BatchProcessor[T any] struct {
	scan        ScanFunc[T]
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor[T any](scan ScanFunc[T], concurrency int) *BatchProcessor[T] {
	return &BatchProcessor[T]{
		scan:        scan,
		concurrency: concurrency,
	}
}

// ProcessFiles scans every path. Results arrive in completion order; paths
// not scanned because ctx was cancelled are reported with the context error.
func (b *BatchProcessor[T]) ProcessFiles(ctx context.Context, paths []string) []*ScanResult[T] {
	if len(paths) == 0 {
		return []*ScanResult[T]{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	done := make(chan []*ScanResult[T], 1)
	go func() {
		var out []*ScanResult[T]
		for r := range pool.Results() {
			out = append(out, r.(*ScanResult[T]))
		}
		done <- out
	}()

	for _, path := range paths {
		if !pool.Submit(&ScanJob[T]{Path: path, Scan: b.scan}) {
			break
		}
	}
	pool.Close()

	results := <-done
	if len(results) < len(paths) {
		scanned := make(map[string]bool, len(results))
		for _, r := range results {
			scanned[r.Path] = true
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		for _, path := range paths {
			if !scanned[path] {
				results = append(results, &ScanResult[T]{Path: path, Error: err})
			}
		}
	}
	return results
}
