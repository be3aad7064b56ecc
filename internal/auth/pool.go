// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/samber/oops"
)

// ErrPoolClosed is wrapped by errors from a HashPool after Close.
var ErrPoolClosed = errors.New("hash pool is closed")

// HashObserver receives the duration of every completed hash operation.
// op is "hash" or "verify".
type HashObserver func(op string, d time.Duration)

// HashPool runs password hashing on a fixed set of worker goroutines, bounding
// how many memory-hard computations run at once. It implements PasswordHasher.
type HashPool struct {
	inner    PasswordHasher
	jobs     chan hashJob
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	observer HashObserver
}

type hashJob struct {
	ctx      context.Context
	op       string
	password string
	hash     string
	result   chan hashResult
}

type hashResult struct {
	hash string
	ok   bool
	err  error
}

// HashPoolOption configures a HashPool.
type HashPoolOption func(*HashPool)

// WithHashObserver reports operation durations, typically to a metric.
func WithHashObserver(observer HashObserver) HashPoolOption {
	return func(p *HashPool) {
		p.observer = observer
	}
}

// NewHashPool starts workers goroutines around inner. A non-positive worker
// count uses GOMAXPROCS.
func NewHashPool(inner PasswordHasher, workers int, opts ...HashPoolOption) (*HashPool, error) {
	if inner == nil {
		return nil, oops.Code("AUTH_HASH_POOL_INVALID").Errorf("password hasher is required")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &HashPool{
		inner: inner,
		jobs:  make(chan hashJob),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p, nil
}

func (p *HashPool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			job.result <- p.run(job)
		}
	}
}

func (p *HashPool) run(job hashJob) hashResult {
	// The caller may have given up while the job was queued.
	if err := job.ctx.Err(); err != nil {
		return hashResult{err: err}
	}

	start := time.Now()
	var res hashResult
	switch job.op {
	case "hash":
		res.hash, res.err = p.inner.Hash(job.ctx, job.password)
	default:
		res.ok, res.err = p.inner.Verify(job.ctx, job.password, job.hash)
	}
	if p.observer != nil {
		p.observer(job.op, time.Since(start))
	}
	return res
}

func (p *HashPool) submit(ctx context.Context, job hashJob) (hashResult, error) {
	job.ctx = ctx
	job.result = make(chan hashResult, 1)

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return hashResult{}, oops.Code("AUTH_HASH_CANCELED").With("op", job.op).Wrap(ctx.Err())
	case <-p.done:
		return hashResult{}, oops.Code("AUTH_HASH_POOL_CLOSED").With("op", job.op).Wrap(ErrPoolClosed)
	}

	select {
	case res := <-job.result:
		return res, nil
	case <-ctx.Done():
		return hashResult{}, oops.Code("AUTH_HASH_CANCELED").With("op", job.op).Wrap(ctx.Err())
	}
}

// Hash hashes password on a pool worker.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", emptyPassword()
	}
	res, err := p.submit(ctx, hashJob{op: "hash", password: password})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify checks password against hash on a pool worker.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	res, err := p.submit(ctx, hashJob{op: "verify", password: password, hash: hash})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// NeedsUpgrade delegates to the wrapped hasher; it does no hashing work.
func (p *HashPool) NeedsUpgrade(hash string) bool {
	return p.inner.NeedsUpgrade(hash)
}

// Close stops the workers and waits for in-flight jobs to finish.
func (p *HashPool) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}
