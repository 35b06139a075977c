// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package backup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
)

// WorkItem is one archive to download.
type WorkItem struct {
	Descriptor Descriptor
	Path       string
}

// WorkResult is the outcome of processing a work item.
type WorkResult struct {
	Descriptor Descriptor
	Path       string
	Size       int64
	Err        error
	Succeeded  bool
}

// WorkerPool runs downloads on a fixed number of goroutines.
type WorkerPool struct {
	workerCount int
	workQueue   chan WorkItem
	resultQueue chan WorkResult
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      adapters.Logger

	shuttingDown atomic.Bool

	itemsProcessed atomic.Int64
	itemsSucceeded atomic.Int64
	itemsFailed    atomic.Int64
	bytesProcessed atomic.Int64
}

// WorkerPoolConfig contains configuration for the worker pool.
type WorkerPoolConfig struct {
	WorkerCount int
	QueueSize   int
	Logger      adapters.Logger
}

// NewWorkerPool creates a worker pool whose workers stop when ctx is done.
func NewWorkerPool(ctx context.Context, config WorkerPoolConfig) *WorkerPool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		workerCount: config.WorkerCount,
		workQueue:   make(chan WorkItem, config.QueueSize),
		resultQueue: make(chan WorkResult, config.QueueSize),
		ctx:         poolCtx,
		cancel:      cancel,
		logger:      config.Logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(processor func(context.Context, WorkItem) WorkResult) {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i, processor)
	}
}

func (wp *WorkerPool) worker(id int, processor func(context.Context, WorkItem) WorkResult) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug(wp.ctx, "Worker shutting down",
				adapters.Field{Key: "worker_id", Value: id})
			return

		case item, ok := <-wp.workQueue:
			if !ok {
				return
			}

			result := processor(wp.ctx, item)

			wp.itemsProcessed.Add(1)
			if result.Succeeded {
				wp.itemsSucceeded.Add(1)
				wp.bytesProcessed.Add(result.Size)
			} else {
				wp.itemsFailed.Add(1)
			}

			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return
			}
		}
	}
}

// Submit adds a work item to the queue.
// Returns an error if the pool has been shut down.
func (wp *WorkerPool) Submit(item WorkItem) error {
	if wp.shuttingDown.Load() {
		return fmt.Errorf("worker pool is shutting down")
	}

	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool context cancelled")
	case wp.workQueue <- item:
		return nil
	}
}

// Results returns the result channel. It is closed by Shutdown.
func (wp *WorkerPool) Results() <-chan WorkResult {
	return wp.resultQueue
}

// Shutdown closes the work queue, waits for the workers and closes the
// result channel. Buffered results stay readable.
func (wp *WorkerPool) Shutdown() {
	wp.shuttingDown.Store(true)
	close(wp.workQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug(wp.ctx, "Worker pool shutdown complete",
		adapters.Field{Key: "processed", Value: wp.itemsProcessed.Load()},
		adapters.Field{Key: "succeeded", Value: wp.itemsSucceeded.Load()},
		adapters.Field{Key: "failed", Value: wp.itemsFailed.Load()},
		adapters.Field{Key: "bytes", Value: wp.bytesProcessed.Load()})
}

// GetMetrics returns the current worker pool metrics.
func (wp *WorkerPool) GetMetrics() WorkerPoolMetrics {
	return WorkerPoolMetrics{
		ItemsProcessed: wp.itemsProcessed.Load(),
		ItemsSucceeded: wp.itemsSucceeded.Load(),
		ItemsFailed:    wp.itemsFailed.Load(),
		BytesProcessed: wp.bytesProcessed.Load(),
	}
}

// WorkerPoolMetrics contains metrics about worker pool activity.
type WorkerPoolMetrics struct {
	ItemsProcessed int64
	ItemsSucceeded int64
	ItemsFailed    int64
	BytesProcessed int64
}
