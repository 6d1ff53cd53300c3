package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/digest"
	"github.com/roach88/texgraph/internal/node"
)

// Start launches the worker pool. Work requested before Start is picked up
// immediately. Workers stop when ctx is cancelled or Close is called.
func (lg *LiveGraph) Start(ctx context.Context) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if lg.closed {
		return ErrClosed
	}
	if lg.started {
		return errors.New("engine: live graph already started")
	}
	lg.started = true
	if lg.workers == 0 {
		lg.logger.Info("live graph started without workers")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < lg.workers; i++ {
		worker := i
		g.Go(func() error {
			return lg.runWorker(ctx, worker)
		})
	}
	lg.cancel = cancel
	lg.group = g

	lg.logger.Info("live graph started", "workers", lg.workers, "use_cache", lg.useCache && lg.store != nil)
	lg.signalWorkersLocked()
	return nil
}

// Close stops the workers and waits for in-flight jobs to return. Pending
// AwaitCleanRead calls fail with ErrClosed. Close is idempotent.
func (lg *LiveGraph) Close() error {
	lg.mu.Lock()
	if lg.closed {
		lg.mu.Unlock()
		return nil
	}
	lg.closed = true
	cancel, group := lg.cancel, lg.group
	lg.notifyLocked()
	lg.mu.Unlock()

	lg.changed.Close()

	var err error
	if cancel != nil {
		cancel()
		err = group.Wait()
	}
	lg.logger.Info("live graph stopped")
	return err
}

// RunPending executes eligible jobs on the calling goroutine until none are
// left and returns the ids in dispatch order. It is how a graph built
// without workers makes progress; with workers it competes with them.
func (lg *LiveGraph) RunPending(ctx context.Context) ([]node.ID, error) {
	var order []node.ID
	for {
		if err := ctx.Err(); err != nil {
			return order, err
		}
		lg.mu.RLock()
		closed := lg.closed
		lg.mu.RUnlock()
		if closed {
			return order, ErrClosed
		}
		j, ok := lg.nextJob()
		if !ok {
			return order, nil
		}
		outs, err := lg.execute(ctx, j)
		lg.commit(j, outs, err)
		order = append(order, j.node.ID)
	}
}

// runWorker pulls jobs until ctx is done. Failures are recorded on nodes and
// never end the worker.
func (lg *LiveGraph) runWorker(ctx context.Context, worker int) error {
	lg.logger.Debug("worker starting", "worker", worker)
	for {
		if ctx.Err() != nil {
			return nil
		}
		j, ok := lg.nextJob()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-lg.wake:
			}
			continue
		}
		outs, err := lg.execute(ctx, j)
		lg.commit(j, outs, err)
	}
}

// execute produces a job's outputs from the persistent store or by running
// the compute function.
func (lg *LiveGraph) execute(ctx context.Context, j job) ([]*buffer.Buffer, error) {
	var key string
	if j.useCache {
		k, err := digest.CacheKey(j.node, j.inputs)
		if err != nil {
			lg.logger.Warn("cache key failed", "node", j.node.ID, "error", err)
		} else {
			key = k
			outs, ok, err := lg.store.LoadBuffers(ctx, key)
			switch {
			case err != nil:
				lg.logger.Warn("persistent cache read failed", "node", j.node.ID, "error", err)
			case ok && len(outs) == len(j.node.Outputs()):
				lg.logger.Debug("persistent cache hit", "request", j.request, "node", j.node.ID)
				return outs, nil
			}
		}
	}

	outs, err := lg.safeCompute(j.node, j.inputs)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if err := lg.store.SaveBuffers(ctx, key, j.node.Type.Kind.String(), outs); err != nil {
			lg.logger.Warn("persistent cache write failed", "node", j.node.ID, "error", err)
		}
	}
	return outs, nil
}

// safeCompute converts a panic into a PANIC ComputeError and checks the
// output arity, so a node always leaves Processing.
func (lg *LiveGraph) safeCompute(n node.Node, inputs []*buffer.Buffer) (outs []*buffer.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs = nil
			err = node.NewPanicError(n.ID, r)
		}
	}()

	outs, err = lg.compute(n, inputs)
	if err != nil {
		return nil, err
	}
	if want := len(n.Outputs()); len(outs) != want {
		return nil, &node.ComputeError{
			Code:    node.ErrCodeInvalidBufferCount,
			Message: fmt.Sprintf("%s produced %d outputs, expected %d", n.Type.Kind, len(outs), want),
			Node:    n.ID,
		}
	}
	for i, b := range outs {
		if b == nil {
			return nil, &node.ComputeError{
				Code:    node.ErrCodeInvalidBufferCount,
				Message: fmt.Sprintf("%s output %d is nil", n.Type.Kind, i),
				Node:    n.ID,
			}
		}
	}
	return outs, nil
}
