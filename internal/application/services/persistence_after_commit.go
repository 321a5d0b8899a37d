package services

import (
	"context"
	"sync"
)

// afterCommitQueue holds work that may only run once the outermost record
// write has committed: after-trigger flows, and with them email, webhooks
// and approval submissions.
type afterCommitQueue struct {
	mu    sync.Mutex
	tasks []func(ctx context.Context)
}

type afterCommitKey struct{}

func (q *afterCommitQueue) push(task func(ctx context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

func (q *afterCommitQueue) drain() []func(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// deferAfterCommit attaches a queue to ctx unless an enclosing write already
// owns one. The returned flush runs the queued work when committed is true
// and discards it otherwise; it does nothing for a nested write, whose work
// belongs to the enclosing one.
func deferAfterCommit(ctx context.Context) (context.Context, func(committed bool)) {
	if _, ok := ctx.Value(afterCommitKey{}).(*afterCommitQueue); ok {
		return ctx, func(bool) {}
	}
	q := &afterCommitQueue{}
	outer := ctx
	return context.WithValue(ctx, afterCommitKey{}, q), func(committed bool) {
		tasks := q.drain()
		if !committed {
			return
		}
		for _, task := range tasks {
			task(outer)
		}
	}
}

// afterCommit queues task on the queue carried by ctx, or runs it at once
// when there is none. Queued work runs outside the transaction at the
// trigger depth it was queued at.
func afterCommit(ctx context.Context, task func(ctx context.Context)) {
	q, ok := ctx.Value(afterCommitKey{}).(*afterCommitQueue)
	if !ok {
		task(ctx)
		return
	}
	depth := triggerDepth(ctx)
	q.push(func(outer context.Context) {
		task(context.WithValue(outer, triggerDepthKey{}, depth))
	})
}
