package concurrency

import (
	"context"
	"sync"
)

// ScopeWorkers run one worker per scope behind a single shared queue. Any
// idle worker takes the next message, so ordering between messages is not
// kept.
type ScopeWorkers[S any, W any, M any] struct {
	queue   chan *M
	running sync.WaitGroup
	closing sync.Once
}

func NewScopeWorkers[W any, S any, M any](
	scopes *Scopes[S],
	workerCreator func(id string, scope *S) *W,
	executor func(ctx context.Context, id string, scope *S, worker *W, message *M),
	queueLength int,
) *ScopeWorkers[S, W, M] {
	w := &ScopeWorkers[S, W, M]{
		queue: make(chan *M, queueLength),
	}
	for id, scope := range scopes.ForEachScope() {
		worker := workerCreator(id, scope.Value)
		w.running.Add(1)
		go w.drain(func(ctx context.Context, message *M) {
			executor(ctx, id, scope.Value, worker, message)
		})
	}
	return w
}

func (w *ScopeWorkers[S, W, M]) drain(execute func(ctx context.Context, message *M)) {
	defer w.running.Done()
	ctx := context.Background()
	for message := range w.queue {
		execute(ctx, message)
	}
}

// Execute blocks while the queue is full.
func (w *ScopeWorkers[S, W, M]) Execute(m *M) {
	w.queue <- m
}

// TryExecute gives up instead of waiting for a full queue.
func (w *ScopeWorkers[S, W, M]) TryExecute(m *M) bool {
	select {
	case w.queue <- m:
		return true
	default:
		return false
	}
}

// Close waits until every queued message was executed.
func (w *ScopeWorkers[S, W, M]) Close() {
	w.closing.Do(func() {
		close(w.queue)
	})
	w.running.Wait()
}
