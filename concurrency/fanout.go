package concurrency

import (
	"context"
	"hash/fnv"
	"sync"
)

type ShardingKey []byte

type Message interface {
	GetShardingKey() ShardingKey
}

// ScopedAction runs on the goroutine owning the scope it was routed to.
type ScopedAction[S any] interface {
	Message
	Execute(ctx context.Context, scopeID string, scope *S)
}

// FanOut runs one goroutine per scope, each draining its own queue.
type FanOut[M any, S any] struct {
	channels []chan M
	scopes   *Scopes[S]
	running  sync.WaitGroup
	closing  sync.Once
}

func NewFanOut[M any, S any](scopes *Scopes[S], queueLength int, queueProcessor func(ctx context.Context, scopeID string, m M, scope *S)) *FanOut[M, S] {
	f := &FanOut[M, S]{
		channels: make([]chan M, scopes.Len()),
		scopes:   scopes,
	}
	for i := range f.channels {
		f.channels[i] = make(chan M, queueLength)
	}

	i := 0
	for queueID, scope := range scopes.ForEachScope() {
		f.running.Add(1)
		go func(messages chan M, id string, queueScope *S) {
			defer f.running.Done()
			runContext := context.Background()
			for message := range messages {
				queueProcessor(runContext, id, message, queueScope)
			}
		}(f.channels[i], queueID, scope.Value)
		i++
	}
	return f
}

// NewActionFanOut executes every message on the scope it was routed to.
func NewActionFanOut[S any](scopes *Scopes[S], queueLength int) *FanOut[ScopedAction[S], S] {
	return NewFanOut(scopes, queueLength, func(ctx context.Context, scopeID string, action ScopedAction[S], scope *S) {
		action.Execute(ctx, scopeID, scope)
	})
}

// Send routes m by hash of id, equal ids always reach the same scope.
func (f *FanOut[M, S]) Send(id []byte, m M) {
	if len(f.channels) == 0 {
		return
	}

	index := 0
	hash := fnv.New32()
	_, hashErr := hash.Write(id)
	if hashErr == nil {
		index = int(hash.Sum32() % uint32(len(f.channels)))
	}
	f.channels[index] <- m
}

func (f *FanOut[M, S]) Broadcast(m M) {
	for i := range f.channels {
		f.channels[i] <- m
	}
}

func (f *FanOut[M, S]) Len() int {
	return len(f.channels)
}

// Close stops accepting messages and waits until queued ones are processed.
func (f *FanOut[M, S]) Close() {
	f.closing.Do(func() {
		for i := range f.channels {
			close(f.channels[i])
		}
	})
	f.running.Wait()
}

type FanoutPublisher[S any] struct {
	fanout *FanOut[ScopedAction[S], S]
}

func NewFanoutPublisher[S any](fanout *FanOut[ScopedAction[S], S]) *FanoutPublisher[S] {
	return &FanoutPublisher[S]{fanout: fanout}
}

// Publish sends keyed actions to one scope and broadcasts unkeyed ones.
func (p *FanoutPublisher[S]) Publish(action ScopedAction[S]) {
	key := action.GetShardingKey()
	if key != nil {
		p.fanout.Send(key, action)
	} else {
		p.fanout.Broadcast(action)
	}
}
