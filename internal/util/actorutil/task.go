package actorutil

import (
	"errors"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilResult = errors.New("result is nil")

// SafeBackgroundTask runs a blocking call, typically a bus transaction, and delivers
// its result to an actor as a plain message.
type SafeBackgroundTask[T any] struct {
	ctx     actor.Context
	fn      func() (*T, error)
	timeout *time.Duration
	lock    sync.Locker
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// Exclusive holds lock for the whole call. A call that outlives its timeout keeps the lock
// until it returns, so the next task waits for the bus to be free.
func (t *SafeBackgroundTask[T]) Exclusive(lock sync.Locker) *SafeBackgroundTask[T] {
	t.lock = lock
	return t
}

// Recover turns a failure or a timeout into the message delivered instead of the result.
// Without it failures are dropped.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	if value, ok := t.run(); ok {
		t.ctx.Send(pid, value)
	}
}

func (t *SafeBackgroundTask[T]) call() (*T, error) {
	if t.lock != nil {
		t.lock.Lock()
		defer t.lock.Unlock()
	}
	return t.fn()
}

func (t *SafeBackgroundTask[T]) run() (T, bool) {
	bg := io.Map(io.Eval(t.call), func(a *T) T {
		if a == nil {
			panic(errNilResult)
		}
		return *a
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		var zero T
		return zero, false
	}
	return t.recover(result.Error), true
}

// MapBackgroundTask converts the result of a task before delivery. Options set on bgt
// other than the function itself are not carried over.
func MapBackgroundTask[T, T2 any](bgt *SafeBackgroundTask[T], mapFn func(*T) *T2) *SafeBackgroundTask[T2] {
	return &SafeBackgroundTask[T2]{
		ctx: bgt.ctx,
		fn: func() (*T2, error) {
			r, err := bgt.fn()
			if err != nil {
				return nil, err
			}
			return mapFn(r), nil
		},
	}
}
