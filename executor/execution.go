package executor

import (
	"bytes"
	"context"
	"sync"

	"go.starlark.net/starlark"
)

// execution is one run of script code: the threads it started (the main
// thread and one per module initialization), their shared output, and the
// context that cancels them.
type execution struct {
	ctx context.Context
	out *bytes.Buffer

	mu      sync.Mutex
	threads []*starlark.Thread
	reason  string
}

func newExecution(ctx context.Context, out *bytes.Buffer) *execution {
	return &execution{ctx: ctx, out: out}
}

func (x *execution) newThread(name string) *starlark.Thread {
	t := &starlark.Thread{Name: name, Print: x.print}
	t.SetLocal(contextKey, x.ctx)

	x.mu.Lock()
	x.threads = append(x.threads, t)
	if x.reason != "" {
		t.Cancel(x.reason)
	}
	x.mu.Unlock()
	return t
}

func (x *execution) print(_ *starlark.Thread, msg string) {
	x.out.WriteString(msg)
	x.out.WriteByte('\n')
}

// watch cancels every thread of x once its context is done. The returned
// function stops watching.
func (x *execution) watch() (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-x.ctx.Done():
			x.cancel(x.ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (x *execution) cancel(reason string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.reason = reason
	for _, t := range x.threads {
		t.Cancel(reason)
	}
}
