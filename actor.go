package ridinglookup

import (
	"context"
	"sync"
)

/*
actor runs closures one at a time on a single goroutine. Every read or write of a
coordinator's state is sent through its mailbox, which is what lets the coordinators
keep plain maps without locks: only the actor goroutine ever touches them.
*/
type actor struct {
	mailbox chan func()
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newActor(buffer int) *actor {
	a := &actor{
		mailbox: make(chan func(), buffer),
		quit:    make(chan struct{}),
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run()
	}()

	return a
}

func (a *actor) run() {
	for {
		select {
		case <-a.quit:
			return
		case fn := <-a.mailbox:
			fn()
		}
	}
}

/*
call delivers fn to the actor and waits for it to finish. fn runs at most once, and
only if ctx is still live when the actor reaches it: a nil return means fn ran, any
error means it did not. Once the message is queued call always waits for the actor,
so a caller that goes away can never leave fn half-observed.
*/
func (a *actor) call(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var skipped error
	done := make(chan struct{})
	msg := func() {
		defer close(done)
		if skipped = ctx.Err(); skipped != nil {
			return
		}
		fn()
	}

	select {
	case <-a.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case a.mailbox <- msg:
	}

	select {
	case <-done:
		return skipped
	case <-a.quit:
		// The loop finishes the message in hand before it exits.
		a.wg.Wait()
		select {
		case <-done:
			return skipped
		default:
			return ErrClosed
		}
	}
}

func (a *actor) stop() {
	a.once.Do(func() {
		close(a.quit)
	})
	a.wg.Wait()
}
