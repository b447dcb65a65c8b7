package realm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// DefaultTickInterval bounds how long background results wait for a tick
// when nothing wakes the looper.
const DefaultTickInterval = 100 * time.Millisecond

// Looper runs a Realm on a dedicated goroutine. Other goroutines submit work
// with Do; between tasks the looper ticks the realm to deliver notifications.
type Looper struct {
	realm    *Realm
	tasks    chan func(*Realm)
	quit     chan struct{}
	done     chan struct{}
	interval time.Duration
	stopOnce sync.Once
	closeErr error
}

// StartLooper starts the looper goroutine and opens the realm on it with open.
func StartLooper(open func() (*Realm, error), interval time.Duration) (*Looper, error) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	l := &Looper{
		tasks:    make(chan func(*Realm)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		interval: interval,
	}

	ready := make(chan error, 1)
	go l.run(open, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Looper) run(open func() (*Realm, error), ready chan<- error) {
	defer close(l.done)

	r, err := open()
	if err != nil {
		ready <- err
		return
	}
	l.realm = r
	ready <- nil

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-l.tasks:
			fn(r)
			l.tick()
		case <-r.Wakeup():
			l.tick()
		case <-ticker.C:
			l.tick()
		case <-l.quit:
			l.closeErr = r.Close()
			return
		}
	}
}

func (l *Looper) tick() {
	if l.realm.IsInWrite() {
		return
	}
	if _, err := l.realm.Tick(); err != nil {
		l.realm.logger.Warn("realm tick failed", "error", err)
	}
}

// Do runs fn on the looper goroutine and returns its error. If ctx ends
// first, Do returns ctx.Err() but fn still runs once dequeued. A write scope
// left open by fn is cancelled.
func (l *Looper) Do(ctx context.Context, fn func(r *Realm) error) error {
	errCh := make(chan error, 1)
	task := func(r *Realm) {
		defer func() {
			if v := recover(); v != nil {
				errCh <- fmt.Errorf("%w: task panicked: %v", domain.ErrIllegalState, v)
			}
			if r.IsInWrite() {
				_ = r.CancelWrite()
			}
		}()
		errCh <- fn(r)
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the realm on its goroutine and stops the looper.
func (l *Looper) Close() error {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	<-l.done
	return l.closeErr
}
