// Package worker runs the ledger's periodic background jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop is the ticker shared by the workers. It stops on Stop or when the
// context passed to Start is cancelled, whichever comes first.
type loop struct {
	name       string
	interval   time.Duration
	runAtStart bool
	tick       func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newLoop(name string, interval time.Duration, runAtStart bool) *loop {
	return &loop{name: name, interval: interval, runAtStart: runAtStart, stopCh: make(chan struct{})}
}

func (l *loop) setInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

// Start blocks running the job every interval.
func (l *loop) Start(ctx context.Context) {
	log := zap.L().With(zap.String("worker", l.name))
	log.Info("worker starting", zap.Duration("interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	if l.runAtStart {
		l.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped", zap.String("reason", "context cancelled"))
			return
		case <-l.stopCh:
			log.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Stop ends the loop. It is safe to call more than once.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run starts the loop in a goroutine and returns its stop func.
func (l *loop) Run(ctx context.Context) func() {
	go l.Start(ctx)
	return l.Stop
}
