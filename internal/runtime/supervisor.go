package runtime

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type worker struct {
	name   string
	run    func(context.Context) error
	closeF func() error
}

// Supervisor runs named workers until the context ends or one of them
// fails, then closes them in reverse order of registration.
type Supervisor struct {
	mu      sync.Mutex
	workers []worker
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Add registers a worker. Workers added after Start are not run.
func (s *Supervisor) Add(name string, run func(context.Context) error, closeF func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		log.WithField("worker", name).Warn("Worker added after start, ignoring")
		return
	}
	s.workers = append(s.workers, worker{name: name, run: run, closeF: closeF})
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("supervisor already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	ctx = s.ctx
	for _, w := range s.workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.WithField("worker", w.name).Debug("Worker starting")
			if err := w.run(ctx); err != nil {
				log.WithField("worker", w.name).WithError(err).Error("Worker failed")
				s.errOnce.Do(func() { s.err = fmt.Errorf("%s: %w", w.name, err) })
				s.cancel()
				return
			}
			log.WithField("worker", w.name).Debug("Worker exited")
		}()
	}
	return nil
}

// Wait blocks until ctx is done or a worker fails, closes the workers and
// waits for them. It returns the first worker error, if any.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	workers := s.workers
	runCtx, cancel := s.ctx, s.cancel
	s.mu.Unlock()

	if runCtx == nil {
		<-ctx.Done()
	} else {
		select {
		case <-ctx.Done():
		case <-runCtx.Done():
		}
		defer cancel()
	}

	for i := len(workers) - 1; i >= 0; i-- {
		if workers[i].closeF == nil {
			continue
		}
		if err := workers[i].closeF(); err != nil {
			log.WithField("worker", workers[i].name).WithError(err).Warn("Worker close failed")
		}
	}
	s.wg.Wait()
	return s.err
}
