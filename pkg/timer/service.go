package timer

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/go-kit/log"
	loglevel "github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var callerSeq atomic.Uint64

// nextCaller mints a value unique to one id-map critical section, standing
// in for the owning-thread-id the spin lock records; Go goroutines have no
// public identity, and a per-call sequence number serves the same
// double-unlock assertion just as well.
func nextCaller() uint64 { return callerSeq.Add(1) }

func nowMs() int64 { return time.Now().UnixMilli() }

// Service owns the tick loop and worker pool shared by every Controller it
// creates, wired together through dskit's services.BasicService lifecycle
// the same way the rest of this codebase's long-running components are.
type Service struct {
	services.Service

	cfg      Config
	logger   log.Logger
	metrics  *metrics
	pool     *ControllerPool
	dispatch *dispatchQueue

	mu          sync.Mutex
	controllers map[Label]*Controller

	cancelWorkers context.CancelFunc
	workerWG      sync.WaitGroup
}

// NewService builds a Service and its BasicService lifecycle wrapper. The
// service owns no controllers until NewController is called.
func NewService(cfg Config, logger log.Logger, reg prometheus.Registerer) *Service {
	s := &Service{
		cfg:         cfg,
		logger:      logger,
		metrics:     newMetrics(reg),
		pool:        NewControllerPool(),
		controllers: map[Label]*Controller{},
	}
	s.dispatch = newDispatchQueue(s.metrics.dispatch)
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

func (s *Service) starting(ctx context.Context) error {
	loglevel.Info(s.logger).Log("msg", "timer service starting", "workers", s.cfg.WorkerPoolSize)
	return nil
}

func (s *Service) running(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(context.Background())
	s.cancelWorkers = cancel
	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.workerWG.Add(1)
		go s.worker(workerCtx)
	}

	ticker := time.NewTicker(time.Duration(MillisPerTick) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			s.dispatch.close()
			s.workerWG.Wait()
			return nil
		case now := <-ticker.C:
			s.tick(now.UnixMilli())
		}
	}
}

func (s *Service) stopping(failureCase error) error {
	loglevel.Info(s.logger).Log("msg", "timer service stopped", "err", failureCase)
	return nil
}

func (s *Service) worker(ctx context.Context) {
	defer s.workerWG.Done()
	for {
		v, ok := s.dispatch.pop()
		if !ok {
			return
		}
		t, ok := v.(*Timer)
		if !ok {
			continue
		}
		s.fire(t)
	}
}

// tick advances every controller's wheel to now and hands off whatever
// expired this pass to the dispatch queue.
func (s *Service) tick(now int64) {
	s.mu.Lock()
	controllers := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		controllers = append(controllers, c)
	}
	s.mu.Unlock()

	for _, c := range controllers {
		for _, t := range c.wheel.tick(now) {
			s.metrics.active.Dec()
			s.enqueueExpired(t)
		}
	}
}

func (s *Service) enqueueExpired(t *Timer) {
	s.dispatch.push([]string{t.label.String()}, t)
}

// fire runs the waiting->expired->stopped half of the state machine for a
// timer the tick loop just spliced out of its wheel. If a concurrent Stop
// already won the race to cancel it, the CAS below fails and the callback
// never runs, matching the at-most-once guarantee.
func (s *Service) fire(t *Timer) {
	if !t.casState(stateWaiting, stateExpired) {
		return
	}
	s.metrics.expired.Inc()

	cbCtx := withSelf(context.Background(), t.id)
	t.callback(cbCtx, t.id, t.userData)

	t.casState(stateExpired, stateStopped)
	s.metrics.stopped.Inc()
	t.controller.ids.remove(t, nextCaller())
	t.refCount.Dec()
	t.controller.release()
}

// NewController acquires a fresh timer domain from the pool and registers
// it with this service's tick loop.
func (s *Service) NewController(maxTimers int, resolution time.Duration) *Controller {
	c := s.pool.Acquire(maxTimers, resolution, nowMs())
	s.mu.Lock()
	s.controllers[c.label] = c
	s.mu.Unlock()
	return c
}

// CleanupController retires c: it stops being ticked and its slot returns
// to the pool's free list with its label zeroed. The caller
// must ensure no timers are still outstanding on c.
func (s *Service) CleanupController(c *Controller) {
	s.mu.Lock()
	delete(s.controllers, c.label)
	s.mu.Unlock()
	s.pool.Release(c)
}

// Start schedules cb to run after delayMs on c, returning the new timer's
// id, or 0 when c already has maxTimers outstanding. delayMs
// <= 0 dispatches immediately on the next worker.
func (s *Service) Start(c *Controller, cb Callback, delayMs int64, userData any) uint64 {
	if !c.tryReserve() {
		return 0
	}
	caller := nextCaller()
	now := nowMs()

	t := &Timer{
		controller: c,
		label:      c.label,
		wheelIdx:   notInWheel,
		callback:   cb,
		userData:   userData,
	}
	t.id = c.ids.allocID()
	t.refCount.Store(1)
	t.state.Store(uint32(stateWaiting))
	c.ids.insert(t, caller)

	s.metrics.started.Inc()
	s.metrics.active.Inc()

	if delayMs <= 0 {
		t.expireAt = now
		s.enqueueExpired(t)
		return t.id
	}
	c.wheel.place(t, now, delayMs)
	return t.id
}

// Stop cancels the timer identified by id on c, returning true iff it
// actually prevented the callback from running. A caller
// invoking Stop from within the timer's own callback should pass the ctx
// it was handed, so this returns immediately instead of spin-waiting on
// its own completion.
func (s *Service) Stop(ctx context.Context, c *Controller, id uint64) bool {
	caller := nextCaller()
	t := c.ids.lookup(id, caller)
	if t == nil {
		return false
	}
	defer t.refCount.Dec()

	if t.casState(stateWaiting, stateCanceled) {
		c.wheel.remove(t)
		c.ids.remove(t, caller)
		t.refCount.Dec()
		c.release()
		s.metrics.canceled.Inc()
		s.metrics.active.Dec()
		return true
	}

	if isSelfStop(ctx, id) {
		return false
	}
	for t.loadState() == stateExpired {
		runtime.Gosched()
	}
	return false
}

// StopAndClear stops the timer referenced by *id exactly as Stop does,
// and additionally zeroes *id on return so the caller cannot
// accidentally reuse a handle for a timer that is no longer theirs to stop,
// whether or not the stop actually won the cancellation race.
func (s *Service) StopAndClear(ctx context.Context, c *Controller, id *uint64) bool {
	stopped := s.Stop(ctx, c, *id)
	*id = 0
	return stopped
}

// Reset atomically stops and restarts id with a new callback/delay,
// reusing the same Timer object and id once it is safe to do so.
// Returns false if id is unknown.
func (s *Service) Reset(ctx context.Context, c *Controller, id uint64, cb Callback, delayMs int64, userData any) bool {
	caller := nextCaller()
	t := c.ids.lookup(id, caller)
	if t == nil {
		return false
	}

	canceled := t.casState(stateWaiting, stateCanceled)
	if canceled {
		c.wheel.remove(t)
	} else if !isSelfStop(ctx, id) {
		for t.loadState() == stateExpired {
			runtime.Gosched()
		}
	}
	c.ids.remove(t, caller)
	if canceled {
		t.refCount.Dec()
	}
	for t.refCount.Load() > 1 {
		runtime.Gosched()
	}

	// A timer we canceled still holds its budget slot; one that already
	// fired gave it back in fire and must claim it again.
	if !canceled && !c.tryReserve() {
		t.refCount.Dec()
		return false
	}

	t.callback = cb
	t.userData = userData
	t.state.Store(uint32(stateWaiting))
	c.ids.insert(t, caller)

	now := nowMs()
	if delayMs <= 0 {
		t.expireAt = now
		s.enqueueExpired(t)
	} else {
		c.wheel.place(t, now, delayMs)
	}
	return true
}
