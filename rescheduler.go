package vigil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jkbrsn/taskman"
	"github.com/rs/zerolog/log"
)

// ErrReschedulerClosed is returned by Add after Close.
var ErrReschedulerClosed = errors.New("rescheduler closed")

// Result is a terminal outcome delivered by a Rescheduler.
type Result struct {
	Outcome Outcome
	Err     error
}

// Rescheduler runs sensors in reschedule mode: no goroutine is held between pokes. Each sensor
// becomes a job in a task manager with the poke interval as cadence, and every execution of
// the job runs one Step of the sensor.
type Rescheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	taskManager *taskman.TaskManager

	mu      sync.Mutex
	sensors map[string]*Sensor // Key job ID
	closed  bool

	resultMu     sync.RWMutex
	resultClosed bool
	resultChan   chan Result

	removeChan chan string
	doneChan   chan struct{}
	wg         sync.WaitGroup
}

// NewRescheduler creates and starts a Rescheduler. Results are buffered up to bufferSize;
// a full buffer blocks the task manager worker delivering the result.
func NewRescheduler(bufferSize int) *Rescheduler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Rescheduler{
		ctx:         ctx,
		cancel:      cancel,
		taskManager: taskman.New(),
		sensors:     make(map[string]*Sensor),
		resultChan:  make(chan Result, bufferSize),
		removeChan:  make(chan string, 16),
		doneChan:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.removeFinishedJobs()

	return r
}

// Add starts the sensor: the first poke runs immediately in the caller's goroutine, and the
// remaining pokes run on the task manager every PokeInterval. A sensor finishing on its first
// poke is delivered on Results without being scheduled.
func (r *Rescheduler) Add(s *Sensor) error {
	if s.Config().Mode != ModeReschedule {
		return fmt.Errorf("sensor %q: %w: mode is %s, not reschedule", s.Name(), ErrInvalidConfig, s.Config().Mode)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrReschedulerClosed
	}
	r.mu.Unlock()

	// Only a pending sensor can be claimed; one already polling belongs to another run.
	if err := s.start(); err != nil {
		return err
	}
	out, done, err := s.pokeOnce(r.ctx)
	if done {
		r.deliver(Result{Outcome: out, Err: err})
		return nil
	}

	jobID := out.RunID.String()
	job := taskman.Job{
		ID:       jobID,
		Cadence:  s.Config().PokeInterval,
		NextExec: time.Now().Add(s.Config().PokeInterval),
		Tasks:    []taskman.Task{&rescheduledPoke{r: r, sensor: s, jobID: jobID}},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReschedulerClosed
	}
	if err := r.taskManager.ScheduleJob(job); err != nil {
		return fmt.Errorf("error scheduling sensor %q: %w", s.Name(), err)
	}
	r.sensors[jobID] = s

	log.Debug().Str("sensor", s.Name()).Str("job_id", jobID).Msg("sensor rescheduled")
	s.metrics.ObserveEvent(EventSensorRescheduled, map[string]any{"sensor": s.Name()})
	return nil
}

// Results returns the channel on which terminal outcomes are delivered. It is closed by Close.
func (r *Rescheduler) Results() <-chan Result {
	return r.resultChan
}

// Pending returns the number of sensors still scheduled.
func (r *Rescheduler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sensors)
}

// Close stops the task manager, abandons the sensors still scheduled and closes Results.
func (r *Rescheduler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	close(r.doneChan)
	r.taskManager.Stop()
	r.wg.Wait()

	r.resultMu.Lock()
	r.resultClosed = true
	close(r.resultChan)
	r.resultMu.Unlock()
	return nil
}

// deliver sends a result unless the Rescheduler is shutting down.
func (r *Rescheduler) deliver(res Result) {
	r.resultMu.RLock()
	defer r.resultMu.RUnlock()
	if r.resultClosed {
		return
	}
	select {
	case r.resultChan <- res:
	case <-r.doneChan:
	}
}

// removeFinishedJobs removes jobs of sensors that reached a terminal state. Jobs are not removed
// from inside their own execution.
func (r *Rescheduler) removeFinishedJobs() {
	defer r.wg.Done()
	for {
		select {
		case jobID := <-r.removeChan:
			r.mu.Lock()
			delete(r.sensors, jobID)
			if !r.closed {
				if err := r.taskManager.RemoveJob(jobID); err != nil {
					log.Warn().Err(err).Str("job_id", jobID).Msg("error removing finished job")
				}
			}
			r.mu.Unlock()
		case <-r.doneChan:
			return
		}
	}
}

// rescheduledPoke is an implementation of taskman.Task that runs one Step of a sensor.
type rescheduledPoke struct {
	r      *Rescheduler
	sensor *Sensor
	jobID  string

	mu       sync.Mutex
	finished bool
}

// Execute runs one poll cycle. Executions overlapping a running one are dropped.
func (p *rescheduledPoke) Execute() error {
	if !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()
	if p.finished {
		return nil
	}

	out, done, err := p.sensor.Step(p.r.ctx)
	if !done {
		return nil
	}
	p.finished = true

	p.r.deliver(Result{Outcome: out, Err: err})
	select {
	case p.r.removeChan <- p.jobID:
	case <-p.r.doneChan:
	}
	return err
}
