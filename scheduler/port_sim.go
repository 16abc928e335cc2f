package scheduler

import (
	"fmt"
	"runtime"
	"time"
)

// spawnTask starts the goroutine that will execute t's entry function
// once the scheduler first hands it the CPU token. The goroutine parks on
// token immediately; it is the Go analogue of a task whose stack has been
// synthesized but has not yet been selected to run.
func (s *Scheduler) spawnTask(idx int16, fr *frame) {
	t := &s.pool.tasks[idx]
	name := t.name
	token := t.token
	go s.taskMain(idx, name, fr, token)
}

// taskMain is the goroutine body for one task. It never returns to its
// caller in the TaskFunc sense: either entry runs forever, or returning
// (voluntarily or via panic) routes into the fault trap (spec.md §4.4,
// §6, §7 "Fatal (CPU-level)").
func (s *Scheduler) taskMain(idx int16, name string, fr *frame, token chan struct{}) {
	<-token
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.handleFault(idx, name, fmt.Sprintf("panic: %v", r))
			}
		}()
		fr.entry(fr.param)
		s.handleFault(idx, name, "task entry function returned")
	}()
}

// handleFault logs the fatal condition, invokes the configured fault
// handler, and — if that handler returns instead of terminating the
// process — still performs the handoff away from this task so the
// scheduler does not wedge waiting for a token that will never come back.
func (s *Scheduler) handleFault(idx int16, name, reason string) {
	s.log.Errorf("scheduler: task %q fault: %s", name, reason)
	s.onFault(name, reason)
	s.rescheduleTerminal(nil)
}

// checkStackCanary logs (but does not halt) when a task's stack canary
// has been overwritten. A real port treats this as undefined behavior
// (spec.md §4.4 "Failure semantics"); the host simulation only has a
// canary to check in the first place because nothing else can detect
// overflow of a byte slice that nothing actually indexes during normal
// operation.
func (s *Scheduler) checkStackCanary(idx int16) {
	t := &s.pool.tasks[idx]
	if !canaryIntact(s.pool.stacks[t.stackBase]) {
		s.log.Errorf("scheduler: task %q stack canary corrupted", t.name)
	}
}

// dispatchIfIdleLocked hands the CPU token to the next ready task when
// the scheduler is currently idle (current == noLink) and already
// started. Must be called with s.mu held; a no-op otherwise. This is what
// lets a tick-goroutine wake-up or a freshly created task actually start
// running when nothing else holds the token to notice on its own.
func (s *Scheduler) dispatchIfIdleLocked() {
	if !s.running || s.current != noLink {
		return
	}
	next := s.selectNext()
	if next == noLink {
		return
	}
	s.current = next
	nt := &s.pool.tasks[next]
	nt.state = StateRunning
	s.checkStackCanary(next)
	nt.token <- struct{}{} // buffered(1); never blocks
}

// rescheduleVoluntary performs a switch away from task idx, which remains
// schedulable (Ready or Blocked-with-a-wake-tick) and is expected to be
// resumed later. It blocks until idx is handed the token again. Mirrors
// the PendSV handler's save-select-restore sequence (spec.md §4.1),
// collapsed into one synchronous call because in this goroutine model the
// "save" step is simply "this goroutine stops running," which Go already
// guarantees once it blocks on myToken.
func (s *Scheduler) rescheduleVoluntary(idx int16) {
	s.lock()
	s.needSchedule = false
	next := s.selectNext()
	myToken := s.pool.tasks[idx].token

	if next == idx {
		s.current = idx
		s.pool.tasks[idx].state = StateRunning
		s.unlock()
		return
	}

	s.current = next
	if next != noLink {
		nt := &s.pool.tasks[next]
		nt.state = StateRunning
		s.checkStackCanary(next)
		nt.token <- struct{}{}
	}
	s.unlock()

	<-myToken
}

// rescheduleTerminal hands the CPU off to the next ready task (or idles)
// on behalf of a task that will never run again — because it deleted
// itself or faulted — runs cleanup, and then ends the calling goroutine
// via runtime.Goexit so that, exactly as spec.md §4.4 requires, control
// never returns to the deleted task's own code.
func (s *Scheduler) rescheduleTerminal(cleanup func()) {
	s.lock()
	next := s.selectNext()
	s.current = next
	if next != noLink {
		nt := &s.pool.tasks[next]
		nt.state = StateRunning
		s.checkStackCanary(next)
		nt.token <- struct{}{}
	}
	s.needSchedule = false
	s.unlock()

	if cleanup != nil {
		cleanup()
	}
	runtime.Goexit()
}

// Start launches the first task (the highest-priority ready task at the
// time of the call), arms the periodic tick, globally "enables
// interrupts," and blocks until Stop is called (spec.md §4.1: "Never
// returns" in production; Stop exists so hosted tests can shut a
// Scheduler down cleanly).
func (s *Scheduler) Start() {
	s.lock()
	s.running = true
	s.dispatchIfIdleLocked()
	s.unlock()

	go s.tickLoop()

	<-s.tickerStop
	close(s.tickerDone)
}

// Stop arms the tick ticker's shutdown and unblocks Start. Intended for
// tests; production firmware never calls it.
func (s *Scheduler) Stop() {
	select {
	case <-s.tickerStop:
		// already stopped
	default:
		close(s.tickerStop)
	}
	<-s.tickerDone
}

// tickLoop is the host stand-in for SysTick_Handler plus port_setup_systick:
// a periodic ticker at cfg.TickHz calling onTick, running at what would be
// the lowest exception priority (here: a goroutine that only ever touches
// shared state through the same mutex every other entry point uses).
func (s *Scheduler) tickLoop() {
	period := time.Second / time.Duration(s.cfg.TickHz)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.onTick()
			s.lock()
			if s.needSchedule {
				s.dispatchIfIdleLocked()
			}
			s.unlock()
		case <-s.tickerStop:
			return
		}
	}
}
