package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Nowaterisenough/EmbeddedTemplate/config"
	"github.com/Nowaterisenough/EmbeddedTemplate/fwlog"
)

// ErrInvalidPriority is returned when a priority falls outside
// 0..MaxPriorities-1.
var ErrInvalidPriority = errors.New("scheduler: priority out of range")

// ErrNilEntry is returned when TaskCreate is given a nil entry function.
var ErrNilEntry = errors.New("scheduler: entry function is nil")

// Scheduler is one process-wide-lifetime scheduler instance (Design Notes
// §9: "encapsulate singletons in a single scheduler instance"). Its
// exported methods are exactly the public contract of spec.md §4.4.
type Scheduler struct {
	cfg config.Config
	log *logrus.Logger

	pool  *pool
	ready *readySet

	mu          sync.Mutex // the "disable interrupts" lock
	critNesting uint32     // nesting depth; mutated only by the currently running task

	tick atomic.Uint32

	current      int16 // index of the running task, noLink when idle
	running      bool  // true once Start has been called
	needSchedule bool

	onFault func(taskName string, reason string)

	tickerStop chan struct{}
	tickerDone chan struct{}
}

// New constructs a Scheduler from cfg. Returns an error if cfg fails
// validation (spec.md §6 configuration knobs).
func New(cfg config.Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:        cfg,
		log:        fwlog.Get(),
		pool:       newPool(cfg.MaxTasks, cfg.DefaultStackBytes),
		current:    noLink,
		tickerStop: make(chan struct{}),
		tickerDone: make(chan struct{}),
		onFault:    defaultFault,
	}
	s.ready = newReadySet(cfg.MaxPriorities, s.pool.tasks)
	return s, nil
}

func defaultFault(taskName, reason string) {
	panic(fmt.Sprintf("scheduler: fatal fault in task %q: %s", taskName, reason))
}

var (
	defaultOnce sync.Once
	defaultInst *Scheduler
)

// Default returns a process-wide Scheduler built from config.Default(),
// constructing it on first use. It exists so cmd/fwsim and the port layer
// have one shared instance to reference the way the original firmware
// references its single global scheduler_context (Design Notes §9);
// tests should construct their own *Scheduler via New instead of sharing
// this one.
func Default() *Scheduler {
	defaultOnce.Do(func() {
		s, err := New(config.Default())
		if err != nil {
			panic(fmt.Sprintf("scheduler: default config failed validation: %v", err))
		}
		defaultInst = s
	})
	return defaultInst
}

// SetFaultHandler overrides what happens when a task's entry function
// returns or panics (spec.md §4.4, §7 "Fatal (CPU-level)"). Tests
// typically install one that records the call instead of the default,
// which panics the test process.
func (s *Scheduler) SetFaultHandler(f func(taskName, reason string)) {
	if f != nil {
		s.onFault = f
	}
}

// Init clears all pools, zeroes the tick counter, ready set, and critical
// nesting (spec.md §4.4). Idempotent before Start. Calling Init after
// Start has no effect on already-running tasks; it exists for symmetry
// with the C API and for tests that want a fresh scheduler without
// constructing a new one.
func (s *Scheduler) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.pool.reset()
	s.ready.reset()
	s.tick.Store(0)
	s.critNesting = 0
	s.current = noLink
	s.needSchedule = false
}

// EnterCritical disables interrupts (suppresses the tick and switch
// routines) with nesting; only the outermost ExitCritical re-enables
// (spec.md §4.4, §5). Legal from thread and ISR contexts; by this
// simulation's single-CPU-token invariant it is only ever the currently
// running task's goroutine that calls it, so the nesting counter needs no
// separate synchronization of its own.
func (s *Scheduler) EnterCritical() {
	if s.critNesting == 0 {
		s.mu.Lock()
	}
	s.critNesting++
}

// ExitCritical is the matching release for EnterCritical. A call with no
// matching EnterCritical is a no-op, mirroring the original's unchecked
// nesting counter (an unbalanced exit in the C source would underflow a
// uint32 and never re-enable interrupts; here it is simply ignored).
func (s *Scheduler) ExitCritical() {
	if s.critNesting == 0 {
		return
	}
	s.critNesting--
	if s.critNesting == 0 {
		s.mu.Unlock()
	}
}

// lock/unlock back the scheduler's internal routines (onTick, reschedule,
// TaskCreate/TaskDelete's ready-set mutation). They take s.mu directly,
// the same mutex EnterCritical holds. s.mu is not reentrant, so a task that
// calls any exported method other than GetTick, EnterCritical and
// ExitCritical between its own EnterCritical and ExitCritical blocks
// forever.
func (s *Scheduler) lock()   { s.mu.Lock() }
func (s *Scheduler) unlock() { s.mu.Unlock() }

// GetTick returns the current tick count. Lock-free; safe at any priority.
func (s *Scheduler) GetTick() uint32 { return s.tick.Load() }

// GetCurrent returns a handle to the running task, or the zero Handle if
// no task is currently running (before Start, or while idle).
func (s *Scheduler) GetCurrent() Handle {
	s.lock()
	defer s.unlock()
	if s.current == noLink {
		return Handle{}
	}
	t := &s.pool.tasks[s.current]
	return Handle{index: s.current, gen: t.slotGen}
}

// resolve validates h against the live pool and returns the backing tcb,
// or nil if h is stale or zero.
func (s *Scheduler) resolve(h Handle) *tcb {
	if !h.Valid() || int(h.index) < 0 || int(h.index) >= len(s.pool.tasks) {
		return nil
	}
	t := &s.pool.tasks[h.index]
	if t.slotGen != h.gen || t.state == StateDeleted {
		return nil
	}
	return t
}

// TaskCreate draws a TCB and a stack from their pools, synthesizes the
// initial frame, and inserts the task at the tail of its priority's ready
// queue (spec.md §4.4). Fails with ErrPoolExhausted or ErrInvalidPriority/
// ErrNilEntry without mutating any state.
func (s *Scheduler) TaskCreate(entry TaskFunc, name string, stackSizeHint int, param any, priority uint8) (Handle, error) {
	if entry == nil {
		return Handle{}, ErrNilEntry
	}
	if int(priority) >= s.cfg.MaxPriorities {
		return Handle{}, ErrInvalidPriority
	}
	_ = stackSizeHint // honored only as a hint; every task gets cfg.DefaultStackBytes (spec.md §6)

	s.lock()

	idx := s.pool.allocTCB()
	if idx == noLink {
		s.unlock()
		s.log.Warnf("scheduler: task %q rejected, TCB pool exhausted (max %d)", name, s.cfg.MaxTasks)
		return Handle{}, ErrPoolExhausted
	}
	stackIdx := s.pool.allocStack()
	if stackIdx < 0 {
		s.pool.freeTCB(idx)
		s.unlock()
		s.log.Warnf("scheduler: task %q rejected, stack pool exhausted (max %d)", name, s.cfg.MaxTasks)
		return Handle{}, ErrPoolExhausted
	}

	t := &s.pool.tasks[idx]
	stackBytes := s.pool.stacks[stackIdx]
	fr := initStack(stackBytes, entry, param)

	t.sp = fr
	t.entry = entry
	t.param = param
	t.priority = priority
	t.state = StateReady
	t.timeSlice = s.cfg.TimeSliceTicks
	t.wakeTick = 0
	t.name = name
	t.stackBase = stackIdx
	t.stackSize = len(stackBytes)
	t.token = make(chan struct{}, 1)

	s.ready.insert(idx)

	h := Handle{index: idx, gen: t.slotGen}

	preempt := s.running && s.current != noLink && priority > s.pool.tasks[s.current].priority
	if s.running && s.current == noLink {
		// Nothing currently holds the CPU token to notice this new task on
		// its own; dispatch it directly, as Start/tickLoop do.
		s.dispatchIfIdleLocked()
	}
	s.unlock()

	s.spawnTask(idx, fr)

	if preempt {
		s.Yield()
	}

	return h, nil
}

// TaskDelete removes task from any queue, releases its resources, and
// marks it Deleted (spec.md §4.4). Deleting the currently running task
// triggers an immediate switch that never returns to the deleted task's
// code; the TCB is released before that switch completes, and the stack
// slot is released only after the handoff to the next task, per spec.md
// §3's "memory not reused until the in-flight switch completes."
func (s *Scheduler) TaskDelete(h Handle) {
	s.lock()
	t := s.resolve(h)
	if t == nil {
		s.unlock()
		return
	}
	idx := h.index
	self := s.current == idx

	// Unconditional: remove() is a structural no-op when idx is not
	// actually linked (Running/Blocked tasks aren't), so this also covers
	// the Ready case without needing to branch on t.state.
	s.ready.remove(idx)
	t.state = StateDeleted
	stackIdx := t.stackBase
	s.pool.freeTCB(idx)

	if !self {
		s.pool.freeStack(stackIdx)
		s.unlock()
		return
	}

	// Deleting self: release the stack only after the handoff away from
	// this task completes, so the slot is never reused while this
	// goroutine might still touch it.
	s.unlock()
	s.rescheduleTerminal(func() {
		s.lock()
		s.pool.freeStack(stackIdx)
		s.unlock()
	})
	// rescheduleTerminal never returns to this goroutine's caller.
}

// Yield pends a switch and returns once this task is scheduled again
// (spec.md §4.4). Safe to call from any task context.
func (s *Scheduler) Yield() {
	s.lock()
	idx := s.current
	if idx == noLink {
		s.unlock()
		return
	}
	t := &s.pool.tasks[idx]
	t.state = StateReady
	s.ready.insert(idx)
	s.unlock()
	s.rescheduleVoluntary(idx)
}

// CheckPreempt is a cheap checkpoint a task loop may call periodically to
// honor an involuntary preemption request raised by the tick routine
// (time-slice expiry, or a higher-priority task waking) without giving up
// the CPU on every call. Real hardware preempts at any instruction
// boundary; a hosted goroutine simulation can only preempt where task code
// cooperates, so loops that never call Delay/Yield should call this
// instead. See SPEC_FULL.md §0.
func (s *Scheduler) CheckPreempt() {
	s.lock()
	need := s.needSchedule
	idx := s.current
	if need && idx != noLink {
		t := &s.pool.tasks[idx]
		t.state = StateReady
		s.ready.insert(idx)
	}
	s.unlock()
	if need && idx != noLink {
		s.rescheduleVoluntary(idx)
	}
}

// Delay blocks the current task for ticks system ticks (spec.md §4.4).
// ticks == 0 is a no-op.
func (s *Scheduler) Delay(ticks uint32) {
	if ticks == 0 {
		return
	}
	s.lock()
	idx := s.current
	if idx == noLink {
		s.unlock()
		return
	}
	t := &s.pool.tasks[idx]
	t.wakeTick = s.tick.Load() + ticks
	t.state = StateBlocked
	s.unlock()
	s.rescheduleVoluntary(idx)
}

// Name returns the debug name of the task h refers to, or "" if h is
// stale.
func (s *Scheduler) Name(h Handle) string {
	s.lock()
	defer s.unlock()
	t := s.resolve(h)
	if t == nil {
		return ""
	}
	return t.name
}

// TaskInfo is a read-only snapshot of one task's state, for introspection
// (Snapshot). Not part of the distilled spec; see SPEC_FULL.md §4.4.
type TaskInfo struct {
	Name      string
	Priority  uint8
	State     TaskState
	TimeSlice uint32
	WakeTick  uint32
}

// Snapshot returns a point-in-time view of every live task, taken under a
// critical section.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.lock()
	defer s.unlock()
	out := make([]TaskInfo, 0, len(s.pool.tasks))
	for i := range s.pool.tasks {
		t := &s.pool.tasks[i]
		if t.entry == nil || t.state == StateDeleted {
			continue
		}
		out = append(out, TaskInfo{
			Name:      t.name,
			Priority:  t.priority,
			State:     t.state,
			TimeSlice: t.timeSlice,
			WakeTick:  t.wakeTick,
		})
	}
	return out
}

// selectNext picks the head of the highest-priority non-empty ready list and
// unlinks it (spec.md §3: "the running task is not held in the ready list
// while executing"), leaving the next-highest same-priority task as the new
// head — the running task is re-inserted at the tail by the switch routine
// only if it is displaced rather than terminated, which is what realizes
// round-robin (spec.md §4.4). Must be called with s.mu held. Returns noLink
// if no task is ready.
func (s *Scheduler) selectNext() int16 {
	prio, ok := s.ready.highestReady()
	if !ok {
		return noLink
	}
	head := s.ready.heads[prio]
	s.ready.remove(head)
	return head
}

// onTick is the core tick routine (spec.md §4.4): advances the tick
// counter, wakes due Blocked tasks using wrap-safe comparison, decrements
// the running task's time slice, and raises needSchedule when a
// reschedule is warranted. Called from the tick goroutine in port_sim.go.
func (s *Scheduler) onTick() {
	s.lock()
	now := s.tick.Add(1)

	runningPrio := uint8(0)
	haveRunning := s.current != noLink
	if haveRunning {
		runningPrio = s.pool.tasks[s.current].priority
	}

	for i := range s.pool.tasks {
		t := &s.pool.tasks[i]
		if t.state != StateBlocked {
			continue
		}
		if wrapSafeDue(now, t.wakeTick) {
			t.state = StateReady
			s.ready.insert(int16(i))
			s.log.Debugf("scheduler: task %q woke at tick %d", t.name, now)
			if !haveRunning || t.priority > runningPrio {
				s.needSchedule = true
			}
		}
	}

	if haveRunning {
		t := &s.pool.tasks[s.current]
		if t.timeSlice > 0 {
			t.timeSlice--
		}
		if t.timeSlice == 0 {
			t.timeSlice = s.cfg.TimeSliceTicks
			s.needSchedule = true
		}
	}
	s.unlock()
}

// wrapSafeDue reports whether wake has arrived given the current tick
// now, using signed 32-bit wraparound comparison (spec.md §4.4, §9):
// (int32)(now - wake) >= 0.
func wrapSafeDue(now, wake uint32) bool {
	return int32(now-wake) >= 0
}
