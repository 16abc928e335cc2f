package scheduler

import "encoding/binary"

// stackCanary is written to the first word of every task's stack slice at
// creation and checked on every simulated context switch (Design Notes §9:
// an optional canary word for overflow detection). A real port would place
// this at the lowest address the stack can grow down to; here it simply
// occupies the first 4 bytes of the pool's backing slice for that task.
const stackCanary uint32 = 0xA5A5A5A5

// frame is the Go stand-in for the synthesized Cortex-M exception frame
// port_init_stack builds in the original firmware (modules/scheduler/port/ARM_CM4F/port.c).
// The real frame layout — xPSR, PC, LR=fault-trap, R0=param, zeroed
// R1-R3/R12, zeroed callee-saved R4-R11, EXC_RETURN — has no machine
// meaning on a host running Go goroutines, so frame keeps only the two
// fields that matter to this simulation: what to run, and with what
// argument. handleFault (port_sim.go) mirrors the original's "LR points at a routine that
// halts if the task ever returns" by naming the behavior explicitly
// instead of encoding it as a return address.
type frame struct {
	entry TaskFunc
	param any
}

// initStack writes the stack canary into stackBytes and returns the
// synthesized frame that taskMain will run when the task is first
// scheduled. Mirrors port_init_stack's role exactly, minus the bytes that
// only matter to a real CPU's exception-return sequence.
func initStack(stackBytes []byte, entry TaskFunc, param any) *frame {
	if len(stackBytes) >= 4 {
		binary.LittleEndian.PutUint32(stackBytes[:4], stackCanary)
	}
	return &frame{entry: entry, param: param}
}

// canaryIntact reports whether stackBytes still holds the canary written
// by initStack. Checked on every simulated switch in checkStackCanary.
func canaryIntact(stackBytes []byte) bool {
	if len(stackBytes) < 4 {
		return true
	}
	return binary.LittleEndian.Uint32(stackBytes[:4]) == stackCanary
}
