// Package config holds the compile-time configuration knobs for the
// scheduler and the HYlink parser (spec §6). The original firmware sets
// these as preprocessor defines in scheduler.h and board-specific config
// headers; here they are fields on a validated struct instead, since a
// host build has no preprocessor stage to bind them at.
package config

import "fmt"

// Config collects every knob recognized by the core. Zero-value fields
// are not valid configuration; use Default and override individual
// fields from there.
type Config struct {
	// MaxTasks bounds the TCB and stack pools.
	MaxTasks int
	// MaxPriorities bounds the priority bitmap; valid priorities are
	// 0..MaxPriorities-1.
	MaxPriorities int
	// TickHz is the periodic tick frequency.
	TickHz int
	// TimeSliceTicks is the round-robin quantum.
	TimeSliceTicks uint32
	// DefaultStackBytes is the size of every pool stack. Must be a
	// multiple of 8 (8-byte alignment) and at least MinStackBytes.
	DefaultStackBytes int
	// MaxPayloadBytes sizes transport.Serial's read-chunk buffer. It is a
	// deployment tuning knob, not a protocol limit: hylink's own
	// HeaderSize/MaxDataSize constants bound what a frame may declare
	// regardless of this value.
	MaxPayloadBytes int
}

// MinStackBytes is the smallest stack size the pool will accept.
const MinStackBytes = 256

// Default returns the knob values named in spec.md §6.
func Default() Config {
	return Config{
		MaxTasks:          16,
		MaxPriorities:      8,
		TickHz:             1000,
		TimeSliceTicks:     10,
		DefaultStackBytes:  256,
		MaxPayloadBytes:    1024,
	}
}

// Validate rejects configurations the pools or the bitmap cannot represent.
func (c Config) Validate() error {
	if c.MaxTasks <= 0 || c.MaxTasks > 32 {
		return fmt.Errorf("config: MaxTasks must be in 1..32, got %d", c.MaxTasks)
	}
	if c.MaxPriorities <= 0 || c.MaxPriorities > 8 {
		return fmt.Errorf("config: MaxPriorities must be in 1..8, got %d", c.MaxPriorities)
	}
	if c.TickHz <= 0 {
		return fmt.Errorf("config: TickHz must be positive, got %d", c.TickHz)
	}
	if c.TimeSliceTicks == 0 {
		return fmt.Errorf("config: TimeSliceTicks must be positive")
	}
	if c.DefaultStackBytes < MinStackBytes {
		return fmt.Errorf("config: DefaultStackBytes must be >= %d, got %d", MinStackBytes, c.DefaultStackBytes)
	}
	if c.DefaultStackBytes%8 != 0 {
		return fmt.Errorf("config: DefaultStackBytes must be 8-byte aligned, got %d", c.DefaultStackBytes)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("config: MaxPayloadBytes must be positive, got %d", c.MaxPayloadBytes)
	}
	return nil
}
