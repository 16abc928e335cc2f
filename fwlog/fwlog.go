// Package fwlog gives every package in this module one shared structured
// logger. The original firmware has no logging layer of its own beyond an
// occasional diagnostic printf on an exception path; a host build gets a
// real structured logger instead.
package fwlog

import "github.com/sirupsen/logrus"

// logger is the process-wide logger. Swappable via SetLogger for tests
// that want to assert on log output or silence it entirely.
var logger = logrus.StandardLogger()

// Get returns the shared logger.
func Get() *logrus.Logger { return logger }

// SetLogger replaces the shared logger. Intended for tests and for
// cmd/fwsim wiring a formatter/level from flags.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	logger = l
}

// Fields is a convenience alias so callers don't need to import logrus
// directly just to attach structured fields.
type Fields = logrus.Fields
