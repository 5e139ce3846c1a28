package model

import "time"

// Clock is a named logical time source. Its identity is Name; Now only ever
// moves forward (§3.1 invariant: "now advanced only forward").
type Clock struct {
	Name      string
	Now       time.Time
	StartTime time.Time
}

// ClockMapping associates an opaque event-derived lookup key with a clock,
// so events can be routed to a clock without carrying its name explicitly.
type ClockMapping struct {
	Value     string
	ClockName string
}
