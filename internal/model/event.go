package model

import "time"

// CommandScheduledEvent is what the event bus delivers to the scheduling
// front-end (§6 "Event bus"). The bus and its wire format are out of scope
// here; this struct is the boundary the scheduler actually consumes.
type CommandScheduledEvent struct {
	AggregateID    string
	AggregateType  string
	SequenceNumber int64
	CommandName    string
	Payload        string
	// RequiresDurableScheduling, if false and the command is already due,
	// permits the scheduling front-end to elide the persistent row (§4.5).
	RequiresDurableScheduling bool
	DueTime                   *time.Time
	// Metadata is the event's extensible attribute bag. The recognized key
	// "ClockName" lets an event pin its command to a specific clock.
	Metadata map[string]string
	Etag     string
}

// ClockName reads the well-known "ClockName" metadata attribute, if present.
func (e CommandScheduledEvent) ClockName() (string, bool) {
	if e.Metadata == nil {
		return "", false
	}
	name, ok := e.Metadata["ClockName"]
	return name, ok && name != ""
}

// Tenant reads the well-known "Tenant" metadata attribute, defaulting to
// "default" — used only for admission-limiter keying and observability.
func (e CommandScheduledEvent) Tenant() string {
	if e.Metadata == nil {
		return "default"
	}
	if t, ok := e.Metadata["Tenant"]; ok && t != "" {
		return t
	}
	return "default"
}
