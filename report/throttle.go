package report

import "gorbl/core"

// ScheduledField is the countdown gating an optional status field. Each
// poll ticks it; when it reaches zero the field is emitted and the counter
// is reseeded from the busy or idle interval of the current state.
//
// A counter of -1 marks a forced emission; for the override field it also
// forces the accessory field.
type ScheduledField struct {
	counter int
	busy    int
	idle    int
}

// NewScheduledField creates a field that is due on the first poll
func NewScheduledField(busy, idle int) ScheduledField {
	return ScheduledField{busy: busy, idle: idle}
}

// Counter returns the current countdown value
func (s *ScheduledField) Counter() int {
	return s.counter
}

// Due reports whether the field would be emitted on this poll
func (s *ScheduledField) Due() bool {
	return s.counter <= 0
}

// Forced reports whether the next emission was forced
func (s *ScheduledField) Forced() bool {
	return s.counter < 0
}

// Tick counts one poll. It returns true when the field is due, in which
// case the counter is left for Reseed.
func (s *ScheduledField) Tick() bool {
	if s.counter > 0 {
		s.counter--
		return false
	}
	return true
}

// Reseed restarts the countdown for state st
func (s *ScheduledField) Reseed(st core.MachineState) {
	if st.Busy() {
		s.counter = s.busy - 1
	} else {
		s.counter = s.idle - 1
	}
}

// Force makes the field due on the next poll
func (s *ScheduledField) Force() {
	if s.counter > 0 {
		s.counter = 0
	}
}

// ForceAll makes the field due on the next poll and marks it forced
func (s *ScheduledField) ForceAll() {
	s.counter = -1
}
