package main

import (
	"sync"
	"time"
)

// ProgressStream carries ordered ProgressEvents from one pipeline run to one
// consumer. The orchestrator is the only producer; it calls Finish after the
// terminal event. The consumer calls Close when it stops listening — emits
// after that are dropped silently, never an error, so a client that navigated
// away does not break a run still writing artifacts.
type ProgressStream struct {
	events chan ProgressEvent
	done   chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once
}

const progressBuffer = 64

func NewProgressStream() *ProgressStream {
	return &ProgressStream{
		events: make(chan ProgressEvent, progressBuffer),
		done:   make(chan struct{}),
	}
}

// Events is the consumer side. The channel closes once the producer finishes.
func (s *ProgressStream) Events() <-chan ProgressEvent {
	return s.events
}

// Done reports consumer disconnection.
func (s *ProgressStream) Done() <-chan struct{} {
	return s.done
}

// Emit appends one event in producer order. Blocks only while the buffer is
// full and the consumer is still attached.
func (s *ProgressStream) Emit(ev ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Close detaches the consumer. Safe to call any number of times.
func (s *ProgressStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Finish ends the event sequence. Producer-only, after the last Emit;
// idempotent.
func (s *ProgressStream) Finish() {
	s.finishOnce.Do(func() {
		close(s.events)
	})
}

// Log emits a narration event.
func (s *ProgressStream) Log(msg string) {
	s.Emit(ProgressEvent{Kind: EventLog, Message: msg})
}

// Info emits an informational event.
func (s *ProgressStream) Info(msg string) {
	s.Emit(ProgressEvent{Kind: EventInfo, Message: msg})
}

// Success emits a success narration event.
func (s *ProgressStream) Success(msg string) {
	s.Emit(ProgressEvent{Kind: EventSuccess, Message: msg})
}

// Progress emits a step counter with a derived percentage.
func (s *ProgressStream) Progress(msg string, current, total int, detail string) {
	percent := 0.0
	if total > 0 {
		percent = 100 * float64(current) / float64(total)
	}
	s.Emit(ProgressEvent{
		Kind:    EventProgress,
		Message: msg,
		Current: current,
		Total:   total,
		Percent: percent,
		Detail:  detail,
	})
}

// Content surfaces a scraped page for live display.
func (s *ProgressStream) Content(source SanitizedSource) {
	s.Emit(ProgressEvent{Kind: EventContent, Message: source.URL, Payload: source})
}

// Error emits an error event. Fatal run-level errors use this once, right
// before Finish.
func (s *ProgressStream) Error(msg string) {
	s.Emit(ProgressEvent{Kind: EventError, Message: msg})
}

// Complete emits the terminal result payload.
func (s *ProgressStream) Complete(result PipelineResult) {
	s.Emit(ProgressEvent{Kind: EventComplete, Message: "dataset ready", Payload: result})
}
