// Package notify defines the sink through which update components report
// human-readable progress. The CLI renders it in colour; tests record it.
package notify

import (
	"fmt"
	"sync"
)

// Notifier receives user-facing progress messages.
type Notifier interface {
	// Step announces the start or end of a phase.
	Step(msg string)
	// Detail reports a minor action inside a phase.
	Detail(msg string)
	// Info reports neutral guidance.
	Info(msg string)
	// Warn reports a non-fatal problem.
	Warn(msg string)
	// Success reports a completed phase.
	Success(msg string)
}

// Discard drops every message.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Step(string)    {}
func (discard) Detail(string)  {}
func (discard) Info(string)    {}
func (discard) Warn(string)    {}
func (discard) Success(string) {}

// Level tags a recorded message.
type Level string

const (
	LevelStep    Level = "step"
	LevelDetail  Level = "detail"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelSuccess Level = "success"
)

// Message is one recorded notification.
type Message struct {
	Level Level
	Text  string
}

func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Level, m.Text)
}

// Recorder keeps every message in order. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Text: text})
}

func (r *Recorder) Step(msg string)    { r.add(LevelStep, msg) }
func (r *Recorder) Detail(msg string)  { r.add(LevelDetail, msg) }
func (r *Recorder) Info(msg string)    { r.add(LevelInfo, msg) }
func (r *Recorder) Warn(msg string)    { r.add(LevelWarn, msg) }
func (r *Recorder) Success(msg string) { r.add(LevelSuccess, msg) }

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Texts returns the text of every message at level.
func (r *Recorder) Texts(level Level) []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Level == level {
			out = append(out, m.Text)
		}
	}
	return out
}
