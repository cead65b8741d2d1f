package eventlog

import (
	"fmt"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelStep    Level = "step"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warning"
	LevelError   Level = "error"
)

// Event is one structured run event. The core emits these as data; sinks
// decide how they are rendered or persisted.
type Event struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Host    string    `json:"host,omitempty"`
	Message string    `json:"message"`
}

type Sink interface {
	Emit(e Event)
	// Section marks the start of one host's processing.
	Section(host string)
}

// Log fans events out to every attached sink.
type Log struct {
	sinks []Sink
}

func New(sinks ...Sink) *Log {
	return &Log{sinks: sinks}
}

func (l *Log) emit(level Level, host, format string, args ...interface{}) {
	e := Event{
		Time:    time.Now(),
		Level:   level,
		Host:    host,
		Message: fmt.Sprintf(format, args...),
	}
	for _, s := range l.sinks {
		s.Emit(e)
	}
}

func (l *Log) Section(host string) {
	for _, s := range l.sinks {
		s.Section(host)
	}
}

func (l *Log) Info(host, format string, args ...interface{}) {
	l.emit(LevelInfo, host, format, args...)
}

func (l *Log) Step(host, format string, args ...interface{}) {
	l.emit(LevelStep, host, format, args...)
}

func (l *Log) Success(host, format string, args ...interface{}) {
	l.emit(LevelSuccess, host, format, args...)
}

func (l *Log) Warn(host, format string, args ...interface{}) {
	l.emit(LevelWarn, host, format, args...)
}

func (l *Log) Error(host, format string, args ...interface{}) {
	l.emit(LevelError, host, format, args...)
}
