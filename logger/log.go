package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger tags every entry with the protocol it belongs to. Debug entries
// are emitted only when the logger was created in debug mode.
type Logger struct {
	flag  bool
	proto string
	base  *logrus.Logger
}

func New(flag bool, proto string) *Logger {
	return WithLogger(logrus.StandardLogger(), flag, proto)
}

// WithLogger builds a Logger writing to l instead of the standard logger.
func WithLogger(l *logrus.Logger, flag bool, proto string) *Logger {
	if flag {
		l.SetLevel(logrus.DebugLevel)
	}
	return &Logger{
		flag:  flag,
		proto: proto,
		base:  l,
	}
}

func (l *Logger) DebugMode() bool {
	return l.flag
}

func (l *Logger) fields() *logrus.Entry {
	return l.base.WithFields(logrus.Fields{
		"protocol": l.proto,
	})
}

// With returns an entry carrying the protocol field plus f.
func (l *Logger) With(f logrus.Fields) *logrus.Entry {
	return l.fields().WithFields(f)
}

func (l *Logger) Info(args ...interface{}) {
	l.fields().Info(args...)
}

func (l *Logger) Debug(args ...interface{}) {
	if l.flag {
		l.fields().Debug(args...)
	}
}

func (l *Logger) Warn(args ...interface{}) {
	l.fields().Warn(args...)
}

func (l *Logger) Error(args ...interface{}) {
	l.fields().Error(args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.fields().Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.flag {
		l.fields().Debugf(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.fields().Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.fields().Errorf(format, args...)
}

// Transition logs a state change of a connection with its counters.
func (l *Logger) Transition(state, peer string, seq, ack uint32, msg string) {
	l.With(logrus.Fields{
		"state": state,
		"peer":  peer,
		"seq":   seq,
		"ack":   ack,
	}).Info(msg)
}
