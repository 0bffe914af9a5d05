/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package rlog

import (
	"io"
	"log"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is the structured key-value data attached to a log entry:
// loop name, connection name, fd, remote address, route path, and
// whatever else a caller wants correlated in the output.
type Fields map[string]interface{}

// Clone returns a shallow copy, so a base Fields map can be reused as
// a template without the caller's mutation leaking back.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Add returns a copy of f with key set to val.
func (f Fields) Add(key string, val interface{}) Fields {
	out := f.Clone()
	out[key] = val
	return out
}

// Logger is the structured logging facade every reactor component
// (event loop, acceptor, connection, http server) is handed at
// construction time instead of reaching for a package-level global.
type Logger interface {
	io.Writer

	SetLevel(lvl Level)
	GetLevel() Level

	SetFields(f Fields)
	GetFields() Fields

	// WithFields returns a derived Logger that merges f into its own
	// fields on every entry, leaving the receiver untouched.
	WithFields(f Fields) Logger

	Debug(message string, args ...interface{})
	Info(message string, args ...interface{})
	Warning(message string, args ...interface{})
	Error(message string, args ...interface{})
	Fatal(message string, args ...interface{})

	// GetStdLogger sets this Logger's level to lvl and returns a
	// standard log.Logger that writes through it, for bridging
	// third-party code that only accepts *log.Logger. Each line is
	// logged at Info.
	GetStdLogger(lvl Level, flags int) *log.Logger
}

type lgr struct {
	mu     sync.RWMutex
	level  Level
	fields Fields
	out    *logrus.Logger
}

// New returns a Logger at InfoLevel writing JSON-formatted entries to
// w (os.Stdout is the typical choice at the top of cmd/reactord).
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(InfoLevel.Logrus())

	return &lgr{
		level:  InfoLevel,
		fields: Fields{},
		out:    l,
	}
}

func (l *lgr) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
	l.out.SetLevel(lvl.Logrus())
}

func (l *lgr) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *lgr) SetFields(f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = f
}

func (l *lgr) GetFields() Fields {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fields.Clone()
}

func (l *lgr) WithFields(f Fields) Logger {
	merged := l.GetFields()
	for k, v := range f {
		merged[k] = v
	}
	return &lgr{level: l.GetLevel(), fields: merged, out: l.out}
}

func (l *lgr) entry() *logrus.Entry {
	return l.out.WithFields(logrus.Fields(l.GetFields()))
}

func (l *lgr) Debug(message string, args ...interface{}) {
	l.entry().Debugf(message, args...)
}

func (l *lgr) Info(message string, args ...interface{}) {
	l.entry().Infof(message, args...)
}

func (l *lgr) Warning(message string, args ...interface{}) {
	l.entry().Warnf(message, args...)
}

func (l *lgr) Error(message string, args ...interface{}) {
	l.entry().Errorf(message, args...)
}

func (l *lgr) Fatal(message string, args ...interface{}) {
	l.entry().Fatalf(message, args...)
}

// Write implements io.Writer so a Logger can back a standard
// log.Logger or an hclog.Logger's StandardWriter.
func (l *lgr) Write(p []byte) (int, error) {
	l.entry().Info(string(p))
	return len(p), nil
}

func (l *lgr) GetStdLogger(lvl Level, flags int) *log.Logger {
	l.SetLevel(lvl)
	return log.New(l, "", flags)
}
