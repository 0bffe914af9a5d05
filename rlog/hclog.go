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

	"github.com/hashicorp/go-hclog"
)

const (
	hclogArgs = "hclog.args"
	hclogName = "hclog.name"
)

// AsHCLog adapts l to hclog.Logger, letting any dependency that takes
// an hclog.Logger (e.g. a raft or plugin library) log through the
// same sink as the rest of the reactor.
func AsHCLog(l Logger) hclog.Logger {
	return &hclogAdapter{l: l}
}

type hclogAdapter struct {
	l Logger
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Off, hclog.NoLevel:
		return
	case hclog.Trace, hclog.Debug:
		h.l.Debug(msg, args...)
	case hclog.Info:
		h.l.Info(msg, args...)
	case hclog.Warn:
		h.l.Warning(msg, args...)
	case hclog.Error:
		h.l.Error(msg, args...)
	}
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.l.Debug(msg, args...) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.l.Debug(msg, args...) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.l.Info(msg, args...) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.l.Warning(msg, args...) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.l.Error(msg, args...) }

func (h *hclogAdapter) IsTrace() bool { return h.l.GetLevel() >= DebugLevel }
func (h *hclogAdapter) IsDebug() bool { return h.l.GetLevel() >= DebugLevel }
func (h *hclogAdapter) IsInfo() bool  { return h.l.GetLevel() >= InfoLevel }
func (h *hclogAdapter) IsWarn() bool  { return h.l.GetLevel() >= WarnLevel }
func (h *hclogAdapter) IsError() bool { return h.l.GetLevel() >= ErrorLevel }

func (h *hclogAdapter) ImpliedArgs() []interface{} {
	if a, ok := h.l.GetFields()[hclogArgs]; ok {
		if s, ok := a.([]interface{}); ok {
			return s
		}
	}
	return nil
}

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	h.l.SetFields(h.l.GetFields().Add(hclogArgs, args))
	return h
}

func (h *hclogAdapter) Name() string {
	if a, ok := h.l.GetFields()[hclogName]; ok {
		if s, ok := a.(string); ok {
			return s
		}
	}
	return ""
}

func (h *hclogAdapter) Named(name string) hclog.Logger {
	h.l.SetFields(h.l.GetFields().Add(hclogName, name))
	return h
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return h.Named(name)
}

func (h *hclogAdapter) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Off, hclog.NoLevel:
		h.l.SetLevel(NilLevel)
	case hclog.Trace, hclog.Debug:
		h.l.SetLevel(DebugLevel)
	case hclog.Info:
		h.l.SetLevel(InfoLevel)
	case hclog.Warn:
		h.l.SetLevel(WarnLevel)
	case hclog.Error:
		h.l.SetLevel(ErrorLevel)
	}
}

func (h *hclogAdapter) GetLevel() hclog.Level {
	switch h.l.GetLevel() {
	case NilLevel:
		return hclog.Off
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel, FatalLevel, PanicLevel:
		return hclog.Error
	default:
		return hclog.NoLevel
	}
}

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return h.l.GetStdLogger(InfoLevel, 0)
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return h.l
}
