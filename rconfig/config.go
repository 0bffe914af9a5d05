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

// Package rconfig loads and validates the settings a reactord process
// needs to stand a TcpServer/HttpServer pair up: listen/expose
// addresses, loop count, backpressure thresholds and timeouts. It is
// viper-loadable (env, file) and struct-tag validated the way
// the teacher's httpserver config is.
package rconfig

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	rerr "github.com/nabbar/reactor/errors"
)

// Config is the full set of tunables for one reactord server instance.
type Config struct {
	// Name identifies this server instance in logs and metrics.
	Name string `mapstructure:"name" json:"name" yaml:"name" toml:"name" validate:"required"`

	// Listen is the local address the acceptor binds to, host:port.
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen" validate:"required,hostname_port"`

	// Expose is the address clients are told to use to reach this
	// server, when it differs from Listen (behind a load balancer).
	Expose string `mapstructure:"expose" json:"expose" yaml:"expose" toml:"expose"`

	// ReusePort sets SO_REUSEPORT on the listening socket, letting
	// several reactord processes share one port.
	ReusePort bool `mapstructure:"reuse_port" json:"reuse_port" yaml:"reuse_port" toml:"reuse_port"`

	// LoopCount is the number of I/O event loops the server's
	// LoopPool spreads accepted connections across. Zero means one
	// loop per available CPU.
	LoopCount int `mapstructure:"loop_count" json:"loop_count" yaml:"loop_count" toml:"loop_count" validate:"gte=0"`

	// HighWaterMark is an output-buffer size in bytes. It is loaded and
	// validated but not applied: cmd/reactord does not pass it on, and
	// every TcpConnection uses its own 64 MiB threshold.
	HighWaterMark int `mapstructure:"high_water_mark" json:"high_water_mark" yaml:"high_water_mark" toml:"high_water_mark" validate:"gte=0"`

	// ReadTimeout is an idle-connection timeout. It is loaded but not
	// applied: no component closes idle connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`

	// ShutdownTimeout is a shutdown drain timeout. It is loaded but not
	// applied: TcpServer.Shutdown force-closes every connection at once
	// without waiting.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// MetricsListen is the address the Prometheus /metrics endpoint is
	// served on. Empty disables it.
	MetricsListen string `mapstructure:"metrics_listen" json:"metrics_listen" yaml:"metrics_listen" toml:"metrics_listen"`

	// LogLevel is the minimum rlog.Level name ("Debug", "Info",
	// "Warning", "Error") emitted by this instance.
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Default returns a Config with the values reactord falls back to
// when a field is left unset in the loaded file/environment.
func Default() Config {
	return Config{
		LoopCount:       0,
		HighWaterMark:   64 * 1024 * 1024,
		ReadTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "Info",
	}
}

// Validate checks c against its struct tags, returning every failing
// field as one aggregated error.
func (c Config) Validate() error {
	val := validator.New()
	err := val.Struct(c)
	if err == nil {
		return nil
	}

	if _, ok := err.(*validator.InvalidValidationError); ok {
		return rerr.New(uint16(rerr.MinPkgConfig+1), "invalid configuration value", err)
	}

	out := rerr.New(uint16(rerr.MinPkgConfig+2), "configuration validation failed")
	for _, fe := range err.(validator.ValidationErrors) {
		out = rerr.New(uint16(rerr.MinPkgConfig+2),
			fmt.Sprintf("field %q does not satisfy constraint %q", fe.Field(), fe.ActualTag()), out)
	}
	return out
}
