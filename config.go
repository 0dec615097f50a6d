// Copyright 2025 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracelog

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultServiceName is used when SERVICE_NAME is unset or blank. The literal
// string "null" is kept for compatibility with existing log consumers.
const DefaultServiceName = "null"

// Config holds the environment-derived settings of a Forwarder.
type Config struct {
	ServiceName   string        `envconfig:"SERVICE_NAME" default:"null"`
	LoggerAddr    string        `envconfig:"LOGGER_SERVICE_ADDR"`
	QueueSize     int           `envconfig:"TRACELOG_QUEUE_SIZE" default:"1024"`
	Workers       int           `envconfig:"TRACELOG_WORKERS" default:"2"`
	SubmitTimeout time.Duration `envconfig:"TRACELOG_SUBMIT_TIMEOUT" default:"5s"`
	FlushTimeout  time.Duration `envconfig:"TRACELOG_FLUSH_TIMEOUT" default:"5s"`
	HostMetadata  bool          `envconfig:"TRACELOG_HOST_METADATA" default:"false"`
	MinLevel      string        `envconfig:"TRACELOG_LEVEL" default:"debug"`

	DisablePropagatorAutoset bool `envconfig:"TRACELOG_DISABLE_PROPAGATOR_AUTOSET" default:"false"`
}

// DefaultConfig returns the configuration used when no environment
// variables are set.
func DefaultConfig() Config {
	return Config{
		ServiceName:   DefaultServiceName,
		QueueSize:     1024,
		Workers:       2,
		SubmitTimeout: 5 * time.Second,
		FlushTimeout:  5 * time.Second,
		MinLevel:      "debug",
	}
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("tracelog: load config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize trims string settings and restores defaults for blank or
// non-positive values.
func (c *Config) normalize() {
	defaults := DefaultConfig()
	c.ServiceName = strings.TrimSpace(c.ServiceName)
	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	c.LoggerAddr = strings.TrimSpace(c.LoggerAddr)
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	c.MinLevel = strings.ToLower(strings.TrimSpace(c.MinLevel))
	if c.MinLevel == "" {
		c.MinLevel = defaults.MinLevel
	}
}
