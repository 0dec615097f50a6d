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
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported on tracelog_entries_dropped_total.
const (
	dropReasonQueueFull = "queue_full"
	dropReasonClosed    = "closed"
)

type metrics struct {
	submitted *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// newMetrics builds the delivery counters and registers them with reg when
// non-nil. Counters already registered by another Forwarder are shared.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelog",
			Name:      "entries_submitted_total",
			Help:      "Log entries accepted by the logging backend.",
		}, []string{"level"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelog",
			Name:      "entries_failed_total",
			Help:      "Log entries the logging backend rejected or could not be reached for.",
		}, []string{"level"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracelog",
			Name:      "entries_dropped_total",
			Help:      "Log entries written to the local fallback without a delivery attempt.",
		}, []string{"reason"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.submitted, err = register(reg, m.submitted); err != nil {
		return nil, err
	}
	if m.failed, err = register(reg, m.failed); err != nil {
		return nil, err
	}
	if m.dropped, err = register(reg, m.dropped); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the existing collector when an identical
// one is already registered.
func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}
