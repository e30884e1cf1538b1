// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerstats holds process-wide Prometheus counters recorded by
// both the manager side (managerdriver) and the worker side (the worker
// supervisor) of the subsystem, mirroring internal/rescue's
// promauto-registered panic_total: static, unlabeled totals that don't
// need the per-worker-id TTL machinery managerdriver.Stats provides.
package workerstats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/acleone/sageserver/common"
)

var workersSpawnedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "workers_spawned_total",
		Help:      "worker child processes spawned",
	},
)

var shutdownsInitiatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "shutdowns_initiated_total",
		Help:      "SHUTDOWN sequences initiated, worker or manager side",
	},
)

var interruptsAttemptedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "interrupts_attempted_total",
		Help:      "INTERRUPT rounds attempted against a worker's main task",
	},
)

func WorkerSpawned() {
	workersSpawnedTotal.Inc()
}

func ShutdownInitiated() {
	shutdownsInitiatedTotal.Inc()
}

func InterruptAttempted() {
	interruptsAttemptedTotal.Inc()
}
