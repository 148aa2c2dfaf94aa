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

package opsserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kvnet/kvnetd/common"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "commands_total",
			Help:      "Dispatched commands by type and response status",
		},
		[]string{"command", "status"},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "active_subscriptions",
			Help:      "Currently open pub/sub subscriptions",
		},
	)

	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)

	buildInfoGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "git_hash", "build_time"},
	)
)

// RecordCommand increments the per-command-type, per-status counter. It is
// meant to be wired as a dispatcher post-hook.
func RecordCommand(command string, status uint32) {
	commandsTotal.WithLabelValues(command, strconv.FormatUint(uint64(status), 10)).Inc()
}

// IncSubscriptions and DecSubscriptions track the live subscription gauge;
// wire the former to SUBSCRIBE and the latter to UNSUBSCRIBE and to
// subscription eviction.
func IncSubscriptions() { activeSubscriptions.Inc() }
func DecSubscriptions() { activeSubscriptions.Dec() }

// RecordUptimeAndBuild refreshes the uptime and build-info gauges; call it
// whenever /metrics is scraped.
func RecordUptimeAndBuild() {
	uptime.Set(float64(time.Now().Unix() - common.Started()))
	bi := common.GetBuildInfo()
	buildInfoGauge.WithLabelValues(bi.Version, bi.GitHash, bi.Time).Set(1)
}
