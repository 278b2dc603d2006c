// Copyright 2026 The PCM Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pcm

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetricsCollector exports supervision events as Prometheus
// metrics, on a registry of its own.
type PrometheusMetricsCollector struct {
	forks      *prometheus.CounterVec
	exits      *prometheus.CounterVec
	crashLoops *prometheus.CounterVec
	commands   *prometheus.CounterVec

	budgetCount *prometheus.GaugeVec
	budgetLimit *prometheus.GaugeVec

	cpuTicks  *prometheus.GaugeVec
	rss       *prometheus.GaugeVec
	heap      *prometheus.GaugeVec
	conns     *prometheus.GaugeVec
	reporting *prometheus.GaugeVec
	loadAvg   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector.  The namespace
// defaults to "pcm".
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "pcm"
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),

		forks:      counter("worker_forks_total", "Total number of worker fork attempts", "app", "status"),
		exits:      counter("worker_exits_total", "Total number of worker exits", "app", "status"),
		crashLoops: counter("crash_loops_total", "Total number of crash loop escalations", "app"),
		commands:   counter("commands_total", "Total number of control commands", "command", "status"),

		budgetCount: gauge("restart_budget_count", "Restart budget units in use", "app"),
		budgetLimit: gauge("restart_budget_limit", "Restart budget limit of the last tick", "app"),

		cpuTicks:  gauge("worker_cpu_ticks", "CPU clock ticks used during the last sampling interval", "app", "mode"),
		rss:       gauge("worker_resident_bytes", "Resident memory of all workers", "app"),
		heap:      gauge("worker_heap_bytes", "Heap memory of all workers", "app", "kind"),
		conns:     gauge("worker_connections", "Connections reported by all workers", "app"),
		reporting: gauge("workers_reporting", "Workers in the last telemetry snapshot", "app"),
		loadAvg:   gauge("host_load_average", "Host load average", "window"),
	}

	pmc.registry.MustRegister(
		pmc.forks,
		pmc.exits,
		pmc.crashLoops,
		pmc.commands,
		pmc.budgetCount,
		pmc.budgetLimit,
		pmc.cpuTicks,
		pmc.rss,
		pmc.heap,
		pmc.conns,
		pmc.reporting,
		pmc.loadAvg,
	)
	return pmc
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (pmc *PrometheusMetricsCollector) WorkerForked(app string, err error) {
	pmc.forks.WithLabelValues(app, outcome(err)).Inc()
}

func (pmc *PrometheusMetricsCollector) WorkerExited(app string, clean bool) {
	st := "clean"
	if !clean {
		st = "failed"
	}
	pmc.exits.WithLabelValues(app, st).Inc()
}

func (pmc *PrometheusMetricsCollector) RestartBudget(app string, b RestartBudget) {
	pmc.budgetCount.WithLabelValues(app).Set(float64(b.Count))
	pmc.budgetLimit.WithLabelValues(app).Set(float64(b.Limit))
}

func (pmc *PrometheusMetricsCollector) CrashLoop(app string) {
	pmc.crashLoops.WithLabelValues(app).Inc()
}

// Snapshot sets the per application gauges to the batch totals.
func (pmc *PrometheusMetricsCollector) Snapshot(app string, snap LoadSnapshot) {
	var user, system, rss, total, used uint64
	conns := 0
	for _, s := range snap.Samples {
		user += s.CPUUser
		system += s.CPUSystem
		rss += s.RSS
		total += s.HeapTotal
		used += s.HeapUsed
		conns += s.Conns
	}
	pmc.cpuTicks.WithLabelValues(app, "user").Set(float64(user))
	pmc.cpuTicks.WithLabelValues(app, "system").Set(float64(system))
	pmc.rss.WithLabelValues(app).Set(float64(rss))
	pmc.heap.WithLabelValues(app, "total").Set(float64(total))
	pmc.heap.WithLabelValues(app, "used").Set(float64(used))
	pmc.conns.WithLabelValues(app).Set(float64(conns))
	pmc.reporting.WithLabelValues(app).Set(float64(len(snap.Samples)))

	pmc.loadAvg.WithLabelValues("1m").Set(snap.LoadAvg[0])
	pmc.loadAvg.WithLabelValues("5m").Set(snap.LoadAvg[1])
	pmc.loadAvg.WithLabelValues("15m").Set(snap.LoadAvg[2])
}

func (pmc *PrometheusMetricsCollector) Command(verb string, err error) {
	pmc.commands.WithLabelValues(verb, outcome(err)).Inc()
}

// Registry returns the Prometheus registry.
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pmc *PrometheusMetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pmc.registry, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
