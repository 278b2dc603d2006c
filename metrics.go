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

// MetricsCollector receives supervision events.  Every method is called
// from the supervisor loop, except Command, which may be called from any
// goroutine.
type MetricsCollector interface {
	// WorkerForked records a fork attempt; err is the launch failure.
	WorkerForked(app string, err error)

	// WorkerExited records a worker exit.
	WorkerExited(app string, clean bool)

	// RestartBudget records the budget after it changed.
	RestartBudget(app string, b RestartBudget)

	// CrashLoop records a crash loop escalation.
	CrashLoop(app string)

	// Snapshot records a completed telemetry batch.
	Snapshot(app string, snap LoadSnapshot)

	// Command records a control operation and its outcome.
	Command(verb string, err error)
}

type noopMetricsCollector struct{}

func (*noopMetricsCollector) WorkerForked(string, error)          {}
func (*noopMetricsCollector) WorkerExited(string, bool)           {}
func (*noopMetricsCollector) RestartBudget(string, RestartBudget) {}
func (*noopMetricsCollector) CrashLoop(string)                    {}
func (*noopMetricsCollector) Snapshot(string, LoadSnapshot)       {}
func (*noopMetricsCollector) Command(string, error)               {}

// NewNoopMetricsCollector returns a collector that discards everything.
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
