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
	"log"
	"os"
	"time"
)

// Worker is one forked instance of an application.  Workers are owned
// by their pool and only touched from the supervisor loop.
type Worker struct {
	App     string
	Seq     int // per application, increasing
	Started time.Time

	pid        int
	ready      bool
	handle     Handle
	cancelKill func() bool
}

// Pid returns the operating system process id of the worker.
func (w *Worker) Pid() int {
	return w.pid
}

// Ready reports whether the worker announced that it is running.
func (w *Worker) Ready() bool {
	return w.ready
}

// Handle is the supervisor's grip on a launched worker.
type Handle interface {
	Pid() int

	// Signal asks the worker to do something, typically to terminate.
	Signal(os.Signal) error

	// Kill terminates the worker unconditionally.
	Kill() error
}

// WorkerSink receives what launched workers report.  Implementations
// must accept calls from any goroutine, and must not block for long.
type WorkerSink interface {
	// Deliver hands over a message received from the worker.
	Deliver(w *Worker, m Message)

	// Exited is called exactly once, after the worker has terminated.
	// err is whatever the wait for the process returned.
	Exited(w *Worker, err error)
}

// Launcher forks workers.  Launch must not block waiting for the worker
// to do anything; everything after the fork is reported to the sink.
// Worker output should be sent to the logger.
type Launcher interface {
	Launch(def Definition, w *Worker, sink WorkerSink, logger *log.Logger) (Handle, error)
}
