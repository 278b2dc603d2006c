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
	"time"
)

const (
	// AllApps is the reserved name addressing every registered application.
	AllApps = "all"

	DefaultRestartLimit = 15
	DefaultStopTime     = time.Second * 10

	nameLength = 8
	// No i, l or o: generated names are read aloud and typed by hand.
	nameAlphabet = "abcdefghjkmnpqrstuvwxyz"
)

// Status is the coarse runtime state of an application.
type Status string

const (
	StatusStopped Status = "STOPPED" // no live workers
	StatusReady   Status = "READY"   // workers forked, none reported ready
	StatusRunning Status = "RUNNING" // at least one worker reported ready
)

// Definition describes an application.  It is never mutated once the
// registry has accepted it.
type Definition struct {
	Name         string        `json:"name"`
	Path         string        `json:"app"`
	Args         []string      `json:"args"`
	Workers      int           `json:"num"`
	PidFile      string        `json:"pidFile"`
	RestartLimit int           `json:"restartCount"`
	StopTime     time.Duration `json:"stopTime"`
}

// ResolveWorkerCount maps a requested worker count onto the effective one.
// Zero, negative and absurdly large requests all fall back to cpus.
func ResolveWorkerCount(requested, cpus int) int {
	if requested <= 0 || requested > cpus*2+2 {
		return cpus
	}
	return requested
}

// Application is the runtime state of one registered Definition.  Apart
// from its log, it is only touched from the supervisor loop.
type Application struct {
	def    Definition
	status Status
	pid    int
	stamp  time.Time
	reason string
	mlog   *MultiLogger
	log    *Log
}

func newApplication(def Definition) *Application {
	a := &Application{
		def:    def,
		status: StatusStopped,
		stamp:  time.Now(),
		reason: "Registered",
		log:    NewLog(),
		mlog:   NewMultiLogger(),
	}
	a.mlog.Logger().SetPrefix("[" + def.Name + "] ")
	a.mlog.AddLogger(log.New(a.log, "", 0))
	return a
}

// Name returns the (possibly generated) application name.
func (a *Application) Name() string {
	return a.def.Name
}

// Definition returns a copy of the accepted definition.
func (a *Application) Definition() Definition {
	d := a.def
	d.Args = append([]string{}, a.def.Args...)
	return d
}

// Logger returns the logger that feeds the application log.
func (a *Application) Logger() *log.Logger {
	return a.mlog.Logger()
}

// GetLog returns the application log, see Log.GetRecords.
func (a *Application) GetLog(last int64) ([]LogRecord, int64) {
	return a.log.GetRecords(last)
}

func (a *Application) logf(format string, v ...interface{}) {
	a.mlog.Logger().Printf(format, v...)
}

func (a *Application) setStatus(st Status, pid int, reason string) {
	if st == a.status && pid == a.pid {
		return
	}
	a.status = st
	a.pid = pid
	a.reason = reason
	a.stamp = time.Now()
}

// AppStatus is the point in time view of an application returned by
// show and list.
type AppStatus struct {
	Name     string        `json:"name"`
	Path     string        `json:"app"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason"`
	Since    time.Time     `json:"since"`
	Pid      int           `json:"pid"`
	Target   int           `json:"target"`
	Workers  int           `json:"workers"`
	Ready    int           `json:"ready"`
	Budget   RestartBudget `json:"budget"`
	Snapshot *LoadSnapshot `json:"snapshot,omitempty"`
}
