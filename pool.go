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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Pool keeps an application scaled to its worker count.  All methods
// run on the supervisor loop.
//
// A pool is either stopped, active (the tick keeps it topped up), or
// stopping (workers were told to terminate, nothing is forked).  Start
// and stop requests that arrive while stopping are queued behind it, so
// two mutations of one application never interleave.
type Pool struct {
	sup      *Supervisor
	app      *Application
	budget   RestartBudget
	workers  []*Worker // live workers, oldest first
	agg      *Aggregator
	snapshot *LoadSnapshot
	active   bool
	stopping bool
	waiters  []func() // completion callbacks of the stop in progress
	queued   []func() // operations deferred until the stop completes, in arrival order
	seq      int
	pidFile  int // pid last written to the pid file
}

func newPool(s *Supervisor, a *Application) *Pool {
	return &Pool{
		sup:    s,
		app:    a,
		budget: RestartBudget{PerWorker: a.def.RestartLimit},
		agg:    s.newAggregator(),
	}
}

// tick tops the pool up.  It returns a *CrashLoopError when the restart
// budget is exhausted; in that case nothing more is forked.
func (p *Pool) tick() error {
	if !p.active {
		return nil
	}
	missing := p.app.def.Workers - len(p.workers)
	if missing < 0 {
		missing = 0
	}
	p.budget.Recompute(missing)
	defer p.sup.metrics.RestartBudget(p.app.Name(), p.budget)

	for i := 0; i < missing; i++ {
		if p.budget.Exhausted() {
			return &CrashLoopError{App: p.app.Name(), Budget: p.budget}
		}
		p.fork()
		p.budget.Charge()
	}
	if missing > 0 {
		p.update("Forked workers")
	}
	return nil
}

func (p *Pool) fork() {
	p.seq++
	w := &Worker{App: p.app.Name(), Seq: p.seq, Started: time.Now()}
	h, e := p.sup.launcher.Launch(p.app.Definition(), w, p.sup.sink, p.app.Logger())
	p.sup.metrics.WorkerForked(p.app.Name(), e)
	if e != nil {
		p.app.logf("Failed to start worker %d: %v", w.Seq, e)
		return
	}
	w.handle = h
	w.pid = h.Pid()
	p.workers = append(p.workers, w)
	p.app.logf("Started worker %d (pid %d)", w.Seq, w.pid)
}

func (p *Pool) live(w *Worker) bool {
	for _, x := range p.workers {
		if x == w {
			return true
		}
	}
	return false
}

// ready credits the budget for a worker that survived its grace period.
func (p *Pool) ready(w *Worker) {
	if w.ready || !p.live(w) {
		return
	}
	w.ready = true
	p.budget.Credit()
	p.sup.metrics.RestartBudget(p.app.Name(), p.budget)
	p.app.logf("Worker %d (pid %d) is running", w.Seq, w.pid)
	p.update("Worker running")
}

func (p *Pool) sample(w *Worker, s LoadSample) {
	if !p.active || !p.live(w) {
		return
	}
	if s.Pid == 0 {
		s.Pid = w.pid
	}
	if snap, ok := p.agg.Add(s, len(p.workers)); ok {
		p.snapshot = &snap
		p.sup.snapshot(p.app.Name(), snap)
	}
}

func (p *Pool) exited(w *Worker, err error) {
	for i, x := range p.workers {
		if x == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			break
		}
	}
	if w.cancelKill != nil {
		w.cancelKill()
	}
	clean := err == nil
	var ee *exec.ExitError
	switch {
	case clean:
		p.app.logf("Worker %d (pid %d) exited", w.Seq, w.pid)
	case errors.As(err, &ee):
		p.app.logf("Worker %d (pid %d) failed: %v", w.Seq, w.pid, err)
	default:
		p.app.logf("Worker %d (pid %d) lost: %v", w.Seq, w.pid, err)
	}
	p.sup.metrics.WorkerExited(p.app.Name(), clean)

	if p.stopping && len(p.workers) == 0 {
		p.finishStop()
		return
	}
	p.update("Worker exited")
}

// start activates the pool and forks the initial workers.  done is
// called once the forks were issued, or once the pending stop finished
// and the pool was started after it.
func (p *Pool) start(done func()) {
	if p.stopping {
		p.queued = append(p.queued, func() { p.start(done) })
		return
	}
	if p.active || p.sup.closing {
		done()
		return
	}
	p.active = true
	p.budget.Reset()
	p.app.logf("Starting %d workers", p.app.def.Workers)
	p.sup.tickPool(p)
	done()
}

// stop terminates every worker, gracefully first.  done is called once
// the last one exited.
func (p *Pool) stop(done func()) {
	if p.stopping {
		// Behind whatever else arrived during this stop, so the
		// last request wins.
		p.queued = append(p.queued, func() { p.stop(done) })
		return
	}
	p.active = false
	if len(p.workers) == 0 {
		p.finishStop()
		done()
		return
	}
	p.stopping = true
	p.waiters = append(p.waiters, done)
	p.app.logf("Stopping %d workers", len(p.workers))
	for _, w := range p.workers {
		p.terminate(w)
	}
}

func (p *Pool) terminate(w *Worker) {
	if e := w.handle.Signal(syscall.SIGTERM); e != nil && !errors.Is(e, os.ErrProcessDone) {
		p.app.logf("Failed sending SIGTERM to %d: %v", w.pid, e)
	}
	w.cancelKill = p.sup.after(p.app.def.StopTime, func() {
		if !p.live(w) {
			return
		}
		p.app.logf("Graceful shutdown of %d timed out", w.pid)
		if e := w.handle.Kill(); e != nil && !errors.Is(e, os.ErrProcessDone) {
			p.app.logf("Failed killing %d: %v", w.pid, e)
		}
	})
}

func (p *Pool) finishStop() {
	p.stopping = false
	p.agg.Reset()
	p.snapshot = nil
	p.update("Stopped")

	waiters := p.waiters
	p.waiters = nil
	for _, fn := range waiters {
		fn()
	}
	// Operations requeue themselves if one of them starts another stop.
	queued := p.queued
	p.queued = nil
	for _, fn := range queued {
		fn()
	}
}

// update derives the application status from the live workers.
func (p *Pool) update(reason string) {
	st := StatusStopped
	pid := 0
	if len(p.workers) > 0 {
		st = StatusReady
		pid = p.workers[0].pid
		for _, w := range p.workers {
			if w.ready {
				st = StatusRunning
				break
			}
		}
	}
	p.app.setStatus(st, pid, reason)
	p.writePidFile(pid)
}

func (p *Pool) writePidFile(pid int) {
	path := p.app.def.PidFile
	if path == "" || pid == p.pidFile {
		return
	}
	p.pidFile = pid
	var e error
	if pid == 0 {
		e = os.Remove(path)
		if os.IsNotExist(e) {
			e = nil
		}
	} else {
		e = os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
	}
	if e != nil {
		p.app.logf("Failed updating pid file %s: %v", path, e)
	}
}

func (p *Pool) status(withSnapshot bool) AppStatus {
	a := p.app
	st := AppStatus{
		Name:    a.def.Name,
		Path:    a.def.Path,
		Status:  a.status,
		Reason:  a.reason,
		Since:   a.stamp,
		Pid:     a.pid,
		Target:  a.def.Workers,
		Workers: len(p.workers),
		Budget:  p.budget,
	}
	for _, w := range p.workers {
		if w.ready {
			st.Ready++
		}
	}
	if withSnapshot {
		snap := LoadSnapshot{}
		if p.snapshot != nil {
			snap = *p.snapshot
			snap.Samples = append([]LoadSample{}, p.snapshot.Samples...)
		}
		st.Snapshot = &snap
	}
	return st
}
