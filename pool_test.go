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
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeLauncher launches pretend workers.  Unless stubborn, they exit as
// soon as they are asked to.
type fakeLauncher struct {
	nextPid  int
	fail     error
	stubborn bool
	handles  []*fakeHandle
	sync.Mutex
}

type fakeHandle struct {
	l       *fakeLauncher
	w       *Worker
	sink    WorkerSink
	pid     int
	signals []os.Signal
	killed  bool
	gone    bool
}

func (l *fakeLauncher) Launch(def Definition, w *Worker, sink WorkerSink, logger *log.Logger) (Handle, error) {
	l.Lock()
	defer l.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.nextPid++
	h := &fakeHandle{l: l, w: w, sink: sink, pid: 1000 + l.nextPid}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) launched() int {
	l.Lock()
	defer l.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) handle(i int) *fakeHandle {
	l.Lock()
	defer l.Unlock()
	return l.handles[i]
}

func (h *fakeHandle) Pid() int {
	return h.pid
}

func (h *fakeHandle) exit(err error) {
	h.l.Lock()
	gone := h.gone
	h.gone = true
	h.l.Unlock()
	if !gone {
		h.sink.Exited(h.w, err)
	}
}

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.l.Lock()
	h.signals = append(h.signals, sig)
	stubborn := h.l.stubborn
	h.l.Unlock()
	if !stubborn {
		h.exit(nil)
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.l.Lock()
	h.killed = true
	h.l.Unlock()
	h.exit(errors.New("signal: killed"))
	return nil
}

func (h *fakeHandle) crash() {
	h.exit(errors.New("exit status 1"))
}

func (h *fakeHandle) ready() {
	h.sink.Deliver(h.w, &RunningMessage{App: h.w.App})
}

func (h *fakeHandle) load(s LoadSample) {
	h.sink.Deliver(h.w, &LoadMessage{s})
}

// drain runs whatever is queued for the loop, standing in for Run.
func drain(s *Supervisor) {
	for {
		select {
		case fn := <-s.queue:
			fn()
		default:
			return
		}
	}
}

func testSupervisor(l Launcher, defs ...Definition) *Supervisor {
	r := NewRegistry(
		WithStatFunc(func(string) error { return nil }),
		WithCPUs(2),
		WithRegistryLogger(log.New(io.Discard, "", 0)))
	for _, def := range defs {
		if _, e := r.Register(def); e != nil {
			panic(e)
		}
	}
	return NewSupervisor(r, WithLauncher(l))
}

func TestPool(t *testing.T) {
	Convey("Given an application with two workers", t, func() {
		l := &fakeLauncher{}
		s := testSupervisor(l, Definition{Name: "web", Path: "/bin/web", Workers: 2, RestartLimit: 3})
		p := s.pools["web"]

		Convey("It is initially stopped and idle", func() {
			st := p.status(true)
			So(st.Status, ShouldEqual, StatusStopped)
			So(st.Pid, ShouldEqual, 0)
			So(st.Snapshot, ShouldNotBeNil)
			So(len(st.Snapshot.Samples), ShouldEqual, 0)
			s.tickAll()
			So(l.launched(), ShouldEqual, 0)
		})

		Convey("Starting forks every worker", func() {
			started := false
			p.start(func() { started = true })
			So(started, ShouldBeTrue)
			So(l.launched(), ShouldEqual, 2)

			st := p.status(false)
			So(st.Status, ShouldEqual, StatusReady)
			So(st.Pid, ShouldEqual, 1001)
			So(st.Workers, ShouldEqual, 2)
			So(st.Budget.Count, ShouldEqual, 2)
			So(st.Budget.Limit, ShouldEqual, 6)

			Convey("Starting again changes nothing", func() {
				p.start(func() {})
				s.tickAll()
				So(l.launched(), ShouldEqual, 2)
			})

			Convey("A ready worker makes it running and pays down the budget", func() {
				l.handle(1).ready()
				drain(s)
				st := p.status(false)
				So(st.Status, ShouldEqual, StatusRunning)
				So(st.Ready, ShouldEqual, 1)
				So(st.Budget.Count, ShouldEqual, 0)

				Convey("Readiness is only credited once", func() {
					p.budget.Charge()
					l.handle(1).ready()
					drain(s)
					So(p.budget.Count, ShouldEqual, 1)
				})
			})

			Convey("A dead worker is replaced on the next tick", func() {
				l.handle(0).crash()
				drain(s)
				st := p.status(false)
				So(st.Workers, ShouldEqual, 1)
				So(st.Pid, ShouldEqual, 1002)

				s.tickAll()
				So(l.launched(), ShouldEqual, 3)
				So(p.status(false).Workers, ShouldEqual, 2)
			})

			Convey("Samples are batched into snapshots", func() {
				l.handle(1).load(LoadSample{RSS: 2})
				l.handle(0).load(LoadSample{RSS: 1})
				drain(s)
				So(p.snapshot, ShouldBeNil)
				l.handle(0).load(LoadSample{RSS: 3})
				drain(s)
				So(p.snapshot, ShouldNotBeNil)
				snap := p.status(true).Snapshot
				So(len(snap.Samples), ShouldEqual, 2)
				So(snap.Samples[0].Pid, ShouldEqual, 1001)
				So(snap.Samples[0].RSS, ShouldEqual, 1)
				So(snap.Samples[1].Pid, ShouldEqual, 1002)
			})

			Convey("Stopping terminates every worker", func() {
				stopped := false
				p.stop(func() { stopped = true })
				So(l.handle(0).signals, ShouldResemble, []os.Signal{syscall.SIGTERM})
				So(stopped, ShouldBeFalse)
				drain(s)
				So(stopped, ShouldBeTrue)
				st := p.status(true)
				So(st.Status, ShouldEqual, StatusStopped)
				So(st.Workers, ShouldEqual, 0)
				So(len(st.Snapshot.Samples), ShouldEqual, 0)

				s.tickAll()
				So(l.launched(), ShouldEqual, 2)
			})

			Convey("Samples after a stop are ignored", func() {
				l.handle(0).load(LoadSample{})
				l.handle(1).load(LoadSample{})
				p.stop(func() {})
				l.handle(0).load(LoadSample{})
				drain(s)
				So(p.agg.Pending(), ShouldEqual, 0)
				So(p.snapshot, ShouldBeNil)
			})
		})
	})

	Convey("Given workers that crash before becoming ready", t, func() {
		l := &fakeLauncher{}
		s := testSupervisor(l, Definition{Name: "bad", Path: "/bin/bad", Workers: 1, RestartLimit: 2})
		p := s.pools["bad"]
		p.start(func() {})

		Convey("The budget runs out and the supervisor shuts down", func() {
			So(l.launched(), ShouldEqual, 1)
			l.handle(0).crash()
			drain(s)
			s.tickAll()
			So(l.launched(), ShouldEqual, 2)
			So(s.fatal, ShouldBeNil)
			l.handle(1).crash()
			drain(s)
			s.tickAll()
			So(l.launched(), ShouldEqual, 2)

			var cl *CrashLoopError
			So(errors.As(s.fatal, &cl), ShouldBeTrue)
			So(cl.App, ShouldEqual, "bad")
			So(cl.Budget.Count, ShouldEqual, 2)
			So(cl.Budget.Limit, ShouldEqual, 2)
			So(errors.Is(s.fatal, ErrCrashLoop), ShouldBeTrue)
			So(s.closing, ShouldBeTrue)
			So(s.idle(), ShouldBeTrue)
		})

		Convey("A worker that gets ready in between keeps it alive", func() {
			for i := 0; i < 10; i++ {
				h := l.handle(i)
				h.ready()
				h.crash()
				drain(s)
				s.tickAll()
				So(s.fatal, ShouldBeNil)
			}
			So(l.launched(), ShouldEqual, 11)
		})
	})

	Convey("Failed launches count against the budget", t, func() {
		l := &fakeLauncher{fail: errors.New("no such file")}
		s := testSupervisor(l, Definition{Name: "web", Path: "/bin/web", Workers: 1, RestartLimit: 2})
		p := s.pools["web"]
		p.start(func() {})
		So(p.budget.Count, ShouldEqual, 1)
		So(p.status(false).Status, ShouldEqual, StatusStopped)
		s.tickAll()
		So(p.budget.Count, ShouldEqual, 2)
		s.tickAll()
		So(errors.Is(s.fatal, ErrCrashLoop), ShouldBeTrue)
	})

	Convey("Given workers that ignore SIGTERM", t, func() {
		l := &fakeLauncher{stubborn: true}
		s := testSupervisor(l, Definition{Name: "web", Path: "/bin/web", Workers: 1,
			StopTime: 20 * time.Millisecond})
		p := s.pools["web"]
		p.start(func() {})

		stopped := false
		p.stop(func() { stopped = true })
		drain(s)
		So(stopped, ShouldBeFalse)

		Convey("Operations wait for the stop", func() {
			started := false
			p.start(func() { started = true })
			So(started, ShouldBeFalse)
			So(p.active, ShouldBeFalse)

			Convey("Which ends with SIGKILL", func() {
				time.Sleep(100 * time.Millisecond)
				drain(s)
				So(l.handle(0).killed, ShouldBeTrue)
				So(stopped, ShouldBeTrue)
				So(started, ShouldBeTrue)
				So(p.active, ShouldBeTrue)
				So(l.launched(), ShouldEqual, 2)
			})
		})

		Convey("A stop issued after a queued start wins", func() {
			started, again := false, false
			p.start(func() { started = true })
			p.stop(func() { again = true })

			time.Sleep(100 * time.Millisecond)
			drain(s)
			So(stopped, ShouldBeTrue)
			So(started, ShouldBeTrue)
			So(l.launched(), ShouldEqual, 2)
			So(p.active, ShouldBeFalse)
			So(p.stopping, ShouldBeTrue)
			So(again, ShouldBeFalse)

			time.Sleep(100 * time.Millisecond)
			drain(s)
			So(l.handle(1).killed, ShouldBeTrue)
			So(again, ShouldBeTrue)
			So(p.active, ShouldBeFalse)
			So(len(p.workers), ShouldEqual, 0)
			So(p.status(false).Status, ShouldEqual, StatusStopped)
		})

		Convey("A second stop completes after the first", func() {
			again := false
			p.stop(func() { again = true })
			So(again, ShouldBeFalse)

			time.Sleep(100 * time.Millisecond)
			drain(s)
			So(stopped, ShouldBeTrue)
			So(again, ShouldBeTrue)
			So(p.active, ShouldBeFalse)
			So(l.launched(), ShouldEqual, 1)
		})
	})

	Convey("The primary pid is kept in the pid file", t, func() {
		pidFile := filepath.Join(t.TempDir(), "web.pid")
		l := &fakeLauncher{}
		s := testSupervisor(l, Definition{Name: "web", Path: "/bin/web", Workers: 2, PidFile: pidFile})
		p := s.pools["web"]
		p.start(func() {})

		b, e := os.ReadFile(pidFile)
		So(e, ShouldBeNil)
		So(strings.TrimSpace(string(b)), ShouldEqual, "1001")

		l.handle(0).crash()
		drain(s)
		b, _ = os.ReadFile(pidFile)
		So(strings.TrimSpace(string(b)), ShouldEqual, "1002")

		p.stop(func() {})
		drain(s)
		_, e = os.Stat(pidFile)
		So(os.IsNotExist(e), ShouldBeTrue)
	})
}
