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

//go:build unix

package pcm_test

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/worker"
	. "github.com/smartystreets/goconvey/convey"
)

// The test binary doubles as the worker executable.
func TestMain(m *testing.M) {
	if worker.IsWorker() {
		worker.Run(func(ctx context.Context, s *worker.Shim) error {
			if len(os.Args) > 1 && os.Args[1] == "crash" {
				return errors.New("crashing on purpose")
			}
			s.SetConnections(1)
			<-ctx.Done()
			return nil
		})
	}
	os.Exit(m.Run())
}

func newSupervisor(tick time.Duration, defs ...pcm.Definition) *pcm.Supervisor {
	quiet := log.New(io.Discard, "", 0)
	reg := pcm.NewRegistry(pcm.WithRegistryLogger(quiet))
	for _, def := range defs {
		if _, e := reg.Register(def); e != nil {
			panic(e)
		}
	}
	return pcm.NewSupervisor(reg,
		pcm.WithTick(tick),
		pcm.WithLauncher(&pcm.ProcessLauncher{
			SampleInterval: 50 * time.Millisecond,
			ReadyDelay:     300 * time.Millisecond,
		}))
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestEndToEnd(t *testing.T) {
	Convey("Given a supervisor with a real application behind a socket", t, func() {
		sup := newSupervisor(100*time.Millisecond, pcm.Definition{
			Name:     "web",
			Path:     os.Args[0],
			Workers:  2,
			StopTime: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result := make(chan error, 1)
		go func() {
			result <- sup.Run(ctx)
		}()

		path := filepath.Join(t.TempDir(), "pcm.sock")
		srv := ctl.NewServer(sup, nil)
		So(srv.Listen(path), ShouldBeNil)
		go srv.Serve(ctx)
		cl := ctl.NewClient(path)

		show := func() pcm.AppStatus {
			r, e := cl.Do(ctx, "show web")
			if e != nil || len(r.Apps) != 1 {
				return pcm.AppStatus{}
			}
			return r.Apps[0]
		}

		Convey("It runs, reports and stops the workers", func() {
			_, e := cl.Do(ctx, "start web")
			So(e, ShouldBeNil)

			st := show()
			So(st.Status, ShouldEqual, pcm.StatusReady)
			So(st.Snapshot, ShouldNotBeNil)
			So(len(st.Snapshot.Samples), ShouldEqual, 0)

			So(eventually(func() bool {
				r, e := cl.Do(ctx, "list")
				return e == nil && len(r.Apps) == 1 &&
					r.Apps[0].Status == pcm.StatusRunning && r.Apps[0].Ready == 2
			}), ShouldBeTrue)

			So(eventually(func() bool {
				return len(show().Snapshot.Samples) == 2
			}), ShouldBeTrue)
			st = show()
			So(st.Snapshot.Samples[0].Pid, ShouldBeLessThan, st.Snapshot.Samples[1].Pid)
			So(st.Snapshot.Samples[0].Conns, ShouldEqual, 1)
			So(st.Budget.Count, ShouldEqual, 0)

			_, e = cl.Do(ctx, "stop all")
			So(e, ShouldBeNil)
			st = show()
			So(st.Status, ShouldEqual, pcm.StatusStopped)
			So(st.Workers, ShouldEqual, 0)
			So(len(st.Snapshot.Samples), ShouldEqual, 0)

			time.Sleep(300 * time.Millisecond)
			So(len(show().Snapshot.Samples), ShouldEqual, 0)

			r, e := cl.Do(ctx, "log web")
			So(e, ShouldBeNil)
			So(len(r.Log), ShouldBeGreaterThan, 0)

			_, e = cl.Do(ctx, "exit")
			So(e, ShouldBeNil)
			So(<-result, ShouldBeNil)
		})

		Convey("Bad commands only fail their session", func() {
			_, e := cl.Do(ctx, "start")
			So(e, ShouldNotBeNil)
			_, e = cl.Do(ctx, "show nobody")
			So(e, ShouldNotBeNil)
			r, e := cl.Do(ctx, "list")
			So(e, ShouldBeNil)
			So(r.Apps[0].Status, ShouldEqual, pcm.StatusStopped)

			cancel()
			So(<-result, ShouldBeNil)
		})
	})
}

func TestCrashLoop(t *testing.T) {
	Convey("An application that keeps crashing brings the supervisor down", t, func() {
		sup := newSupervisor(50*time.Millisecond, pcm.Definition{
			Name:         "bad",
			Path:         os.Args[0],
			Args:         []string{"crash"},
			Workers:      1,
			RestartLimit: 2,
		})
		pcm.WithAutoStart(true)(sup)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		e := sup.Run(ctx)
		var cl *pcm.CrashLoopError
		So(errors.As(e, &cl), ShouldBeTrue)
		So(cl.App, ShouldEqual, "bad")

		recs, _ := sup.Log(ctx, "")
		So(len(recs), ShouldBeGreaterThan, 0)
	})
}
