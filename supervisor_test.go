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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func waitFor(cond func() bool) bool {
	for i := 0; i < 200; i++ {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestSupervisor(t *testing.T) {
	Convey("Given a running supervisor", t, func() {
		l := &fakeLauncher{}
		snaps := make(chan LoadSnapshot, 10)
		s := testSupervisor(l,
			Definition{Name: "web", Path: "/bin/web", Workers: 2},
			Definition{Name: "db", Path: "/bin/db", Workers: 1})
		WithTick(10 * time.Millisecond)(s)
		WithSnapshotHook(func(app string, snap LoadSnapshot) {
			snaps <- snap
		})(s)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		result := make(chan error, 1)
		go func() {
			result <- s.Run(ctx)
		}()
		Reset(func() {
			s.Exit(context.Background())
			<-result
		})

		Convey("Applications start on request", func() {
			So(s.Start(ctx, "web"), ShouldBeNil)
			So(l.launched(), ShouldEqual, 2)

			apps, e := s.Show(ctx, "web")
			So(e, ShouldBeNil)
			So(len(apps), ShouldEqual, 1)
			So(apps[0].Status, ShouldEqual, StatusReady)
			So(apps[0].Snapshot, ShouldNotBeNil)
			So(len(apps[0].Snapshot.Samples), ShouldEqual, 0)

			l.handle(0).ready()
			l.handle(1).ready()
			So(waitFor(func() bool {
				apps, _ := s.List(ctx)
				return apps[0].Status == StatusRunning && apps[0].Ready == 2
			}), ShouldBeTrue)

			apps, e = s.List(ctx)
			So(e, ShouldBeNil)
			So(len(apps), ShouldEqual, 2)
			So(apps[1].Status, ShouldEqual, StatusStopped)

			Convey("Telemetry reaches the hook", func() {
				for i := 0; i < 3; i++ {
					l.handle(i % 2).load(LoadSample{CPUUser: 1})
				}
				select {
				case snap := <-snaps:
					So(len(snap.Samples), ShouldEqual, 2)
				case <-time.After(2 * time.Second):
					So("no snapshot", ShouldBeEmpty)
				}
			})

			Convey("Stop all waits for every worker", func() {
				So(s.Stop(ctx, AllApps), ShouldBeNil)
				apps, _ := s.List(ctx)
				So(apps[0].Status, ShouldEqual, StatusStopped)
				So(apps[0].Workers, ShouldEqual, 0)
				time.Sleep(50 * time.Millisecond)
				So(l.launched(), ShouldEqual, 2)
			})

			Convey("Restart replaces the workers", func() {
				So(s.Restart(ctx, "web"), ShouldBeNil)
				So(l.launched(), ShouldEqual, 4)
				apps, _ := s.Show(ctx, "web")
				So(apps[0].Pid, ShouldEqual, 1003)
				So(apps[0].Budget.Count, ShouldEqual, 2)
			})

			Convey("The logs tell what happened", func() {
				recs, e := s.Log(ctx, "web")
				So(e, ShouldBeNil)
				So(len(recs), ShouldBeGreaterThan, 0)
				So(recs[0].Text, ShouldStartWith, "[web] ")

				recs, e = s.Log(ctx, "")
				So(e, ShouldBeNil)
				found := false
				for _, r := range recs {
					if strings.HasPrefix(r.Text, "[web] ") {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})

			Convey("Exit stops everything and returns cleanly", func() {
				So(s.Exit(ctx), ShouldBeNil)
				So(<-result, ShouldBeNil)
				for i := 0; i < 2; i++ {
					So(l.handle(i).gone, ShouldBeTrue)
				}
				So(s.Start(ctx, "web"), ShouldEqual, ErrShutdown)
				result <- nil
			})
		})

		Convey("Unknown applications are reported", func() {
			So(s.Start(ctx, "cache"), ShouldEqual, ErrNoSuchApp)
			_, e := s.Show(ctx, "cache")
			So(e, ShouldEqual, ErrNoSuchApp)
			_, e = s.Log(ctx, "cache")
			So(e, ShouldEqual, ErrNoSuchApp)
		})

		Convey("Applications can be added while running", func() {
			name, e := s.Register(ctx, Definition{Path: "/bin/cache", Workers: 1})
			So(e, ShouldBeNil)
			So(len(name), ShouldEqual, nameLength)
			_, e = s.Register(ctx, Definition{Name: "web", Path: "/bin/web"})
			So(errors.Is(e, ErrDuplicateName), ShouldBeTrue)

			names, e := s.Load(ctx, []Record{
				{App: "/bin/web", Name: "web"},
				{App: "/bin/queue", Name: "queue"},
				{App: "/bin/anon"},
				{Name: "broken", Source: "apps.json[3]"},
			})
			So(names, ShouldResemble, []string{"queue"})
			So(e, ShouldNotBeNil)
			So(e.Error(), ShouldContainSubstring, "apps.json[3]")

			apps, _ := s.List(ctx)
			So(len(apps), ShouldEqual, 4)
			So(s.Start(ctx, "queue"), ShouldBeNil)
		})

		Convey("Canceling the context stops everything", func() {
			So(s.Start(ctx, AllApps), ShouldBeNil)
			So(l.launched(), ShouldEqual, 3)
			cancel()
			So(<-result, ShouldBeNil)
			for i := 0; i < 3; i++ {
				So(l.handle(i).gone, ShouldBeTrue)
			}
			result <- nil
		})

	})

	Convey("A crash looping application ends Run", t, func() {
		l := &fakeLauncher{fail: errors.New("exec format error")}
		s := testSupervisor(l, Definition{Name: "bad", Path: "/bin/bad", Workers: 1, RestartLimit: 3})
		WithTick(5 * time.Millisecond)(s)
		WithAutoStart(true)(s)

		e := s.Run(context.Background())
		var cl *CrashLoopError
		So(errors.As(e, &cl), ShouldBeTrue)
		So(cl.App, ShouldEqual, "bad")

		_, e = s.List(context.Background())
		So(e, ShouldEqual, ErrShutdown)
	})

	Convey("Run refuses to run twice", t, func() {
		s := testSupervisor(&fakeLauncher{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		So(s.Run(ctx), ShouldBeNil)
		So(s.Run(ctx), ShouldNotBeNil)
	})
}
