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
	"fmt"
	"log"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLog(t *testing.T) {
	Convey("Given a small log", t, func() {
		l := NewLogSize(3)
		_, id0 := l.GetRecords(0)

		Convey("Lines are recorded oldest first", func() {
			fmt.Fprint(l, "one\ntwo\n")
			recs, id := l.GetRecords(id0)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].Text, ShouldEqual, "one")
			So(recs[1].Text, ShouldEqual, "two")
			So(recs[1].Id, ShouldEqual, recs[0].Id+1)

			Convey("An unchanged log returns nothing", func() {
				recs, same := l.GetRecords(id)
				So(recs, ShouldBeNil)
				So(same, ShouldEqual, id)
			})
		})

		Convey("The oldest lines fall off", func() {
			for i := 0; i < 5; i++ {
				fmt.Fprintf(l, "line %d\n", i)
			}
			recs, _ := l.GetRecords(0)
			So(len(recs), ShouldEqual, 3)
			So(recs[0].Text, ShouldEqual, "line 2")
			So(recs[2].Text, ShouldEqual, "line 4")
		})
	})

	Convey("Application logs reach the supervisor log", t, func() {
		a := newApplication(Definition{Name: "web", Path: "/bin/web"})
		sup := NewMultiLogger()
		slog := NewLog()
		sup.AddLogger(log.New(slog, "", 0))
		a.mlog.AddLogger(sup.Logger())
		a.mlog.AddLogger(sup.Logger())

		a.logf("hello %d", 1)

		recs, _ := a.GetLog(0)
		So(len(recs), ShouldEqual, 1)
		So(recs[0].Text, ShouldEqual, "[web] hello 1")

		recs, _ = slog.GetRecords(0)
		So(len(recs), ShouldEqual, 1)
		So(recs[0].Text, ShouldEqual, "[web] hello 1")

		Convey("Removed destinations see nothing more", func() {
			a.mlog.DelLogger(sup.Logger())
			a.logf("bye")
			recs, _ = slog.GetRecords(0)
			So(len(recs), ShouldEqual, 1)
		})
	})

	Convey("Partial lines wait for their newline", t, func() {
		m := NewMultiLogger()
		l := NewLog()
		m.AddLogger(log.New(l, "", 0))

		fmt.Fprint(m, "hal")
		recs, _ := l.GetRecords(0)
		So(recs, ShouldBeEmpty)

		fmt.Fprint(m, "f\nsecond\nthi")
		recs, _ = l.GetRecords(0)
		So(len(recs), ShouldEqual, 2)
		So(recs[0].Text, ShouldEqual, "half")
		So(recs[1].Text, ShouldEqual, "second")
	})
}
