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
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func testAggregator() *Aggregator {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Aggregator{
		loadavg: func() LoadAverage { return LoadAverage{0.5, 0.25, 0.125} },
		now:     func() time.Time { return stamp },
	}
}

func TestAggregator(t *testing.T) {
	Convey("Given an aggregator and three live workers", t, func() {
		ag := testAggregator()

		Convey("Nothing is emitted until the batch is complete", func() {
			for _, pid := range []int{30, 10, 20} {
				_, ok := ag.Add(LoadSample{Pid: pid}, 3)
				So(ok, ShouldBeFalse)
			}
			So(ag.Pending(), ShouldEqual, 3)

			Convey("The next sample flushes a sorted batch and seeds the next", func() {
				snap, ok := ag.Add(LoadSample{Pid: 30, CPUUser: 7}, 3)
				So(ok, ShouldBeTrue)
				So(len(snap.Samples), ShouldEqual, 3)
				So(snap.Samples[0].Pid, ShouldEqual, 10)
				So(snap.Samples[1].Pid, ShouldEqual, 20)
				So(snap.Samples[2].Pid, ShouldEqual, 30)
				So(snap.LoadAvg, ShouldResemble, LoadAverage{0.5, 0.25, 0.125})
				So(snap.Time.Year(), ShouldEqual, 2026)
				So(ag.Pending(), ShouldEqual, 1)
			})

			Convey("A worker leaving shortens the batch", func() {
				snap, ok := ag.Add(LoadSample{Pid: 10}, 2)
				So(ok, ShouldBeTrue)
				So(len(snap.Samples), ShouldEqual, 3)
			})

			Convey("Reset drops everything", func() {
				ag.Reset()
				So(ag.Pending(), ShouldEqual, 0)
			})
		})

		Convey("A single worker flushes on every second sample", func() {
			_, ok := ag.Add(LoadSample{Pid: 1}, 1)
			So(ok, ShouldBeFalse)
			snap, ok := ag.Add(LoadSample{Pid: 1, RSS: 2}, 1)
			So(ok, ShouldBeTrue)
			So(len(snap.Samples), ShouldEqual, 1)
			So(snap.Samples[0].RSS, ShouldEqual, 0)
		})
	})

	Convey("Snapshots are sorted for any arrival order", t, func() {
		rng := rand.New(rand.NewPCG(7, 11))
		for trial := 0; trial < 50; trial++ {
			ag := testAggregator()
			n := 1 + rng.IntN(12)
			pids := rng.Perm(1000)[:n]
			for _, pid := range pids {
				_, ok := ag.Add(LoadSample{Pid: pid}, n)
				So(ok, ShouldBeFalse)
			}
			snap, ok := ag.Add(LoadSample{Pid: pids[0]}, n)
			So(ok, ShouldBeTrue)
			So(len(snap.Samples), ShouldEqual, n)
			So(sort.SliceIsSorted(snap.Samples, func(i, j int) bool {
				return snap.Samples[i].Pid < snap.Samples[j].Pid
			}), ShouldBeTrue)
		}
	})

	Convey("The host load average can be read", t, func() {
		la := HostLoadAverage()
		for _, v := range la {
			So(v, ShouldBeGreaterThanOrEqualTo, 0)
		}
	})
}
